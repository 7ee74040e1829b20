package graph

import (
	"testing"

	"github.com/weft-ml/weft/internal/tensor"
)

func f32Scalar(t *testing.T, v float64) *tensor.RawTensor {
	t.Helper()
	return tensor.ScalarRaw(v, tensor.Float32, tensor.CPU)
}

func TestVariableKinds(t *testing.T) {
	x := NewInput("x", tensor.Shape{2}, tensor.Float32)
	if x.Kind() != Input {
		t.Errorf("Kind = %v, want Input", x.Kind())
	}
	if x.Owner() != nil {
		t.Error("leaf variable should have no owner")
	}

	p := NewPlaceholder("p", tensor.Shape{2}, tensor.Float32)
	if p.Kind() != Placeholder {
		t.Errorf("Kind = %v, want Placeholder", p.Kind())
	}

	c := NewConstant("c", f32Scalar(t, 1))
	if c.Kind() != Constant || c.Value() == nil {
		t.Error("constant should carry its value")
	}
}

func TestVariableUIDsUnique(t *testing.T) {
	a := NewInput("x", tensor.Shape{1}, tensor.Float32)
	b := NewInput("x", tensor.Shape{1}, tensor.Float32)
	if a.UID() == b.UID() {
		t.Error("two variables share a UID")
	}
}

func TestParameterSetValueBumpsTimestamp(t *testing.T) {
	p := NewParameter("w", f32Scalar(t, 1))
	before := p.Timestamp()

	if err := p.SetValue(f32Scalar(t, 2)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if p.Timestamp() <= before {
		t.Errorf("timestamp did not advance: %d -> %d", before, p.Timestamp())
	}
	if got := p.Value().AsFloat32()[0]; got != 2 {
		t.Errorf("value = %v, want 2", got)
	}
}

func TestParameterSetValueShapeMismatch(t *testing.T) {
	p := NewParameter("w", f32Scalar(t, 1))
	bad, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	if err := p.SetValue(bad); err == nil {
		t.Error("SetValue with mismatched shape should fail")
	}
}

func TestSetValueRejectsNonParameter(t *testing.T) {
	x := NewInput("x", tensor.Shape{1}, tensor.Float32)
	if err := x.SetValue(f32Scalar(t, 1)); err == nil {
		t.Error("SetValue on an Input should fail")
	}
}

func TestNewPrimitiveInfersOutput(t *testing.T) {
	a := NewInput("a", tensor.Shape{2, 3}, tensor.Float32)
	b := NewInput("b", tensor.Shape{2, 3}, tensor.Float32)

	n, err := Plus(a, b, "sum")
	if err != nil {
		t.Fatalf("Plus: %v", err)
	}
	out := n.Output()
	if out.Kind() != Output {
		t.Errorf("output kind = %v, want Output", out.Kind())
	}
	if !out.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("output shape = %v, want [2 3]", out.Shape())
	}
	if out.Owner() != n {
		t.Error("output owner should be the producing node")
	}
}

func TestNewPrimitiveRejectsDTypeMismatch(t *testing.T) {
	a := NewInput("a", tensor.Shape{2}, tensor.Float32)
	b := NewInput("b", tensor.Shape{2}, tensor.Float64)
	if _, err := Plus(a, b, ""); err == nil {
		t.Error("mixed dtypes should be rejected")
	}
}

func TestTimesShapeInference(t *testing.T) {
	a := NewInput("a", tensor.Shape{4, 3}, tensor.Float32)
	b := NewInput("b", tensor.Shape{3, 5}, tensor.Float32)

	n, err := Times(a, b, "")
	if err != nil {
		t.Fatalf("Times: %v", err)
	}
	if !n.Output().Shape().Equal(tensor.Shape{4, 5}) {
		t.Errorf("output shape = %v, want [4 5]", n.Output().Shape())
	}

	bad := NewInput("bad", tensor.Shape{4, 5}, tensor.Float32)
	if _, err := Times(a, bad, ""); err == nil {
		t.Error("inner dimension mismatch should be rejected")
	}
}

func TestNewPrimitiveUnknownOp(t *testing.T) {
	a := NewInput("a", tensor.Shape{2}, tensor.Float32)
	if _, err := NewPrimitive("NoSuchOp", []*Variable{a}, ""); err == nil {
		t.Error("unknown operation should be rejected")
	}
}
