package composite

import (
	"errors"
	"testing"

	"github.com/weft-ml/weft/internal/backend/cpu"
	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

func scalar(v float64) *tensor.RawTensor {
	return tensor.ScalarRaw(v, tensor.Float32, tensor.CPU)
}

// fakeCUDABackend reports a different device while computing on CPU,
// for device-pinning tests.
type fakeCUDABackend struct {
	*cpu.Backend
}

func (fakeCUDABackend) Device() tensor.Device { return tensor.CUDA }

// squareComposite builds c(x) = x*x.
func squareComposite(t *testing.T) (*Composite, *graph.Variable, *graph.Variable) {
	t.Helper()
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	sq, err := graph.ElementTimes(x, x, "square")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Create(sq, "square")
	if err != nil {
		t.Fatal(err)
	}
	return c, x, sq.Output()
}

func handleValue(t *testing.T, h *exec.Handle) float32 {
	t.Helper()
	v, err := h.Tensor()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return v.AsFloat32()[0]
}

func TestForwardBackward(t *testing.T) {
	c, x, out := squareComposite(t)
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	state, err := c.Forward(
		map[*graph.Variable]*tensor.RawTensor{x: scalar(3)},
		outputs, b,
		[]*graph.Variable{out}, nil,
	)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got := handleValue(t, outputs[out]); got != 9 {
		t.Errorf("x*x at x=3 = %v, want 9", got)
	}

	grads := map[*graph.Variable]*exec.Handle{x: nil}
	if err := c.Backward(state, map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, grads); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if got := handleValue(t, grads[x]); got != 6 {
		t.Errorf("d(x*x)/dx at x=3 = %v, want 6", got)
	}
}

func TestForwardReusesPlan(t *testing.T) {
	c, x, out := squareComposite(t)
	b := cpu.New()

	for i, in := range []float64{2, 4} {
		outputs := map[*graph.Variable]*exec.Handle{out: nil}
		if _, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(in)}, outputs, b, nil, nil); err != nil {
			t.Fatalf("Forward %d: %v", i, err)
		}
		want := float32(in * in)
		if got := handleValue(t, outputs[out]); got != want {
			t.Errorf("forward %d = %v, want %v", i, got, want)
		}
	}
}

func TestRepeatedPassesKeepHandleRegistryBounded(t *testing.T) {
	c, x, out := squareComposite(t)
	b := cpu.New()

	run := func() {
		outputs := map[*graph.Variable]*exec.Handle{out: nil}
		state, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}, outputs, b, []*graph.Variable{out}, nil)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		grads := map[*graph.Variable]*exec.Handle{x: nil}
		if err := c.Backward(state, map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, grads); err != nil {
			t.Fatalf("Backward: %v", err)
		}
	}

	run()
	tracked := len(c.handles)
	for i := 0; i < 50; i++ {
		run()
	}
	if got := len(c.handles); got != tracked {
		t.Errorf("handle registry grew from %d to %d across passes on one plan", tracked, got)
	}
}

func TestForwardValuesNotSupported(t *testing.T) {
	c, _, _ := squareComposite(t)
	b := cpu.New()

	_, err := c.ForwardValues([]*tensor.RawTensor{scalar(1)}, nil, b, nil)
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("ForwardValues = %v, want ErrNotSupported", err)
	}
}

func TestBackwardWrongAggregate(t *testing.T) {
	c1, x1, out1 := squareComposite(t)
	c2, _, _ := squareComposite(t)
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out1: nil}
	state, err := c1.Forward(map[*graph.Variable]*tensor.RawTensor{x1: scalar(2)}, outputs, b, []*graph.Variable{out1}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = c2.Backward(state, map[*graph.Variable]*tensor.RawTensor{out1: scalar(1)}, nil)
	if !errors.Is(err, ErrWrongAggregate) {
		t.Errorf("Backward on foreign aggregate = %v, want ErrWrongAggregate", err)
	}
	if err := c2.Backward(nil, nil, nil); !errors.Is(err, ErrWrongAggregate) {
		t.Errorf("Backward with nil state = %v, want ErrWrongAggregate", err)
	}
}

func TestBackwardStaleAfterParameterUpdate(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	w := graph.NewParameter("w", scalar(2))
	n, err := graph.ElementTimes(x, w, "scale")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()
	c, err := Create(n, "scale")
	if err != nil {
		t.Fatal(err)
	}
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	state, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}, outputs, b, []*graph.Variable{out}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the parameter invalidates the retained forward state.
	if err := w.SetValue(scalar(5)); err != nil {
		t.Fatal(err)
	}

	err = c.Backward(state, map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, map[*graph.Variable]*exec.Handle{x: nil})
	if !errors.Is(err, ErrStaleState) {
		t.Errorf("Backward after parameter update = %v, want ErrStaleState", err)
	}
}

func TestParameterUpdateForcesRebuildAndRevokesHandles(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	w := graph.NewParameter("w", scalar(2))
	n, err := graph.ElementTimes(x, w, "scale")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()
	c, err := Create(n, "scale")
	if err != nil {
		t.Fatal(err)
	}
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	if _, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}, outputs, b, nil, nil); err != nil {
		t.Fatal(err)
	}
	oldHandle := outputs[out]
	if got := handleValue(t, oldHandle); got != 6 {
		t.Fatalf("w*x = %v, want 6", got)
	}

	if err := w.SetValue(scalar(10)); err != nil {
		t.Fatal(err)
	}

	outputs2 := map[*graph.Variable]*exec.Handle{out: nil}
	if _, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}, outputs2, b, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := handleValue(t, outputs2[out]); got != 30 {
		t.Errorf("w*x after update = %v, want 30", got)
	}

	// The rebuild revoked the old handle.
	if _, err := oldHandle.Tensor(); !errors.Is(err, exec.ErrStorageRevoked) {
		t.Errorf("old handle after rebuild = %v, want ErrStorageRevoked", err)
	}
}

func TestBackwardStaleAfterRebuild(t *testing.T) {
	c, x, out := squareComposite(t)
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	state, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}, outputs, b, []*graph.Variable{out}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A forward on another device rebuilds the plan; the old state's epoch
	// no longer matches.
	fake := fakeCUDABackend{cpu.New()}
	outputs2 := map[*graph.Variable]*exec.Handle{out: nil}
	if _, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}, outputs2, fake, []*graph.Variable{out}, nil); err != nil {
		t.Fatal(err)
	}

	err = c.Backward(state, map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, map[*graph.Variable]*exec.Handle{x: nil})
	if !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("Backward after device switch = %v, want ErrDeviceMismatch", err)
	}
}

func TestForwardPlaceholderFailsUntilReplaced(t *testing.T) {
	ph := graph.NewPlaceholder("p", tensor.Shape{1}, tensor.Float32)
	n, err := graph.Tanh(ph, "act")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Outputs()[0]
	c, err := Create(n, "act")
	if err != nil {
		t.Fatal(err)
	}
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	_, err = c.Forward(nil, outputs, b, nil, nil)
	if !errors.Is(err, exec.ErrUnresolvedPlaceholder) {
		t.Fatalf("Forward over placeholder = %v, want ErrUnresolvedPlaceholder", err)
	}

	// Graft a subgraph in place of the placeholder; the owned set grows
	// and the same call now succeeds.
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	sub, err := graph.Exp(x, "")
	if err != nil {
		t.Fatal(err)
	}
	before := c.NumOwned()
	if err := c.ReplacePlaceholders(map[*graph.Variable]*graph.Variable{ph: sub.Output()}); err != nil {
		t.Fatalf("ReplacePlaceholders: %v", err)
	}
	if c.NumOwned() != before+1 {
		t.Errorf("owned set = %d nodes, want %d", c.NumOwned(), before+1)
	}
	if !c.Owns(sub) {
		t.Error("grafted node should be owned")
	}

	outputs = map[*graph.Variable]*exec.Handle{out: nil}
	if _, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(0)}, outputs, b, nil, nil); err != nil {
		t.Fatalf("Forward after replacement: %v", err)
	}
	// tanh(exp(0)) = tanh(1).
	if got := handleValue(t, outputs[out]); got < 0.76 || got > 0.762 {
		t.Errorf("tanh(exp(0)) = %v, want ~0.7616", got)
	}
}

func TestForwardRootsMustBeRequested(t *testing.T) {
	c, x, out := squareComposite(t)
	b := cpu.New()

	other := graph.NewInput("other", tensor.Shape{1}, tensor.Float32)
	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	_, err := c.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(1)}, outputs, b, []*graph.Variable{other}, nil)
	if !errors.Is(err, ErrRootsNotRequested) {
		t.Errorf("Forward with foreign root = %v, want ErrRootsNotRequested", err)
	}
}

func TestBackwardExcludedGradient(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	y := graph.NewInput("y", tensor.Shape{1}, tensor.Float32)
	n, err := graph.ElementTimes(x, y, "")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()
	c, err := Create(n, "")
	if err != nil {
		t.Fatal(err)
	}
	b := cpu.New()

	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	args := map[*graph.Variable]*tensor.RawTensor{x: scalar(2), y: scalar(7)}
	state, err := c.Forward(args, outputs, b, []*graph.Variable{out}, []*graph.Variable{y})
	if err != nil {
		t.Fatal(err)
	}

	err = c.Backward(state, map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, map[*graph.Variable]*exec.Handle{y: nil})
	if !errors.Is(err, exec.ErrExcludedGradient) {
		t.Errorf("gradient for excluded input = %v, want ErrExcludedGradient", err)
	}
}

func TestOwnsRejectsForeignNode(t *testing.T) {
	c, _, _ := squareComposite(t)

	foreign, err := graph.Tanh(graph.NewInput("z", tensor.Shape{1}, tensor.Float32), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Owns(foreign) {
		t.Error("aggregate should not own an unrelated node")
	}
}

func TestAsBlockComposes(t *testing.T) {
	// Inner composite g(p) = sigmoid(p), used as a block inside f(x) = exp(g(x)).
	p := graph.NewPlaceholder("p", tensor.Shape{1}, tensor.Float32)
	act, err := graph.Sigmoid(p, "")
	if err != nil {
		t.Fatal(err)
	}
	inner, err := Create(act, "sigmoid")
	if err != nil {
		t.Fatal(err)
	}

	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	blk, err := inner.AsBlock(map[*graph.Variable]*graph.Variable{p: x}, "sigmoidBlock")
	if err != nil {
		t.Fatalf("AsBlock: %v", err)
	}
	root, err := graph.Exp(blk.Outputs()[0], "")
	if err != nil {
		t.Fatal(err)
	}
	outer, err := Create(root, "outer")
	if err != nil {
		t.Fatal(err)
	}
	out := root.Output()

	b := cpu.New()
	outputs := map[*graph.Variable]*exec.Handle{out: nil}
	if _, err := outer.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(0)}, outputs, b, nil, nil); err != nil {
		t.Fatalf("Forward through block: %v", err)
	}
	// exp(sigmoid(0)) = exp(0.5).
	if got := handleValue(t, outputs[out]); got < 1.648 || got > 1.649 {
		t.Errorf("exp(sigmoid(0)) = %v, want ~1.6487", got)
	}
}
