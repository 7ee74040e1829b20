package graph

import (
	"testing"

	"github.com/weft-ml/weft/internal/tensor"
)

// buildDiamond returns root of: d = (a+b) * (a+b reused via two paths).
//
//	a   b
//	 \ / \
//	 sum  neg-ish chain
func buildDiamond(t *testing.T) (*PrimitiveNode, *Variable, *Variable) {
	t.Helper()
	a := NewInput("a", tensor.Shape{2}, tensor.Float32)
	b := NewInput("b", tensor.Shape{2}, tensor.Float32)
	sum, err := Plus(a, b, "sum")
	if err != nil {
		t.Fatal(err)
	}
	diff, err := Minus(a, b, "diff")
	if err != nil {
		t.Fatal(err)
	}
	root, err := ElementTimes(sum.Output(), diff.Output(), "prod")
	if err != nil {
		t.Fatal(err)
	}
	return root, a, b
}

func TestCollectReachableNodes(t *testing.T) {
	root, _, _ := buildDiamond(t)
	nodes := Collect(root)
	if len(nodes) != 3 {
		t.Errorf("Collect found %d nodes, want 3", len(nodes))
	}
	if _, ok := nodes[root]; !ok {
		t.Error("Collect missed the root")
	}
}

func TestCollectIntoIdempotent(t *testing.T) {
	root, _, _ := buildDiamond(t)
	nodes := Collect(root)
	CollectInto(root, nodes)
	if len(nodes) != 3 {
		t.Errorf("re-collect changed the set: %d nodes, want 3", len(nodes))
	}
}

func TestDetermineInputsDedup(t *testing.T) {
	root, a, b := buildDiamond(t)

	// a and b each feed two nodes but must appear once.
	inputs := DetermineInputs(root, DeclaredOrder)
	if len(inputs) != 2 {
		t.Fatalf("DetermineInputs = %d variables, want 2", len(inputs))
	}
	if inputs[0] != a || inputs[1] != b {
		t.Errorf("inputs = [%s %s], want [a b]", inputs[0], inputs[1])
	}
}

func TestDetermineInputsChain(t *testing.T) {
	x := NewInput("x", tensor.Shape{1}, tensor.Float32)
	h, err := Tanh(x, "")
	if err != nil {
		t.Fatal(err)
	}
	y, err := Exp(h.Output(), "")
	if err != nil {
		t.Fatal(err)
	}

	inputs := DetermineInputs(y, DeclaredOrder)
	if len(inputs) != 1 || inputs[0] != x {
		t.Errorf("chain inputs = %v, want just x", inputs)
	}
}

func TestDetermineInputsIncludesConstants(t *testing.T) {
	x := NewInput("x", tensor.Shape{1}, tensor.Float32)
	c := NewConstant("c", tensor.ScalarRaw(2, tensor.Float32, tensor.CPU))
	n, err := ElementTimes(x, c, "")
	if err != nil {
		t.Fatal(err)
	}

	// Every non-Output leaf is listed, constants included.
	inputs := DetermineInputs(n, DeclaredOrder)
	if len(inputs) != 2 || inputs[0] != x || inputs[1] != c {
		t.Errorf("inputs = %v, want [x c]", inputs)
	}
}

func TestPostorderVisitsOperandsFirst(t *testing.T) {
	root, _, _ := buildDiamond(t)

	var order []*Variable
	PostorderTraverseVariables(root, func(v *Variable) {
		order = append(order, v)
	}, DeclaredOrder)

	// The root's own output must come last.
	if len(order) == 0 || order[len(order)-1] != root.Output() {
		t.Error("postorder should visit the root output last")
	}
}

func TestPreorderVisitsRootFirst(t *testing.T) {
	root, _, _ := buildDiamond(t)

	var first *Variable
	PreorderTraverseVariables(root, func(v *Variable) {
		if first == nil {
			first = v
		}
	}, DeclaredOrder)

	if first != root.Output() {
		t.Error("preorder should visit the root output first")
	}
}
