package exec

import (
	"errors"
	"testing"

	"github.com/weft-ml/weft/internal/backend/cpu"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

func scalar(v float64) *tensor.RawTensor {
	return tensor.ScalarRaw(v, tensor.Float32, tensor.CPU)
}

// buildSquare returns y = x*x.
func buildSquare(t *testing.T) (*graph.PrimitiveNode, *graph.Variable) {
	t.Helper()
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	sq, err := graph.ElementTimes(x, x, "square")
	if err != nil {
		t.Fatal(err)
	}
	return sq, x
}

func TestPlanForward(t *testing.T) {
	sq, x := buildSquare(t)
	out := sq.Output()

	p, err := Build(Options{
		Backend: cpu.New(),
		Outputs: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	h, err := p.OutputHandle(out)
	if err != nil {
		t.Fatalf("OutputHandle: %v", err)
	}
	val, err := h.Tensor()
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if got := val.AsFloat32()[0]; got != 9 {
		t.Errorf("x*x at x=3: got %v, want 9", got)
	}
}

func TestPlanForwardMissingInput(t *testing.T) {
	sq, _ := buildSquare(t)

	p, err := Build(Options{Backend: cpu.New(), Outputs: []*graph.Variable{sq.Output()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Forward(nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Forward without args = %v, want ErrMissingInput", err)
	}
}

func TestPlanForwardInputShapeMismatch(t *testing.T) {
	sq, x := buildSquare(t)

	p, err := Build(Options{Backend: cpu.New(), Outputs: []*graph.Variable{sq.Output()}})
	if err != nil {
		t.Fatal(err)
	}
	bad, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: bad}); err == nil {
		t.Error("shape-mismatched input should be rejected")
	}
}

func TestPlanBackward(t *testing.T) {
	sq, x := buildSquare(t)
	out := sq.Output()

	p, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}); err != nil {
		t.Fatal(err)
	}

	grads, err := p.Backward(map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, []*graph.Variable{x})
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	g, err := grads[x].Tensor()
	if err != nil {
		t.Fatal(err)
	}
	// d(x*x)/dx = 2x = 6 at x=3. Both operand slots are x, so the two
	// contributions must accumulate.
	if got := g.AsFloat32()[0]; got != 6 {
		t.Errorf("gradient = %v, want 6", got)
	}
}

func TestPlanBackwardRootNotRetained(t *testing.T) {
	sq, x := buildSquare(t)
	out := sq.Output()

	p, err := Build(Options{Backend: cpu.New(), Outputs: []*graph.Variable{out}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}); err != nil {
		t.Fatal(err)
	}

	_, err = p.Backward(map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, []*graph.Variable{x})
	if !errors.Is(err, ErrRootNotRetained) {
		t.Errorf("Backward without retained root = %v, want ErrRootNotRetained", err)
	}
}

func TestPlanBuildRootMustBeOutput(t *testing.T) {
	sq, _ := buildSquare(t)
	out := sq.Output()

	other := graph.NewInput("other", tensor.Shape{1}, tensor.Float32)
	_, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{other},
	})
	if !errors.Is(err, ErrRootNotRetained) {
		t.Errorf("Build with foreign root = %v, want ErrRootNotRetained", err)
	}
}

func TestPlanExcludedGradient(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	y := graph.NewInput("y", tensor.Shape{1}, tensor.Float32)
	n, err := graph.ElementTimes(x, y, "")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()

	p, err := Build(Options{
		Backend:        cpu.New(),
		Outputs:        []*graph.Variable{out},
		BackpropRoots:  []*graph.Variable{out},
		ExcludedInputs: map[*graph.Variable]struct{}{y: {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	args := map[*graph.Variable]*tensor.RawTensor{x: scalar(2), y: scalar(5)}
	if err := p.Forward(args); err != nil {
		t.Fatal(err)
	}

	seed := map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}
	if _, err := p.Backward(seed, []*graph.Variable{y}); !errors.Is(err, ErrExcludedGradient) {
		t.Errorf("gradient for excluded input = %v, want ErrExcludedGradient", err)
	}

	// The non-excluded input still gets its gradient.
	grads, err := p.Backward(seed, []*graph.Variable{x})
	if err != nil {
		t.Fatal(err)
	}
	g, _ := grads[x].Tensor()
	if got := g.AsFloat32()[0]; got != 5 {
		t.Errorf("gradient for x = %v, want 5", got)
	}
}

func TestPlanZeroGradientForUnreachedInput(t *testing.T) {
	// out depends on x only; a gradient request for an unconnected leaf
	// that IS part of the plan is answered with explicit zeros.
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	c := graph.NewConstant("c", scalar(4))
	n, err := graph.Plus(x, c, "")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()

	p, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(1)}); err != nil {
		t.Fatal(err)
	}

	// Seed with zero gradient instead of one: x receives a real zero
	// contribution either way, the point is no error and a usable handle.
	grads, err := p.Backward(map[*graph.Variable]*tensor.RawTensor{out: scalar(0)}, []*graph.Variable{x})
	if err != nil {
		t.Fatal(err)
	}
	g, err := grads[x].Tensor()
	if err != nil {
		t.Fatal(err)
	}
	if got := g.AsFloat32()[0]; got != 0 {
		t.Errorf("gradient = %v, want 0", got)
	}
}

func TestPlanUnresolvedPlaceholder(t *testing.T) {
	ph := graph.NewPlaceholder("p", tensor.Shape{1}, tensor.Float32)
	n, err := graph.Tanh(ph, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Build(Options{Backend: cpu.New(), Outputs: []*graph.Variable{n.Output()}})
	if !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Errorf("Build over placeholder = %v, want ErrUnresolvedPlaceholder", err)
	}
}

func TestPlanOwnedSetEnforced(t *testing.T) {
	sq, x := buildSquare(t)
	out := sq.Output()

	// An owned set that does not contain the producing node rejects the build.
	foreign := make(map[graph.Node]struct{})
	_, err := Build(Options{
		Backend: cpu.New(),
		Outputs: []*graph.Variable{out},
		Owned:   foreign,
	})
	if !errors.Is(err, ErrNodeNotOwned) {
		t.Errorf("Build outside owned set = %v, want ErrNodeNotOwned", err)
	}

	// With the node owned, the build succeeds.
	owned := graph.Collect(sq)
	p, err := Build(Options{
		Backend: cpu.New(),
		Outputs: []*graph.Variable{out},
		Owned:   owned,
	})
	if err != nil {
		t.Fatalf("Build with owned set: %v", err)
	}
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}); err != nil {
		t.Fatal(err)
	}
}

func TestPlanThroughBlock(t *testing.T) {
	// Block wrapping tanh(p), applied to an outer input.
	p := graph.NewPlaceholder("p", tensor.Shape{1}, tensor.Float32)
	inner, err := graph.Tanh(p, "")
	if err != nil {
		t.Fatal(err)
	}
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	blk, err := graph.NewBlock(inner, map[*graph.Variable]*graph.Variable{p: x}, "tanhBlock")
	if err != nil {
		t.Fatal(err)
	}
	out := blk.Outputs()[0]

	plan, err := Build(Options{Backend: cpu.New(), Outputs: []*graph.Variable{out}})
	if err != nil {
		t.Fatalf("Build through block: %v", err)
	}
	if err := plan.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(0)}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	h, err := plan.OutputHandle(out)
	if err != nil {
		t.Fatal(err)
	}
	val, err := h.Tensor()
	if err != nil {
		t.Fatal(err)
	}
	if got := val.AsFloat32()[0]; got != 0 {
		t.Errorf("tanh(0) through block = %v, want 0", got)
	}
}

func TestPlanBlocksSharingInnerGraph(t *testing.T) {
	// Two block nodes wrapping the same inner graph with different
	// argument bindings must evaluate independently.
	p := graph.NewPlaceholder("p", tensor.Shape{1}, tensor.Float32)
	inner, err := graph.Exp(p, "")
	if err != nil {
		t.Fatal(err)
	}
	x1 := graph.NewInput("x1", tensor.Shape{1}, tensor.Float32)
	x2 := graph.NewInput("x2", tensor.Shape{1}, tensor.Float32)
	blk1, err := graph.NewBlock(inner, map[*graph.Variable]*graph.Variable{p: x1}, "expA")
	if err != nil {
		t.Fatal(err)
	}
	blk2, err := graph.NewBlock(inner, map[*graph.Variable]*graph.Variable{p: x2}, "expB")
	if err != nil {
		t.Fatal(err)
	}
	sum, err := graph.Plus(blk1.Outputs()[0], blk2.Outputs()[0], "")
	if err != nil {
		t.Fatal(err)
	}
	out := sum.Output()

	plan, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	args := map[*graph.Variable]*tensor.RawTensor{x1: scalar(0), x2: scalar(1)}
	if err := plan.Forward(args); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	h, err := plan.OutputHandle(out)
	if err != nil {
		t.Fatal(err)
	}
	val, err := h.Tensor()
	if err != nil {
		t.Fatal(err)
	}
	want := float32(1 + 2.7182817) // exp(0) + exp(1)
	if got := val.AsFloat32()[0]; got < want-1e-4 || got > want+1e-4 {
		t.Errorf("exp(0)+exp(1) = %v, want %v", got, want)
	}

	// Gradients route through each block's own binding: d/dx1 = exp(0),
	// d/dx2 = exp(1).
	grads, err := plan.Backward(map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}, []*graph.Variable{x1, x2})
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	g1, err := grads[x1].Tensor()
	if err != nil {
		t.Fatal(err)
	}
	if got := g1.AsFloat32()[0]; got < 1-1e-4 || got > 1+1e-4 {
		t.Errorf("gradient for x1 = %v, want 1", got)
	}
	g2, err := grads[x2].Tensor()
	if err != nil {
		t.Fatal(err)
	}
	if got := g2.AsFloat32()[0]; got < 2.7182817-1e-4 || got > 2.7182817+1e-4 {
		t.Errorf("gradient for x2 = %v, want e", got)
	}
}

func TestPlanReissuesHandles(t *testing.T) {
	sq, x := buildSquare(t)
	out := sq.Output()

	p, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(2)}); err != nil {
		t.Fatal(err)
	}
	h1, err := p.OutputHandle(out)
	if err != nil {
		t.Fatal(err)
	}

	// A second pass on the same plan hands back the same handle.
	if err := p.Forward(map[*graph.Variable]*tensor.RawTensor{x: scalar(3)}); err != nil {
		t.Fatal(err)
	}
	h2, err := p.OutputHandle(out)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("repeated OutputHandle on one plan minted a new handle")
	}

	seed := map[*graph.Variable]*tensor.RawTensor{out: scalar(1)}
	grads1, err := p.Backward(seed, []*graph.Variable{x})
	if err != nil {
		t.Fatal(err)
	}
	grads2, err := p.Backward(seed, []*graph.Variable{x})
	if err != nil {
		t.Fatal(err)
	}
	if grads1[x] != grads2[x] {
		t.Error("repeated Backward on one plan minted a new gradient handle")
	}

	// A handle the caller erased is replaced, not resurrected.
	h1.Erase()
	h3, err := p.OutputHandle(out)
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("erased handle was handed out again")
	}
	if _, err := h3.Tensor(); err != nil {
		t.Errorf("replacement handle should dereference: %v", err)
	}
}

func TestParameterLeaves(t *testing.T) {
	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
	w := graph.NewParameter("w", scalar(2))
	n, err := graph.ElementTimes(x, w, "")
	if err != nil {
		t.Fatal(err)
	}
	out := n.Output()

	p, err := Build(Options{
		Backend:       cpu.New(),
		Outputs:       []*graph.Variable{out},
		BackpropRoots: []*graph.Variable{out},
	})
	if err != nil {
		t.Fatal(err)
	}

	params := p.ParameterLeaves()
	if len(params) != 1 || params[0] != w {
		t.Errorf("ParameterLeaves = %v, want [w]", params)
	}
	rootParams := p.RootParameters(out)
	if len(rootParams) != 1 || rootParams[0] != w {
		t.Errorf("RootParameters = %v, want [w]", rootParams)
	}
}
