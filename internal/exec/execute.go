package exec

import (
	"fmt"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Forward binds leaf values and evaluates the plan in dependency order.
// Input values are copied into plan-owned storage so callers cannot
// mutate state the backward pass depends on.
func (p *Plan) Forward(args map[*graph.Variable]*tensor.RawTensor) error {
	for _, leaf := range p.leaves {
		v := leaf.variable
		switch v.Kind() {
		case graph.Input:
			val, ok := args[v]
			if !ok {
				return fmt.Errorf("%w: %s", ErrMissingInput, v)
			}
			if !val.Shape().Equal(v.Shape()) {
				return fmt.Errorf("input %s: shape mismatch %v vs %v", v, val.Shape(), v.Shape())
			}
			p.arena.Set(leaf.valueSlot, val.Clone())

		case graph.Constant, graph.Parameter:
			// Re-read on every forward so external mutations are seen.
			p.arena.Set(leaf.valueSlot, v.Value().Clone())
		}
	}

	for _, pn := range p.order {
		inputs := make([]*tensor.RawTensor, len(pn.inputs))
		for i, in := range pn.inputs {
			inputs[i] = p.arena.Get(in.valueSlot)
		}
		p.arena.Set(pn.valueSlot, pn.kernel.Forward(inputs, p.backend))
	}

	p.grads = nil // A new forward invalidates gradients from the previous pass.
	return nil
}

// OutputHandle returns a revocable handle onto the computed value of a
// requested output variable.
func (p *Plan) OutputHandle(v *graph.Variable) (*Handle, error) {
	pn, ok := p.outputs[v]
	if !ok {
		return nil, fmt.Errorf("variable %s was not a requested output", v)
	}
	return p.handleFor(pn.valueSlot), nil
}

// Backward runs the reverse pass: seeds the backprop roots with the
// provided gradients, walks the plan in reverse dependency order
// accumulating input gradients, and materializes handles for the
// requested input variables. Excluded inputs never receive gradients.
func (p *Plan) Backward(rootGradients map[*graph.Variable]*tensor.RawTensor, requested []*graph.Variable) (map[*graph.Variable]*Handle, error) {
	p.grads = make(map[*planNode]*tensor.RawTensor)

	for root, g := range rootGradients {
		pn, ok := p.roots[root]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRootNotRetained, root)
		}
		if !g.Shape().Equal(pn.variable.Shape()) {
			return nil, fmt.Errorf("root gradient %s: shape mismatch %v vs %v", root, g.Shape(), pn.variable.Shape())
		}
		p.accumulate(pn, g)
	}

	for i := len(p.order) - 1; i >= 0; i-- {
		pn := p.order[i]
		g, ok := p.grads[pn]
		if !ok {
			continue
		}

		inputs := make([]*tensor.RawTensor, len(pn.inputs))
		for j, in := range pn.inputs {
			inputs[j] = p.arena.Get(in.valueSlot)
		}
		inputGrads := pn.kernel.Backward(g, inputs, p.arena.Get(pn.valueSlot), p.backend)

		for j, in := range pn.inputs {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if _, skip := p.excluded[in.variable]; skip {
				continue
			}
			p.accumulate(in, inputGrads[j])
		}
	}

	gradients := make(map[*graph.Variable]*Handle, len(requested))
	for _, v := range requested {
		if _, skip := p.excluded[v]; skip {
			return nil, fmt.Errorf("%w: %s", ErrExcludedGradient, v)
		}
		rv, rf := p.resolve(v, nil)
		pn, ok := p.nodes[planKey{variable: rv, frame: rf}]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, v)
		}

		g, ok := p.grads[pn]
		if !ok {
			// No gradient flowed; surface an explicit zero.
			g = tensor.ZerosLikeRaw(p.arena.Get(pn.valueSlot))
		}
		if pn.gradSlot < 0 {
			pn.gradSlot = p.arena.Alloc()
		}
		p.arena.Set(pn.gradSlot, g)
		gradients[v] = p.handleFor(pn.gradSlot)
	}

	return gradients, nil
}

// accumulate adds a gradient contribution, summing when the node already
// has one (shared substructure contributes once per consumer).
func (p *Plan) accumulate(pn *planNode, g *tensor.RawTensor) {
	if existing, ok := p.grads[pn]; ok {
		p.grads[pn] = p.backend.Add(existing, g)
		return
	}
	p.grads[pn] = g
}
