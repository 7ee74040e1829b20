package exec

import (
	"fmt"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/graph/ops"
	"github.com/weft-ml/weft/internal/tensor"
)

// Options configures a plan build.
type Options struct {
	// Backend performs the numeric kernels; its device pins the plan.
	Backend tensor.Backend

	// Outputs are the variables the caller wants populated.
	Outputs []*graph.Variable

	// BackpropRoots are the outputs whose state must be retained for a
	// later backward pass. Must be a subset of Outputs.
	BackpropRoots []*graph.Variable

	// ExcludedInputs never receive gradients; requesting one later is an
	// error.
	ExcludedInputs map[*graph.Variable]struct{}

	// Owned is the aggregate's owned node set. When non-nil, every
	// primitive the build reaches must be a member.
	Owned map[graph.Node]struct{}
}

// planNode is one storage-bearing step of the compiled plan.
type planNode struct {
	variable *graph.Variable
	kernel   ops.Kernel  // nil for leaves
	inputs   []*planNode // kernel operands in declared order

	valueSlot int
	gradSlot  int // -1 until a gradient is materialized
}

// blockFrame is one block instance on the resolution path. Bindings live
// on the frame, not in a plan-global environment, so two block nodes
// wrapping the same inner graph keep their arguments apart.
type blockFrame struct {
	parent *blockFrame
	block  *graph.BlockNode
	args   map[*graph.Variable]*graph.Variable
}

// planKey identifies a plan node: the resolved variable plus the block
// instance it resolved inside (nil outside any block).
type planKey struct {
	variable *graph.Variable
	frame    *blockFrame
}

// Plan is the compiled execution structure for one aggregate: per-variable
// plan nodes in dependency order, bound to arena-backed storage.
type Plan struct {
	backend tensor.Backend
	device  tensor.Device
	arena   *Arena

	order  []*planNode // kernel nodes, post-order
	leaves []*planNode
	nodes  map[planKey]*planNode

	outputs  map[*graph.Variable]*planNode // requested output -> resolved node
	roots    map[*graph.Variable]*planNode
	excluded map[*graph.Variable]struct{}

	// frames interns one resolution frame per block node so every
	// consumer of a block output lands on the same plan nodes.
	frames map[*graph.BlockNode]*blockFrame

	// issued caches one handle per arena slot so repeated passes on the
	// same plan hand back the same revocable reference.
	issued map[int]*Handle

	// rootParams caches, per backprop root, the Parameter leaves its
	// value depends on. Used for forward-timestamp capture.
	rootParams map[*graph.Variable][]*graph.Variable

	grads map[*planNode]*tensor.RawTensor
}

// Build compiles the subgraph reaching the requested outputs.
func Build(opts Options) (*Plan, error) {
	p := &Plan{
		backend:    opts.Backend,
		device:     opts.Backend.Device(),
		arena:      NewArena(),
		nodes:      make(map[planKey]*planNode),
		outputs:    make(map[*graph.Variable]*planNode),
		roots:      make(map[*graph.Variable]*planNode),
		excluded:   make(map[*graph.Variable]struct{}),
		frames:     make(map[*graph.BlockNode]*blockFrame),
		issued:     make(map[int]*Handle),
		rootParams: make(map[*graph.Variable][]*graph.Variable),
	}
	for v := range opts.ExcludedInputs {
		p.excluded[v] = struct{}{}
	}

	for _, out := range opts.Outputs {
		pn, err := p.build(out, nil, opts.Owned)
		if err != nil {
			return nil, err
		}
		p.outputs[out] = pn
	}

	for _, root := range opts.BackpropRoots {
		pn, ok := p.outputs[root]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRootNotRetained, root)
		}
		p.roots[root] = pn
		p.rootParams[root] = collectParameters(pn)
	}

	return p, nil
}

// frameFor interns the resolution frame of one block node. A block node
// occupies a single structural position, so its parent frame is stable.
func (p *Plan) frameFor(blk *graph.BlockNode, parent *blockFrame) *blockFrame {
	if f, ok := p.frames[blk]; ok {
		return f
	}
	f := &blockFrame{parent: parent, block: blk, args: blk.Arguments()}
	p.frames[blk] = f
	return f
}

// resolve follows block output mappings and block argument bindings until
// the variable is a primitive output or a true leaf, tracking the block
// instance the result belongs to.
func (p *Plan) resolve(v *graph.Variable, frame *blockFrame) (*graph.Variable, *blockFrame) {
	for {
		if v.IsOutput() {
			blk, ok := v.Owner().(*graph.BlockNode)
			if !ok {
				return v, frame
			}
			frame = p.frameFor(blk, frame)
			v = blk.InnerOutput(v)
			continue
		}
		if frame != nil {
			if outer, ok := frame.args[v]; ok {
				v, frame = outer, frame.parent
				continue
			}
		}
		return v, frame
	}
}

func (p *Plan) build(v *graph.Variable, frame *blockFrame, owned map[graph.Node]struct{}) (*planNode, error) {
	v, frame = p.resolve(v, frame)
	key := planKey{variable: v, frame: frame}
	if pn, ok := p.nodes[key]; ok {
		return pn, nil
	}

	switch v.Kind() {
	case graph.Placeholder:
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, v)

	case graph.Input, graph.Constant, graph.Parameter:
		pn := &planNode{variable: v, valueSlot: p.arena.Alloc(), gradSlot: -1}
		p.nodes[key] = pn
		p.leaves = append(p.leaves, pn)
		return pn, nil

	case graph.Output:
		owner, ok := v.Owner().(*graph.PrimitiveNode)
		if !ok {
			return nil, fmt.Errorf("unexpected owner type for %s", v)
		}
		if owned != nil {
			if _, member := owned[owner]; !member {
				return nil, fmt.Errorf("%w: %s", ErrNodeNotOwned, owner.OpName())
			}
		}

		inputs := make([]*planNode, len(owner.Inputs()))
		for i, in := range owner.Inputs() {
			pn, err := p.build(in, frame, owned)
			if err != nil {
				return nil, err
			}
			inputs[i] = pn
		}

		pn := &planNode{
			variable:  v,
			kernel:    owner.Kernel(),
			inputs:    inputs,
			valueSlot: p.arena.Alloc(),
			gradSlot:  -1,
		}
		p.nodes[key] = pn
		p.order = append(p.order, pn)
		return pn, nil

	default:
		return nil, fmt.Errorf("unexpected variable kind %s", v.Kind())
	}
}

// collectParameters walks a plan subgraph gathering Parameter leaves.
func collectParameters(pn *planNode) []*graph.Variable {
	var params []*graph.Variable
	seen := make(map[*planNode]struct{})

	var walk func(*planNode)
	walk = func(n *planNode) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		if n.variable.Kind() == graph.Parameter {
			params = append(params, n.variable)
		}
		for _, in := range n.inputs {
			walk(in)
		}
	}
	walk(pn)

	return params
}

// Device returns the compute device the plan was built for.
func (p *Plan) Device() tensor.Device {
	return p.device
}

// RootParameters returns the Parameter leaves a backprop root depends on.
func (p *Plan) RootParameters(root *graph.Variable) []*graph.Variable {
	return p.rootParams[root]
}

// ParameterLeaves returns every Parameter leaf bound into the plan.
func (p *Plan) ParameterLeaves() []*graph.Variable {
	var params []*graph.Variable
	for _, leaf := range p.leaves {
		if leaf.variable.Kind() == graph.Parameter {
			params = append(params, leaf.variable)
		}
	}
	return params
}

// handleFor returns the plan's canonical handle for a slot, minting one
// on first use. Repeated passes on the same plan therefore reissue the
// same handle instead of growing the caller's revocation registry.
func (p *Plan) handleFor(slot int) *Handle {
	if h, ok := p.issued[slot]; ok && h.Valid() {
		return h
	}
	h := newHandle(p.arena, slot)
	p.issued[slot] = h
	return h
}

// Invalidate revokes all storage issued by this plan.
func (p *Plan) Invalidate() {
	p.arena.Invalidate()
	p.issued = make(map[int]*Handle)
}
