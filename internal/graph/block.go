package graph

import "fmt"

// BlockOpName is the operation identity of block composite nodes.
const BlockOpName = "Block"

// BlockNode exposes a whole nested graph as a single composable node.
// Its inputs are outer variables bound to the inner graph's unresolved
// leaves through an argument mapping; its outputs are fresh variables
// mapped one-to-one onto the inner root's outputs.
type BlockNode struct {
	uid  string
	name string

	inner      Node
	innerNodes map[Node]struct{}

	argOrder []*Variable // inner leaves, aligned with inputs
	inputs   []*Variable // outer arguments
	outputs  []*Variable

	innerOutputs map[*Variable]*Variable // block output -> inner root output
}

// NewBlock wraps the graph rooted at inner as a single node. argMap binds
// every unresolved inner leaf (Placeholder or Input kind) to an outer
// variable; inner Constants and Parameters execute as-is and need no
// binding.
func NewBlock(inner Node, argMap map[*Variable]*Variable, name string) (*BlockNode, error) {
	b := &BlockNode{
		uid:          generateUID(BlockOpName),
		name:         name,
		inner:        inner,
		innerNodes:   Collect(inner),
		innerOutputs: make(map[*Variable]*Variable),
	}

	// Bind inner leaves in the graph's own first-encountered order so the
	// block's input order is deterministic.
	for _, leaf := range DetermineInputs(inner, DeclaredOrder) {
		switch leaf.Kind() {
		case Constant, Parameter:
			continue
		case Placeholder, Input:
			outer, ok := argMap[leaf]
			if !ok {
				return nil, fmt.Errorf("block %q: inner leaf %s has no argument binding", name, leaf)
			}
			if !leaf.Shape().Equal(outer.Shape()) {
				return nil, fmt.Errorf("block %q: argument shape mismatch %v vs %v", name, leaf.Shape(), outer.Shape())
			}
			b.argOrder = append(b.argOrder, leaf)
			b.inputs = append(b.inputs, outer)
		default:
			return nil, fmt.Errorf("block %q: unexpected leaf kind %s", name, leaf.Kind())
		}
	}
	if len(argMap) != len(b.argOrder) {
		return nil, fmt.Errorf("block %q: argument mapping contains variables not reachable in the inner graph", name)
	}

	for _, innerOut := range inner.Outputs() {
		out := newOutput(b, innerOut.Shape(), innerOut.DType())
		b.outputs = append(b.outputs, out)
		b.innerOutputs[out] = innerOut
	}

	return b, nil
}

// UID returns the node's unique identifier.
func (b *BlockNode) UID() string { return b.uid }

// Name returns the node's display name.
func (b *BlockNode) Name() string { return b.name }

// OpName returns the operation identity.
func (b *BlockNode) OpName() string { return BlockOpName }

// Inputs returns the block's outer arguments.
func (b *BlockNode) Inputs() []*Variable { return b.inputs }

// Outputs returns the block's output variables.
func (b *BlockNode) Outputs() []*Variable { return b.outputs }

// InnerRoot returns the root node of the wrapped graph.
func (b *BlockNode) InnerRoot() Node { return b.inner }

// InnerNodes returns the full node set of the wrapped graph, nested
// blocks' internals included.
func (b *BlockNode) InnerNodes() map[Node]struct{} { return b.innerNodes }

// Arguments returns the binding of inner leaves to outer variables.
func (b *BlockNode) Arguments() map[*Variable]*Variable {
	m := make(map[*Variable]*Variable, len(b.argOrder))
	for i, leaf := range b.argOrder {
		m[leaf] = b.inputs[i]
	}
	return m
}

// InnerOutput maps one of the block's output variables to the inner root
// output variable it forwards.
func (b *BlockNode) InnerOutput(out *Variable) *Variable {
	return b.innerOutputs[out]
}

func (b *BlockNode) setInput(i int, v *Variable) {
	b.inputs[i] = v
}

// SetUID overrides the generated UID. Only the deserializer should call this.
func (b *BlockNode) SetUID(uid string) { b.uid = uid }
