package graph

import (
	"fmt"

	"github.com/weft-ml/weft/internal/graph/ops"
	"github.com/weft-ml/weft/internal/tensor"
)

// Node is an operation in the graph: it consumes zero or more input
// variables and exclusively produces one or more output variables.
// Constructing a node does not by itself establish aggregate ownership.
type Node interface {
	// UID returns the node's unique identifier.
	UID() string

	// Name returns the node's optional display name.
	Name() string

	// OpName returns the stable operation identity.
	OpName() string

	// Inputs returns the node's input variables in declared order.
	Inputs() []*Variable

	// Outputs returns the variables this node produces.
	Outputs() []*Variable

	// setInput rewires the i-th input. Placeholder substitution only.
	setInput(i int, v *Variable)
}

// PrimitiveNode is a single operation backed by an ops.Kernel.
type PrimitiveNode struct {
	uid     string
	name    string
	op      string
	kernel  ops.Kernel
	attrs   map[string]any
	inputs  []*Variable
	outputs []*Variable
}

// NewPrimitive creates a primitive node for the named operation, inferring
// its output variable from the kernel's shape inference.
func NewPrimitive(op string, inputs []*Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitiveWithAttributes(op, inputs, nil, name)
}

// NewPrimitiveWithAttributes creates a primitive node with operation
// attributes (e.g. a dropout rate).
func NewPrimitiveWithAttributes(op string, inputs []*Variable, attrs map[string]any, name string) (*PrimitiveNode, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s: primitive requires at least one input", op)
	}

	kernel, err := ops.New(op, attrs)
	if err != nil {
		return nil, err
	}

	dtype := inputs[0].DType()
	shapes := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		if in.DType() != dtype {
			return nil, fmt.Errorf("%s: input dtype mismatch %s vs %s", op, in.DType(), dtype)
		}
		shapes[i] = in.Shape()
	}

	outShape, err := kernel.OutputShape(shapes)
	if err != nil {
		return nil, err
	}

	n := &PrimitiveNode{
		uid:    generateUID(op),
		name:   name,
		op:     op,
		kernel: kernel,
		attrs:  attrs,
		inputs: append([]*Variable(nil), inputs...),
	}
	n.outputs = []*Variable{newOutput(n, outShape, dtype)}

	return n, nil
}

// UID returns the node's unique identifier.
func (n *PrimitiveNode) UID() string { return n.uid }

// Name returns the node's display name.
func (n *PrimitiveNode) Name() string { return n.name }

// OpName returns the operation identity.
func (n *PrimitiveNode) OpName() string { return n.op }

// Inputs returns the node's input variables.
func (n *PrimitiveNode) Inputs() []*Variable { return n.inputs }

// Outputs returns the node's output variables.
func (n *PrimitiveNode) Outputs() []*Variable { return n.outputs }

// Output returns the node's single output variable.
func (n *PrimitiveNode) Output() *Variable { return n.outputs[0] }

// Kernel returns the node's operation kernel.
func (n *PrimitiveNode) Kernel() ops.Kernel { return n.kernel }

// Attributes returns the node's operation attributes.
func (n *PrimitiveNode) Attributes() map[string]any { return n.attrs }

func (n *PrimitiveNode) setInput(i int, v *Variable) {
	n.inputs[i] = v
}

// SetUID overrides the generated UID. Only the deserializer should call this.
func (n *PrimitiveNode) SetUID(uid string) { n.uid = uid }

// Convenience constructors for the common operation kinds.

// Plus creates an element-wise addition node.
func Plus(a, b *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpPlus, []*Variable{a, b}, name)
}

// Minus creates an element-wise subtraction node.
func Minus(a, b *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpMinus, []*Variable{a, b}, name)
}

// ElementTimes creates an element-wise multiplication node.
func ElementTimes(a, b *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpElementTimes, []*Variable{a, b}, name)
}

// ElementDivide creates an element-wise division node.
func ElementDivide(a, b *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpElementDivide, []*Variable{a, b}, name)
}

// Times creates a matrix multiplication node.
func Times(a, b *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpTimes, []*Variable{a, b}, name)
}

// Tanh creates a hyperbolic tangent node.
func Tanh(x *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpTanh, []*Variable{x}, name)
}

// Sigmoid creates a logistic sigmoid node.
func Sigmoid(x *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpSigmoid, []*Variable{x}, name)
}

// Exp creates an element-wise exponential node.
func Exp(x *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpExp, []*Variable{x}, name)
}

// Log creates an element-wise natural logarithm node.
func Log(x *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpLog, []*Variable{x}, name)
}

// Sqrt creates an element-wise square root node.
func Sqrt(x *Variable, name string) (*PrimitiveNode, error) {
	return NewPrimitive(ops.OpSqrt, []*Variable{x}, name)
}

// Dropout creates a dropout node with the given rate and RNG seed.
func Dropout(x *Variable, rate float64, seed int64, name string) (*PrimitiveNode, error) {
	return NewPrimitiveWithAttributes(ops.OpDropout, []*Variable{x}, map[string]any{
		"rate": rate,
		"seed": seed,
	}, name)
}
