// Package ops defines the kernel capability set for graph operations.
//
// Each operation kind exposes shape inference, a forward pass and a
// backward pass against the tensor.Backend interface. The traversal and
// execution engine are written purely against this capability set and
// never inspect concrete kernel types.
package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Kernel is the capability set implemented by every operation kind.
type Kernel interface {
	// OpName returns the stable operation identity used for dispatch
	// and serialization.
	OpName() string

	// OutputShape infers the output shape from the input shapes.
	OutputShape(inputs []tensor.Shape) (tensor.Shape, error)

	// Forward computes the output tensor from resolved input tensors.
	Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor

	// Backward computes gradients for each input given the output
	// gradient. The returned slice corresponds positionally to inputs;
	// a nil entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, output *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor
}

// StateCarrier is implemented by kernels with internal state that must
// survive serialization (e.g. RNG seed and offset).
type StateCarrier interface {
	Kernel

	// InternalState returns the kernel's serializable internal state.
	InternalState() map[string]any

	// RestoreState replaces the kernel's internal state.
	RestoreState(state map[string]any) error
}

// factory constructs a kernel from its serialized attributes.
type factory func(attrs map[string]any) (Kernel, error)

var registry = map[string]factory{}

// register adds an operation kind to the kernel registry.
func register(op string, f factory) {
	registry[op] = f
}

// New constructs a kernel for the named operation kind.
func New(op string, attrs map[string]any) (Kernel, error) {
	f, ok := registry[op]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	return f(attrs)
}

// Known reports whether the named operation kind is registered.
func Known(op string) bool {
	_, ok := registry[op]
	return ok
}
