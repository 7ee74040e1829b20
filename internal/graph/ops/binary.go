package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Operation name constants for the elementwise binary kinds.
const (
	OpPlus          = "Plus"
	OpMinus         = "Minus"
	OpElementTimes  = "ElementTimes"
	OpElementDivide = "ElementDivide"
)

func init() {
	register(OpPlus, func(map[string]any) (Kernel, error) { return plusKernel{}, nil })
	register(OpMinus, func(map[string]any) (Kernel, error) { return minusKernel{}, nil })
	register(OpElementTimes, func(map[string]any) (Kernel, error) { return elementTimesKernel{}, nil })
	register(OpElementDivide, func(map[string]any) (Kernel, error) { return elementDivideKernel{}, nil })
}

// broadcastOutputShape is shared shape inference for elementwise binary kinds.
func broadcastOutputShape(op string, inputs []tensor.Shape) (tensor.Shape, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("%s: expected 2 inputs, got %d", op, len(inputs))
	}
	out, _, err := tensor.BroadcastShapes(inputs[0], inputs[1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// reduceBroadcast sums a gradient down to the shape of the input it flows
// to, undoing any forward-pass broadcasting.
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, b tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}

	// Collapse extra leading dimensions.
	for len(grad.Shape()) > len(target) {
		grad = b.SumDim(grad, 0, false)
	}

	// Collapse dimensions the input held as size 1.
	for i, dim := range target {
		if dim == 1 && grad.Shape()[i] != 1 {
			grad = b.SumDim(grad, i, true)
		}
	}

	if !grad.Shape().Equal(target) {
		grad = b.Reshape(grad, target)
	}
	return grad
}

// plusKernel computes output = a + b.
type plusKernel struct{}

func (plusKernel) OpName() string { return OpPlus }

func (plusKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	return broadcastOutputShape(OpPlus, inputs)
}

func (plusKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	return b.Add(inputs[0], inputs[1])
}

func (plusKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, inputs[0].Shape(), b),
		reduceBroadcast(outputGrad, inputs[1].Shape(), b),
	}
}

// minusKernel computes output = a - b.
type minusKernel struct{}

func (minusKernel) OpName() string { return OpMinus }

func (minusKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	return broadcastOutputShape(OpMinus, inputs)
}

func (minusKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	return b.Sub(inputs[0], inputs[1])
}

func (minusKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, inputs[0].Shape(), b),
		reduceBroadcast(b.Neg(outputGrad), inputs[1].Shape(), b),
	}
}

// elementTimesKernel computes output = a * b.
//
// Backward: d(a*b)/da = b, d(a*b)/db = a.
type elementTimesKernel struct{}

func (elementTimesKernel) OpName() string { return OpElementTimes }

func (elementTimesKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	return broadcastOutputShape(OpElementTimes, inputs)
}

func (elementTimesKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	return b.Mul(inputs[0], inputs[1])
}

func (elementTimesKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	a, c := inputs[0], inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(b.Mul(outputGrad, c), a.Shape(), b),
		reduceBroadcast(b.Mul(outputGrad, a), c.Shape(), b),
	}
}

// elementDivideKernel computes output = a / b.
//
// Backward: d(a/b)/da = 1/b, d(a/b)/db = -a/b².
type elementDivideKernel struct{}

func (elementDivideKernel) OpName() string { return OpElementDivide }

func (elementDivideKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	return broadcastOutputShape(OpElementDivide, inputs)
}

func (elementDivideKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	return b.Div(inputs[0], inputs[1])
}

func (elementDivideKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	a, c := inputs[0], inputs[1]
	gradA := b.Div(outputGrad, c)
	gradB := b.Neg(b.Div(b.Mul(outputGrad, a), b.Mul(c, c)))
	return []*tensor.RawTensor{
		reduceBroadcast(gradA, a.Shape(), b),
		reduceBroadcast(gradB, c.Shape(), b),
	}
}
