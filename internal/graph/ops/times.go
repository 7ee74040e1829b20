package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// OpTimes is matrix multiplication: output = a @ b.
const OpTimes = "Times"

func init() {
	register(OpTimes, func(map[string]any) (Kernel, error) { return timesKernel{}, nil })
}

// timesKernel computes output = a @ b for 2D operands.
//
// Backward: d(A@B)/dA = grad @ Bᵀ, d(A@B)/dB = Aᵀ @ grad.
type timesKernel struct{}

func (timesKernel) OpName() string { return OpTimes }

func (timesKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("%s: expected 2 inputs, got %d", OpTimes, len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if len(a) != 2 || len(b) != 2 {
		return nil, fmt.Errorf("%s: expected 2D operands, got %v @ %v", OpTimes, a, b)
	}
	if a[1] != b[0] {
		return nil, fmt.Errorf("%s: inner dimensions do not match: %v @ %v", OpTimes, a, b)
	}
	return tensor.Shape{a[0], b[1]}, nil
}

func (timesKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	return b.MatMul(inputs[0], inputs[1])
}

func (timesKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	a, c := inputs[0], inputs[1]
	gradA := b.MatMul(outputGrad, b.Transpose(c))
	gradB := b.MatMul(b.Transpose(a), outputGrad)
	return []*tensor.RawTensor{gradA, gradB}
}
