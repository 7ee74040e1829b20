package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Operation name constants for the elementwise unary kinds.
const (
	OpTanh    = "Tanh"
	OpSigmoid = "Sigmoid"
	OpExp     = "Exp"
	OpLog     = "Log"
	OpSqrt    = "Sqrt"
)

func init() {
	register(OpTanh, func(map[string]any) (Kernel, error) { return unaryKernel{op: OpTanh}, nil })
	register(OpSigmoid, func(map[string]any) (Kernel, error) { return unaryKernel{op: OpSigmoid}, nil })
	register(OpExp, func(map[string]any) (Kernel, error) { return unaryKernel{op: OpExp}, nil })
	register(OpLog, func(map[string]any) (Kernel, error) { return unaryKernel{op: OpLog}, nil })
	register(OpSqrt, func(map[string]any) (Kernel, error) { return unaryKernel{op: OpSqrt}, nil })
}

// unaryKernel implements the elementwise unary kinds. Where possible the
// backward pass reuses the forward output instead of recomputing.
type unaryKernel struct {
	op string
}

func (k unaryKernel) OpName() string { return k.op }

func (k unaryKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input, got %d", k.op, len(inputs))
	}
	return inputs[0].Clone(), nil
}

func (k unaryKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	x := inputs[0]
	switch k.op {
	case OpTanh:
		return b.Tanh(x)
	case OpSigmoid:
		return b.Sigmoid(x)
	case OpExp:
		return b.Exp(x)
	case OpLog:
		return b.Log(x)
	case OpSqrt:
		return b.Sqrt(x)
	default:
		panic("unreachable")
	}
}

func (k unaryKernel) Backward(outputGrad *tensor.RawTensor, inputs []*tensor.RawTensor, output *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	x := inputs[0]
	var grad *tensor.RawTensor

	switch k.op {
	case OpTanh:
		// d tanh(x)/dx = 1 - tanh(x)²
		grad = b.Mul(outputGrad, b.AddScalar(b.Neg(b.Mul(output, output)), 1))
	case OpSigmoid:
		// d σ(x)/dx = σ(x)(1 - σ(x))
		grad = b.Mul(outputGrad, b.Mul(output, b.AddScalar(b.Neg(output), 1)))
	case OpExp:
		// d exp(x)/dx = exp(x)
		grad = b.Mul(outputGrad, output)
	case OpLog:
		// d log(x)/dx = 1/x
		grad = b.Div(outputGrad, x)
	case OpSqrt:
		// d sqrt(x)/dx = 1/(2 sqrt(x))
		grad = b.Div(outputGrad, b.MulScalar(output, 2))
	default:
		panic("unreachable")
	}

	return []*tensor.RawTensor{grad}
}
