package cpu

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// unaryOp applies an element-wise unary function.
func (cpu *Backend) unaryOp(name string, x *tensor.RawTensor, f func(v float64) float64) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		xData, out := x.AsFloat32(), result.AsFloat32()
		parallel.For(len(out), func(i int) {
			out[i] = float32(f(float64(xData[i])))
		}, cpu.cfg)
	case tensor.Float64:
		xData, out := x.AsFloat64(), result.AsFloat64()
		parallel.For(len(out), func(i int) {
			out[i] = f(xData[i])
		}, cpu.cfg)
	}

	return result
}

// Neg computes element-wise negation.
func (cpu *Backend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("neg", x, func(v float64) float64 { return -v })
}

// Exp computes element-wise exponential.
func (cpu *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("exp", x, math.Exp)
}

// Log computes element-wise natural logarithm.
func (cpu *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("log", x, math.Log)
}

// Sqrt computes element-wise square root.
func (cpu *Backend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("sqrt", x, math.Sqrt)
}

// Tanh computes element-wise hyperbolic tangent.
func (cpu *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("tanh", x, math.Tanh)
}

// Sigmoid computes element-wise logistic sigmoid: 1 / (1 + exp(-x)).
func (cpu *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("sigmoid", x, func(v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	})
}

// MulScalar multiplies every element by a scalar.
func (cpu *Backend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unaryOp("mulscalar", x, func(v float64) float64 { return v * scalar })
}

// AddScalar adds a scalar to every element.
func (cpu *Backend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unaryOp("addscalar", x, func(v float64) float64 { return v + scalar })
}
