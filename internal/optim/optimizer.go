// Package optim implements gradient-descent parameter updates over
// graph Parameters.
//
// Every update goes through Variable value mutation, so each Step
// advances the touched Parameters' timestamps and any cached execution
// plan built over them is invalidated on the next forward pass.
package optim

import (
	"fmt"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Optimizer applies gradient updates to a fixed set of Parameters.
type Optimizer interface {
	// Step updates every managed Parameter that has a gradient in the
	// map. Parameters without a gradient are skipped.
	Step(grads map[*graph.Variable]*tensor.RawTensor) error

	// LR returns the current learning rate.
	LR() float64

	// SetLR updates the learning rate, for scheduling.
	SetLR(lr float64)
}

// validateParams rejects non-Parameter variables up front so Step never
// has to.
func validateParams(params []*graph.Variable) error {
	for _, p := range params {
		if p.Kind() != graph.Parameter {
			return fmt.Errorf("optim: %s is a %s, not a Parameter", p, p.Kind())
		}
		if p.Value() == nil {
			return fmt.Errorf("optim: parameter %s has no value", p)
		}
	}
	return nil
}

// axpy computes dst[i] += alpha*src[i] elementwise over matching raw
// tensors, in either float width.
func axpy(alpha float64, src, dst *tensor.RawTensor) error {
	if !src.Shape().Equal(dst.Shape()) || src.DType() != dst.DType() {
		return fmt.Errorf("optim: gradient %s does not match parameter %s", src, dst)
	}
	switch dst.DType() {
	case tensor.Float32:
		d, s := dst.AsFloat32(), src.AsFloat32()
		a := float32(alpha)
		for i := range d {
			d[i] += a * s[i]
		}
	case tensor.Float64:
		d, s := dst.AsFloat64(), src.AsFloat64()
		for i := range d {
			d[i] += alpha * s[i]
		}
	default:
		return fmt.Errorf("optim: unsupported dtype %s", dst.DType())
	}
	return nil
}

// scale computes t[i] *= alpha elementwise.
func scale(alpha float64, t *tensor.RawTensor) {
	switch t.DType() {
	case tensor.Float32:
		d := t.AsFloat32()
		a := float32(alpha)
		for i := range d {
			d[i] *= a
		}
	case tensor.Float64:
		d := t.AsFloat64()
		for i := range d {
			d[i] *= alpha
		}
	}
}
