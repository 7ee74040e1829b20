package optim

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Adam implements adaptive moment estimation.
//
//	m = beta1*m + (1-beta1)*grad
//	v = beta2*v + (1-beta2)*grad^2
//	param -= lr * (m / (1-beta1^t)) / (sqrt(v / (1-beta2^t)) + eps)
//
// Reference: Kingma & Ba, 2014.
type Adam struct {
	params []*graph.Variable
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	m      map[*graph.Variable]*tensor.RawTensor
	v      map[*graph.Variable]*tensor.RawTensor
}

// AdamConfig configures an Adam optimizer. Zero values take the usual
// defaults: LR 0.001, Betas 0.9/0.999, Eps 1e-8.
type AdamConfig struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
}

// NewAdam builds an Adam optimizer over the given Parameters.
func NewAdam(params []*graph.Variable, cfg AdamConfig) (*Adam, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if cfg.LR == 0 {
		cfg.LR = 0.001
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     cfg.LR,
		beta1:  cfg.Beta1,
		beta2:  cfg.Beta2,
		eps:    cfg.Eps,
		m:      make(map[*graph.Variable]*tensor.RawTensor),
		v:      make(map[*graph.Variable]*tensor.RawTensor),
	}, nil
}

// Step applies one bias-corrected update to every parameter with a
// gradient in grads.
func (a *Adam) Step(grads map[*graph.Variable]*tensor.RawTensor) error {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range a.params {
		grad, ok := grads[p]
		if !ok {
			continue
		}
		if !grad.Shape().Equal(p.Value().Shape()) || grad.DType() != p.Value().DType() {
			return fmt.Errorf("optim: gradient %s does not match parameter %s", grad, p)
		}

		m, ok := a.m[p]
		if !ok {
			m = tensor.ZerosLikeRaw(p.Value())
			a.m[p] = m
		}
		v, ok := a.v[p]
		if !ok {
			v = tensor.ZerosLikeRaw(p.Value())
			a.v[p] = v
		}

		switch p.Value().DType() {
		case tensor.Float32:
			adamUpdate(p.Value().AsFloat32(), grad.AsFloat32(), m.AsFloat32(), v.AsFloat32(),
				float32(a.beta1), float32(a.beta2), float32(a.lr), float32(a.eps), float32(c1), float32(c2))
		case tensor.Float64:
			adamUpdate(p.Value().AsFloat64(), grad.AsFloat64(), m.AsFloat64(), v.AsFloat64(),
				a.beta1, a.beta2, a.lr, a.eps, c1, c2)
		default:
			return fmt.Errorf("optim: unsupported dtype %s", p.Value().DType())
		}
		p.RecordValueUpdate()
	}
	return nil
}

func adamUpdate[T tensor.DType](param, grad, m, v []T, beta1, beta2, lr, eps, c1, c2 T) {
	for i := range param {
		g := grad[i]
		m[i] = beta1*m[i] + (1-beta1)*g
		v[i] = beta2*v[i] + (1-beta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		param[i] -= lr * mHat / (T(math.Sqrt(float64(vHat))) + eps)
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) { a.lr = lr }
