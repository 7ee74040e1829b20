package optim

import (
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum: param -= lr * grad.
// With momentum: velocity = momentum*velocity + grad; param -= lr*velocity.
type SGD struct {
	params     []*graph.Variable
	lr         float64
	momentum   float64
	velocities map[*graph.Variable]*tensor.RawTensor
}

// SGDConfig configures an SGD optimizer. A zero LR defaults to 0.01.
type SGDConfig struct {
	LR       float64
	Momentum float64
}

// NewSGD builds an SGD optimizer over the given Parameters.
func NewSGD(params []*graph.Variable, cfg SGDConfig) (*SGD, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if cfg.LR == 0 {
		cfg.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         cfg.LR,
		momentum:   cfg.Momentum,
		velocities: make(map[*graph.Variable]*tensor.RawTensor),
	}, nil
}

// Step applies one update to every parameter with a gradient in grads.
// Each touched parameter's timestamp advances, so cached execution
// plans over it go stale.
func (s *SGD) Step(grads map[*graph.Variable]*tensor.RawTensor) error {
	for _, p := range s.params {
		grad, ok := grads[p]
		if !ok {
			continue
		}

		update := grad
		if s.momentum != 0 {
			v, ok := s.velocities[p]
			if !ok {
				v = tensor.ZerosLikeRaw(p.Value())
				s.velocities[p] = v
			}
			scale(s.momentum, v)
			if err := axpy(1, grad, v); err != nil {
				return err
			}
			update = v
		}

		if err := axpy(-s.lr, update, p.Value()); err != nil {
			return err
		}
		p.RecordValueUpdate()
	}
	return nil
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return s.lr }

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }
