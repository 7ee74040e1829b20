// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides gradient-descent optimizers over graph
// Parameters.
package optim

import (
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/optim"
)

// Optimizer is the common interface for all optimizers.
type Optimizer = optim.Optimizer

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig configures an SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer over the given Parameters.
func NewSGD(params []*graph.Variable, cfg SGDConfig) (*SGD, error) {
	return optim.NewSGD(params, cfg)
}

// Adam is adaptive moment estimation.
type Adam = optim.Adam

// AdamConfig configures an Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates an Adam optimizer over the given Parameters.
func NewAdam(params []*graph.Variable, cfg AdamConfig) (*Adam, error) {
	return optim.NewAdam(params, cfg)
}
