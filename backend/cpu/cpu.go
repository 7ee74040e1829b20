// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU compute backend.
package cpu

import (
	internalcpu "github.com/weft-ml/weft/internal/backend/cpu"
	"github.com/weft-ml/weft/tensor"
)

// Backend is the CPU backend implementation. Elementwise and matrix
// kernels are parallelized across a worker pool for large tensors.
type Backend = internalcpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend with the default worker configuration.
func New() *Backend {
	return internalcpu.New()
}
