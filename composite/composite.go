// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package composite provides the public API for composite function
// aggregates: evaluation, reverse-mode gradients, placeholder
// resolution, and block nesting over a computation graph.
//
// Example:
//
//	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
//	sq, _ := graph.ElementTimes(x, x, "square")
//	c, _ := composite.Create(sq, "square")
//
//	outputs := map[*graph.Variable]*composite.Handle{sq.Output(): nil}
//	state, _ := c.Forward(args, outputs, backend, []*graph.Variable{sq.Output()}, nil)
package composite

import (
	"github.com/rs/zerolog"

	"github.com/weft-ml/weft/internal/composite"
	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/graph"
)

// Composite owns the set of nodes reachable from its root and evaluates
// them with plan caching and staleness tracking.
type Composite = composite.Composite

// BackPropState is the continuation token Forward returns when backward
// roots are retained, consumed by exactly one later Backward.
type BackPropState = composite.BackPropState

// Handle is a revocable reference to engine-owned tensor storage. A
// plan rebuild revokes all outstanding handles.
type Handle = exec.Handle

// Create builds a composite aggregate over the graph rooted at root.
func Create(root graph.Node, name string) (*Composite, error) {
	return composite.Create(root, name)
}

// SetLogger installs the structured logger engine events are written
// to. The default discards everything.
func SetLogger(l zerolog.Logger) {
	composite.SetLogger(l)
}

// Evaluation and state errors.
var (
	ErrWrongAggregate    = composite.ErrWrongAggregate
	ErrDeviceMismatch    = composite.ErrDeviceMismatch
	ErrStaleState        = composite.ErrStaleState
	ErrRootsNotRequested = composite.ErrRootsNotRequested
	ErrNotSupported      = composite.ErrNotSupported

	ErrStorageRevoked        = exec.ErrStorageRevoked
	ErrUnresolvedPlaceholder = exec.ErrUnresolvedPlaceholder
	ErrNodeNotOwned          = exec.ErrNodeNotOwned
	ErrMissingInput          = exec.ErrMissingInput
	ErrExcludedGradient      = exec.ErrExcludedGradient
	ErrRootNotRetained       = exec.ErrRootNotRetained
)
