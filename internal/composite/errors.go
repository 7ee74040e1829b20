package composite

import "errors"

// Errors reported by Forward/Backward and placeholder resolution.
// Structural failures from plan building (unresolved placeholders,
// nodes outside the owned set) surface as the exec package's sentinels.
var (
	// ErrWrongAggregate: the backprop state was produced by a different
	// aggregate.
	ErrWrongAggregate = errors.New("backprop state belongs to a different aggregate")

	// ErrDeviceMismatch: the compute device does not match the one the
	// backprop state was produced on.
	ErrDeviceMismatch = errors.New("compute device does not match backprop state")

	// ErrStaleState: parameter values changed, or the plan was rebuilt,
	// between the Forward that produced the state and this Backward.
	ErrStaleState = errors.New("backprop state is stale")

	// ErrRootsNotRequested: a backprop root was not among the requested
	// outputs.
	ErrRootsNotRequested = errors.New("backprop root is not a requested output")

	// ErrNotSupported: the operation is explicitly disallowed for
	// composite aggregates.
	ErrNotSupported = errors.New("operation not supported for composite aggregates")
)
