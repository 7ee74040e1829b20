package composite

import (
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// BackPropState is the continuation token linking a Forward call to the
// Backward call that consumes it. It pins the aggregate, the device the
// forward pass ran on, the plan epoch, and the per-root forward-pass
// timestamp captured when that root's value was computed.
// Immutable once created.
type BackPropState struct {
	aggregate *Composite
	device    tensor.Device
	epoch     uint64
	rootStamp map[*graph.Variable]uint64
}

// Aggregate returns the composite the state was produced from.
func (s *BackPropState) Aggregate() *Composite { return s.aggregate }

// Device returns the compute device the forward pass executed on.
func (s *BackPropState) Device() tensor.Device { return s.device }

// RootTimestamps returns the per-root forward timestamps.
func (s *BackPropState) RootTimestamps() map[*graph.Variable]uint64 {
	out := make(map[*graph.Variable]uint64, len(s.rootStamp))
	for v, ts := range s.rootStamp {
		out[v] = ts
	}
	return out
}
