// Package exec compiles a variable/node graph into an executable plan and
// drives forward and backward evaluation against an execution substrate.
// One plan is exclusively owned by one composite aggregate.
package exec

import (
	"errors"

	"github.com/weft-ml/weft/internal/tensor"
)

// Plan execution errors.
var (
	ErrStorageRevoked        = errors.New("storage handle has been revoked")
	ErrUnresolvedPlaceholder = errors.New("graph contains an unresolved placeholder")
	ErrNodeNotOwned          = errors.New("reachable node is not part of the aggregate's owned set")
	ErrMissingInput          = errors.New("no value provided for graph input")
	ErrExcludedGradient      = errors.New("gradient requested for an input excluded from gradient computation")
	ErrRootNotRetained       = errors.New("backward state was not retained for this root")
)

// Arena is the storage pool backing one execution plan. Slots hold the
// tensors produced during evaluation; a generation counter stamps every
// handle issued so that a rebuild cleanly invalidates stale handles
// instead of letting them alias reused memory.
type Arena struct {
	slots      []*tensor.RawTensor
	generation uint64
}

// NewArena creates an empty arena at generation 1.
func NewArena() *Arena {
	return &Arena{generation: 1}
}

// Alloc reserves a new slot and returns its index.
func (a *Arena) Alloc() int {
	a.slots = append(a.slots, nil)
	return len(a.slots) - 1
}

// Set stores a tensor into a slot.
func (a *Arena) Set(slot int, t *tensor.RawTensor) {
	a.slots[slot] = t
}

// Get returns the tensor currently held by a slot.
func (a *Arena) Get(slot int) *tensor.RawTensor {
	return a.slots[slot]
}

// Generation returns the arena's current generation stamp.
func (a *Arena) Generation() uint64 {
	return a.generation
}

// Invalidate drops all slot contents and advances the generation,
// permanently revoking every handle issued so far.
func (a *Arena) Invalidate() {
	for i := range a.slots {
		a.slots[i] = nil
	}
	a.generation++
}

// Handle is a revocable reference to plan-owned storage: a slot index plus
// the generation it was issued under. Output and gradient values are
// handed to callers through handles so a plan rebuild can proactively
// erase them rather than leave them silently aliasing stale memory.
type Handle struct {
	arena      *Arena
	slot       int
	generation uint64
	erased     bool
}

func newHandle(a *Arena, slot int) *Handle {
	return &Handle{arena: a, slot: slot, generation: a.generation}
}

// Tensor dereferences the handle. It fails cleanly once the handle has
// been erased or the backing arena has moved on to a new generation.
func (h *Handle) Tensor() (*tensor.RawTensor, error) {
	if h.erased || h.generation != h.arena.generation {
		return nil, ErrStorageRevoked
	}
	t := h.arena.Get(h.slot)
	if t == nil {
		return nil, ErrStorageRevoked
	}
	return t, nil
}

// Erase permanently revokes the handle.
func (h *Handle) Erase() {
	h.erased = true
}

// Valid reports whether the handle can still be dereferenced.
func (h *Handle) Valid() bool {
	_, err := h.Tensor()
	return err == nil
}
