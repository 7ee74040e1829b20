// Package composite implements the owning container for a computation
// graph: it anchors the lifetime of every node reachable from its root,
// resolves deferred placeholder bindings, and drives forward/backward
// evaluation through a cached execution plan.
package composite

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/graph/ops"
)

// Composite owns the graph reachable from one root node. The owned set
// holds the authoritative strong references for the whole subgraph:
// variable-to-owner back-links are lookup-only, so without a single
// retention point an acyclic dataflow graph still has no defined owner.
// Topology is immutable after construction except for placeholder
// resolution.
type Composite struct {
	mu sync.Mutex

	uid  string
	name string

	root    graph.Node
	owned   map[graph.Node]struct{}
	outputs []*graph.Variable

	// Execution plan state. The plan is created lazily on first Forward,
	// reused while structurally compatible, rebuilt otherwise.
	plan         *exec.Plan
	planEpoch    uint64
	planOutputs  map[*graph.Variable]struct{}
	planRoots    map[*graph.Variable]struct{}
	planExcluded map[*graph.Variable]struct{}

	// lastParamTimestamps records every involved Parameter's timestamp at
	// the moment the plan was last built. A newer timestamp forces a
	// rebuild before the next forward pass.
	lastParamTimestamps map[*graph.Variable]uint64

	// handles tracks every output/gradient handle issued so far so a
	// rebuild can proactively erase them. A set, so re-registering a
	// handle the plan reissues across passes does not grow it.
	handles map[*exec.Handle]struct{}
}

// Create builds an aggregate owning the root node and every node
// reachable from it, and caches the root's inferred outputs.
func Create(root graph.Node, name string) (*Composite, error) {
	if root == nil {
		return nil, fmt.Errorf("create composite: nil root")
	}
	if len(root.Outputs()) == 0 {
		return nil, fmt.Errorf("create composite: root %q produces no outputs", root.OpName())
	}

	return &Composite{
		uid:     "Composite_" + uuid.NewString(),
		name:    name,
		root:    root,
		owned:   graph.Collect(root),
		outputs: root.Outputs(),
		handles: make(map[*exec.Handle]struct{}),
	}, nil
}

// UID returns the aggregate's unique identifier.
func (c *Composite) UID() string { return c.uid }

// SetUID overrides the generated identifier. Only the deserializer may
// call this, to restore the identity a loaded aggregate was saved with.
func (c *Composite) SetUID(uid string) { c.uid = uid }

// Name returns the aggregate's display name.
func (c *Composite) Name() string { return c.name }

// Root returns the aggregate's entry node.
func (c *Composite) Root() graph.Node { return c.root }

// Outputs returns the aggregate's externally visible output variables.
func (c *Composite) Outputs() []*graph.Variable { return c.outputs }

// Owns reports whether the node is part of the aggregate's owned set.
func (c *Composite) Owns(n graph.Node) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.owned[n]
	return ok
}

// NumOwned returns the size of the owned node set.
func (c *Composite) NumOwned() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owned)
}

// DetermineInputs recomputes the externally visible leaf variables of the
// whole graph, in the requested traversal order.
func (c *Composite) DetermineInputs(order graph.OperandOrder) []*graph.Variable {
	return graph.DetermineInputs(c.root, order)
}

// ReplacePlaceholders substitutes unresolved placeholders per the mapping
// and merges any newly reachable subgraphs into the owned set. The merge
// is idempotent: re-running it over an already-merged subgraph is a no-op.
func (c *Composite) ReplacePlaceholders(replacements map[*graph.Variable]*graph.Variable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced, err := graph.ReplacePlaceholders(c.root, replacements)
	if err != nil {
		return err
	}

	c.onPlaceholdersReplaced(replaced)

	// Topology changed: any cached plan no longer matches the graph.
	c.invalidatePlanLocked()
	return nil
}

// onPlaceholdersReplaced extends the owned set for every placeholder that
// was replaced with an Output variable: the replacement's owner node, and
// everything reachable from it, is newly anchored by this aggregate.
func (c *Composite) onPlaceholdersReplaced(replaced map[*graph.Variable]*graph.Variable) {
	for _, replacement := range replaced {
		if replacement.IsOutput() {
			graph.CollectInto(replacement.Owner(), c.owned)
		}
	}
}

// AsBlock exposes this aggregate as a single composable node. argMap
// binds every unresolved leaf of the aggregate's graph to an outer
// variable.
func (c *Composite) AsBlock(argMap map[*graph.Variable]*graph.Variable, name string) (*graph.BlockNode, error) {
	return graph.NewBlock(c.root, argMap, name)
}

// CopyStateFrom copies internal kernel state (e.g. RNG positions) from an
// equivalent source graph into this one, matching nodes by UID.
func (c *Composite) CopyStateFrom(source *Composite) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byUID := make(map[string]*graph.PrimitiveNode)
	for n := range c.owned {
		if prim, ok := n.(*graph.PrimitiveNode); ok {
			byUID[prim.UID()] = prim
		}
	}

	for n := range source.owned {
		src, ok := n.(*graph.PrimitiveNode)
		if !ok {
			continue
		}
		carrier, ok := src.Kernel().(ops.StateCarrier)
		if !ok {
			continue
		}
		dst, ok := byUID[src.UID()]
		if !ok {
			return fmt.Errorf("copy state: no counterpart for stateful node %s (%s)", src.UID(), src.OpName())
		}
		dstCarrier, ok := dst.Kernel().(ops.StateCarrier)
		if !ok {
			return fmt.Errorf("copy state: counterpart of %s is not stateful", src.UID())
		}
		if err := dstCarrier.RestoreState(carrier.InternalState()); err != nil {
			return err
		}
	}

	return nil
}

// invalidatePlanLocked revokes all issued storage handles and drops the
// cached plan. Callers must hold c.mu.
func (c *Composite) invalidatePlanLocked() {
	if c.plan == nil {
		return
	}

	logger.Debug().
		Str("composite", c.uid).
		Int("handles", len(c.handles)).
		Msg("invalidating execution plan")

	for h := range c.handles {
		h.Erase()
	}
	c.handles = make(map[*exec.Handle]struct{})

	c.plan.Invalidate()
	c.plan = nil
	c.planOutputs = nil
	c.planRoots = nil
	c.planExcluded = nil
	c.lastParamTimestamps = nil
}

// parameterTimestampsAdvancedLocked reports whether any Parameter bound
// into the current plan has been mutated since the plan was built.
func (c *Composite) parameterTimestampsAdvancedLocked() bool {
	for _, p := range c.plan.ParameterLeaves() {
		if p.Timestamp() > c.lastParamTimestamps[p] {
			return true
		}
	}
	return false
}

// rootTimestampLocked computes the forward timestamp of a backprop root:
// the newest value timestamp among the Parameters its value depends on.
func (c *Composite) rootTimestampLocked(root *graph.Variable) uint64 {
	var ts uint64
	for _, p := range c.plan.RootParameters(root) {
		if t := p.Timestamp(); t > ts {
			ts = t
		}
	}
	return ts
}
