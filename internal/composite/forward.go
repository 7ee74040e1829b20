package composite

import (
	"fmt"

	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Forward evaluates the graph: binds every leaf Input to its value from
// args, populates the caller's outputs map with revocable storage
// handles, and returns a BackPropState for a later Backward over the
// retained roots.
//
// The cached plan is reused when the requested configuration is
// compatible with the one it was built for: same device, requested
// outputs and roots a subset of the built ones, identical excluded set,
// and no Parameter mutated since the build. Anything else forces a
// rebuild, which first revokes all previously issued handles.
func (c *Composite) Forward(
	args map[*graph.Variable]*tensor.RawTensor,
	outputs map[*graph.Variable]*exec.Handle,
	backend tensor.Backend,
	retainBackwardFor []*graph.Variable,
	excludeGradientsFor []*graph.Variable,
) (*BackPropState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outputs == nil {
		outputs = make(map[*graph.Variable]*exec.Handle)
	}
	if ph := graph.FindPlaceholders(c.root); len(ph) > 0 {
		return nil, fmt.Errorf("%w: %s", exec.ErrUnresolvedPlaceholder, ph[0])
	}

	requested := make([]*graph.Variable, 0, len(outputs))
	for v := range outputs {
		requested = append(requested, v)
	}
	if len(requested) == 0 {
		requested = append(requested, c.outputs...)
	}

	requestedSet := toSet(requested)
	for _, root := range retainBackwardFor {
		if _, ok := requestedSet[root]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrRootsNotRequested, root)
		}
	}

	rootSet := toSet(retainBackwardFor)
	excludedSet := toSet(excludeGradientsFor)

	if c.needsBuildLocked(backend.Device(), requestedSet, rootSet, excludedSet) {
		if err := c.buildPlanLocked(backend, requested, retainBackwardFor, excludedSet); err != nil {
			return nil, err
		}
	} else {
		logger.Debug().Str("composite", c.uid).Msg("reusing execution plan")
	}

	if err := c.plan.Forward(args); err != nil {
		return nil, err
	}

	for v := range outputs {
		h, err := c.plan.OutputHandle(v)
		if err != nil {
			return nil, err
		}
		c.handles[h] = struct{}{}
		outputs[v] = h
	}
	if len(outputs) == 0 {
		// Callers that pass an empty map still get the default outputs.
		for _, v := range c.outputs {
			h, err := c.plan.OutputHandle(v)
			if err != nil {
				return nil, err
			}
			c.handles[h] = struct{}{}
			outputs[v] = h
		}
	}

	state := &BackPropState{
		aggregate: c,
		device:    backend.Device(),
		epoch:     c.planEpoch,
		rootStamp: make(map[*graph.Variable]uint64, len(retainBackwardFor)),
	}
	for _, root := range retainBackwardFor {
		state.rootStamp[root] = c.rootTimestampLocked(root)
	}

	return state, nil
}

// ForwardValues is the positional-input Forward overload. Composite
// aggregates bind inputs by variable, never by position, so this always
// fails.
func (c *Composite) ForwardValues(
	_ []*tensor.RawTensor,
	_ map[*graph.Variable]*exec.Handle,
	_ tensor.Backend,
	_ []*graph.Variable,
) (*BackPropState, error) {
	return nil, fmt.Errorf("%w: positional Forward", ErrNotSupported)
}

// Backward consumes a BackPropState: validates it still matches the
// aggregate's current plan and parameter timestamps, runs the reverse
// pass seeded with rootGradients, and populates the caller's gradients
// map for every requested input.
func (c *Composite) Backward(
	state *BackPropState,
	rootGradients map[*graph.Variable]*tensor.RawTensor,
	gradients map[*graph.Variable]*exec.Handle,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == nil || state.aggregate != c {
		return ErrWrongAggregate
	}
	if c.plan == nil {
		return fmt.Errorf("%w: no forward state retained", ErrStaleState)
	}
	if state.device != c.plan.Device() {
		return fmt.Errorf("%w: state device %s, plan device %s", ErrDeviceMismatch, state.device, c.plan.Device())
	}
	if state.epoch != c.planEpoch {
		return fmt.Errorf("%w: plan was rebuilt after the forward pass", ErrStaleState)
	}
	for root, recorded := range state.rootStamp {
		if current := c.rootTimestampLocked(root); current != recorded {
			return fmt.Errorf("%w: parameter values for root %s changed (timestamp %d, recorded %d)",
				ErrStaleState, root, current, recorded)
		}
	}

	requested := make([]*graph.Variable, 0, len(gradients))
	for v := range gradients {
		requested = append(requested, v)
	}

	result, err := c.plan.Backward(rootGradients, requested)
	if err != nil {
		return err
	}
	for v, h := range result {
		c.handles[h] = struct{}{}
		gradients[v] = h
	}

	return nil
}

// needsBuildLocked decides between reuse and rebuild. Device change and
// timestamp advance are independent triggers: either alone forces a full
// rebuild, there is no partial reuse across a device change.
func (c *Composite) needsBuildLocked(
	device tensor.Device,
	requested, roots, excluded map[*graph.Variable]struct{},
) bool {
	if c.plan == nil {
		return true
	}
	if c.plan.Device() != device {
		return true
	}
	if !subset(requested, c.planOutputs) {
		return true
	}
	if !subset(roots, c.planRoots) {
		return true
	}
	if !setsEqual(excluded, c.planExcluded) {
		return true
	}
	return c.parameterTimestampsAdvancedLocked()
}

func (c *Composite) buildPlanLocked(
	backend tensor.Backend,
	requested []*graph.Variable,
	roots []*graph.Variable,
	excluded map[*graph.Variable]struct{},
) error {
	c.invalidatePlanLocked()

	logger.Debug().
		Str("composite", c.uid).
		Stringer("device", backend.Device()).
		Int("outputs", len(requested)).
		Int("backprop_roots", len(roots)).
		Msg("building execution plan")

	plan, err := exec.Build(exec.Options{
		Backend:        backend,
		Outputs:        requested,
		BackpropRoots:  roots,
		ExcludedInputs: excluded,
		Owned:          c.owned,
	})
	if err != nil {
		return err
	}

	c.plan = plan
	c.planEpoch++
	c.planOutputs = toSet(requested)
	c.planRoots = toSet(roots)
	c.planExcluded = excluded

	c.lastParamTimestamps = make(map[*graph.Variable]uint64)
	for _, p := range plan.ParameterLeaves() {
		c.lastParamTimestamps[p] = p.Timestamp()
	}

	return nil
}

func toSet(vars []*graph.Variable) map[*graph.Variable]struct{} {
	s := make(map[*graph.Variable]struct{}, len(vars))
	for _, v := range vars {
		s[v] = struct{}{}
	}
	return s
}

func subset(a, b map[*graph.Variable]struct{}) bool {
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}

func setsEqual(a, b map[*graph.Variable]struct{}) bool {
	return len(a) == len(b) && subset(a, b)
}
