// Package graph defines the symbolic computation graph model: operation
// nodes wired together by typed variable edges, plus the traversal and
// placeholder-substitution machinery every higher layer builds on.
package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/weft-ml/weft/internal/tensor"
)

// VarKind classifies a variable edge.
type VarKind int

// Variable kinds.
const (
	Input VarKind = iota
	Output
	Placeholder
	Constant
	Parameter
)

// String returns a human-readable kind name.
func (k VarKind) String() string {
	switch k {
	case Input:
		return "Input"
	case Output:
		return "Output"
	case Placeholder:
		return "Placeholder"
	case Constant:
		return "Constant"
	case Parameter:
		return "Parameter"
	default:
		return "Unknown"
	}
}

// Variable is a typed value slot: the edge type of the graph.
//
// An Output variable carries a back-reference to the node that produces
// it. That reference is lookup-only: the authoritative ownership of nodes
// lives in the composite aggregate's owned set, never in variables.
type Variable struct {
	uid   string
	name  string
	kind  VarKind
	shape tensor.Shape
	dtype tensor.DataType

	owner Node // producing node, Output kind only

	value     *tensor.RawTensor // Constant and Parameter kinds only
	timestamp atomic.Uint64     // Parameter value timestamp
}

// generateUID produces a unique identifier with a readable prefix.
func generateUID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// NewInput creates an Input variable: a leaf bound to a caller-provided
// value at every execution.
func NewInput(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return &Variable{
		uid:   generateUID("Input"),
		name:  name,
		kind:  Input,
		shape: shape.Clone(),
		dtype: dtype,
	}
}

// NewPlaceholder creates an unresolved input. A graph holding unresolved
// placeholders is not executable until they are substituted.
func NewPlaceholder(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return &Variable{
		uid:   generateUID("Placeholder"),
		name:  name,
		kind:  Placeholder,
		shape: shape.Clone(),
		dtype: dtype,
	}
}

// NewConstant creates a Constant variable holding a fixed value.
func NewConstant(name string, value *tensor.RawTensor) *Variable {
	return &Variable{
		uid:   generateUID("Constant"),
		name:  name,
		kind:  Constant,
		shape: value.Shape().Clone(),
		dtype: value.DType(),
		value: value,
	}
}

// NewParameter creates a Parameter variable holding a mutable learned
// value. Its timestamp starts at zero and is bumped on every mutation.
func NewParameter(name string, value *tensor.RawTensor) *Variable {
	return &Variable{
		uid:   generateUID("Parameter"),
		name:  name,
		kind:  Parameter,
		shape: value.Shape().Clone(),
		dtype: value.DType(),
		value: value,
	}
}

// newOutput creates an Output variable produced by the given node.
func newOutput(owner Node, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return &Variable{
		uid:   generateUID("Output"),
		kind:  Output,
		shape: shape.Clone(),
		dtype: dtype,
		owner: owner,
	}
}

// UID returns the variable's unique identifier.
func (v *Variable) UID() string { return v.uid }

// Name returns the variable's optional display name.
func (v *Variable) Name() string { return v.name }

// Kind returns the variable kind.
func (v *Variable) Kind() VarKind { return v.kind }

// Shape returns the variable's shape.
func (v *Variable) Shape() tensor.Shape { return v.shape }

// DType returns the variable's data type.
func (v *Variable) DType() tensor.DataType { return v.dtype }

// IsOutput reports whether the variable is produced by a node.
func (v *Variable) IsOutput() bool { return v.kind == Output }

// Owner returns the producing node for Output variables, nil otherwise.
// This is a lookup-only association, not an ownership edge.
func (v *Variable) Owner() Node { return v.owner }

// Value returns the current value for Constant and Parameter variables.
func (v *Variable) Value() *tensor.RawTensor { return v.value }

// SetValue replaces a Parameter's value and bumps its timestamp.
func (v *Variable) SetValue(value *tensor.RawTensor) error {
	if v.kind != Parameter {
		return fmt.Errorf("SetValue: variable %q is %s, not Parameter", v.name, v.kind)
	}
	if !value.Shape().Equal(v.shape) {
		return fmt.Errorf("SetValue: shape mismatch %v vs %v", value.Shape(), v.shape)
	}
	v.value = value
	v.timestamp.Add(1)
	return nil
}

// RecordValueUpdate bumps the Parameter's timestamp after an external
// in-place mutation of its value buffer.
func (v *Variable) RecordValueUpdate() {
	if v.kind == Parameter {
		v.timestamp.Add(1)
	}
}

// Timestamp returns the Parameter's current value timestamp.
func (v *Variable) Timestamp() uint64 {
	return v.timestamp.Load()
}

// SetUID overrides the generated UID. Only the deserializer should call
// this, to preserve identity across a save/restore round trip.
func (v *Variable) SetUID(uid string) { v.uid = uid }

// String returns a human-readable representation of the variable.
func (v *Variable) String() string {
	return fmt.Sprintf("%s(%q, %v, %s)", v.kind, v.name, v.shape, v.dtype)
}
