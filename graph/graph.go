// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the public API for building computation
// graphs: typed variables, operation nodes, and the edge wiring between
// them.
//
// Graphs are built bottom-up from leaf variables:
//
//	x := graph.NewInput("x", tensor.Shape{1}, tensor.Float32)
//	y, _ := graph.ElementTimes(x, x, "square")
//
// Evaluation and differentiation live in the composite package.
package graph

import (
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// VarKind classifies a Variable's role in the graph.
type VarKind = graph.VarKind

// Variable kinds.
const (
	Input       VarKind = graph.Input
	Output      VarKind = graph.Output
	Placeholder VarKind = graph.Placeholder
	Constant    VarKind = graph.Constant
	Parameter   VarKind = graph.Parameter
)

// Variable is a typed edge in the graph: an externally fed input, a
// node output, a deferred placeholder, or a stored constant/parameter.
type Variable = graph.Variable

// Node is an operation vertex in the graph.
type Node = graph.Node

// PrimitiveNode applies a single registered operation kernel.
type PrimitiveNode = graph.PrimitiveNode

// BlockNode exposes a nested graph as a single operation.
type BlockNode = graph.BlockNode

// OperandOrder selects the direction node operands are visited in.
type OperandOrder = graph.OperandOrder

// Operand traversal orders.
const (
	DeclaredOrder OperandOrder = graph.DeclaredOrder
	ReversedOrder OperandOrder = graph.ReversedOrder
)

// NewInput creates an externally fed leaf variable.
func NewInput(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return graph.NewInput(name, shape, dtype)
}

// NewPlaceholder creates a deferred leaf variable that must be replaced
// before evaluation.
func NewPlaceholder(name string, shape tensor.Shape, dtype tensor.DataType) *Variable {
	return graph.NewPlaceholder(name, shape, dtype)
}

// NewConstant creates a leaf variable with a fixed value.
func NewConstant(name string, value *tensor.RawTensor) *Variable {
	return graph.NewConstant(name, value)
}

// NewParameter creates a trainable leaf variable.
func NewParameter(name string, value *tensor.RawTensor) *Variable {
	return graph.NewParameter(name, value)
}

// NewPrimitive creates an operation node from a registered operation
// name.
func NewPrimitive(op string, inputs []*Variable, name string) (*PrimitiveNode, error) {
	return graph.NewPrimitive(op, inputs, name)
}

// NewPrimitiveWithAttributes creates an operation node carrying
// operation attributes, such as a dropout rate.
func NewPrimitiveWithAttributes(op string, inputs []*Variable, attrs map[string]any, name string) (*PrimitiveNode, error) {
	return graph.NewPrimitiveWithAttributes(op, inputs, attrs, name)
}

// Elementwise and matrix operation constructors.

func Plus(a, b *Variable, name string) (*PrimitiveNode, error)          { return graph.Plus(a, b, name) }
func Minus(a, b *Variable, name string) (*PrimitiveNode, error)         { return graph.Minus(a, b, name) }
func ElementTimes(a, b *Variable, name string) (*PrimitiveNode, error)  { return graph.ElementTimes(a, b, name) }
func ElementDivide(a, b *Variable, name string) (*PrimitiveNode, error) { return graph.ElementDivide(a, b, name) }
func Times(a, b *Variable, name string) (*PrimitiveNode, error)         { return graph.Times(a, b, name) }
func Tanh(x *Variable, name string) (*PrimitiveNode, error)             { return graph.Tanh(x, name) }
func Sigmoid(x *Variable, name string) (*PrimitiveNode, error)          { return graph.Sigmoid(x, name) }
func Exp(x *Variable, name string) (*PrimitiveNode, error)              { return graph.Exp(x, name) }
func Log(x *Variable, name string) (*PrimitiveNode, error)              { return graph.Log(x, name) }
func Sqrt(x *Variable, name string) (*PrimitiveNode, error)             { return graph.Sqrt(x, name) }

// Dropout creates a stateful dropout node with the given zeroing rate
// and random seed.
func Dropout(x *Variable, rate float64, seed int64, name string) (*PrimitiveNode, error) {
	return graph.Dropout(x, rate, seed, name)
}

// DetermineInputs lists the externally visible leaf variables reachable
// from root, deduplicated, in the requested traversal order.
func DetermineInputs(root Node, order OperandOrder) []*Variable {
	return graph.DetermineInputs(root, order)
}

// FindPlaceholders lists the unresolved placeholders reachable from
// root.
func FindPlaceholders(root Node) []*Variable {
	return graph.FindPlaceholders(root)
}

// PreorderTraverseVariables visits every variable reachable from root,
// parents before operands.
func PreorderTraverseVariables(root Node, visit func(*Variable), order OperandOrder) {
	graph.PreorderTraverseVariables(root, visit, order)
}

// PostorderTraverseVariables visits every variable reachable from root,
// operands before parents.
func PostorderTraverseVariables(root Node, visit func(*Variable), order OperandOrder) {
	graph.PostorderTraverseVariables(root, visit, order)
}
