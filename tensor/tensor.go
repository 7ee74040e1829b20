// Copyright 2026 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for tensor values in the Weft
// graph engine.
//
// The package defines the dense tensor container shared by every graph
// operation:
//   - Tensor[T, B]: high-level generic tensor with type safety
//   - RawTensor: untyped dense storage the execution engine works on
//   - Backend: interface for device-specific compute implementations
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
package tensor

import (
	"github.com/weft-ml/weft/internal/tensor"
)

// DType is the constraint for tensor element types.
type DType = tensor.DType

// DataType identifies the element type of a tensor at runtime.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device identifies where tensor data lives.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	CUDA   Device = tensor.CUDA
	Vulkan Device = tensor.Vulkan
	Metal  Device = tensor.Metal
	WebGPU Device = tensor.WebGPU
)

// Shape holds the dimensions of a tensor.
type Shape = tensor.Shape

// Backend is the compute interface graph kernels run against.
type Backend = tensor.Backend

// RawTensor is the untyped dense tensor the execution engine stores and
// moves. Most callers work with Tensor instead.
type RawTensor = tensor.RawTensor

// Tensor is a typed view over a RawTensor.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// ParseDataType resolves a data type by name.
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}

// BroadcastShapes computes the broadcast result shape of two operand
// shapes, reporting whether broadcasting was needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}

// NewRaw allocates an untyped tensor filled with zeros.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// New wraps a RawTensor in a typed view.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T](raw, b)
}

// FromSlice builds a typed tensor from a flat data slice.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros builds a typed tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}

// Ones builds a typed tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T](shape, b)
}

// Full builds a typed tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}
