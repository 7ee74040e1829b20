package tensor

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}

	// Data is already zero-initialized by make()
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, T(1), b)
}

// Full creates a tensor filled with a specific value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// ScalarRaw creates a single-element RawTensor holding the given value.
// Used by the execution engine to seed root gradients.
func ScalarRaw(value float64, dtype DataType, device Device) *RawTensor {
	raw, err := NewRaw(Shape{1}, dtype, device)
	if err != nil {
		panic(err)
	}
	switch dtype {
	case Float32:
		raw.AsFloat32()[0] = float32(value)
	case Float64:
		raw.AsFloat64()[0] = value
	}
	return raw
}

// ZerosLikeRaw creates a zero-filled RawTensor with the same shape,
// dtype and device as the reference tensor.
func ZerosLikeRaw(ref *RawTensor) *RawTensor {
	raw, err := NewRaw(ref.Shape(), ref.DType(), ref.Device())
	if err != nil {
		panic(err)
	}
	return raw
}

// OnesLikeRaw creates a one-filled RawTensor with the same shape,
// dtype and device as the reference tensor.
func OnesLikeRaw(ref *RawTensor) *RawTensor {
	raw := ZerosLikeRaw(ref)
	switch raw.DType() {
	case Float32:
		data := raw.AsFloat32()
		for i := range data {
			data[i] = 1
		}
	case Float64:
		data := raw.AsFloat64()
		for i := range data {
			data[i] = 1
		}
	}
	return raw
}
