package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	raw, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		panic(err)
	}
	return raw
}

// Full creates a floating point tensor filled with value.
func Full(shape Shape, dtype DataType, value float64) *RawTensor {
	raw := Zeros(shape, dtype)
	switch dtype {
	case Float32:
		fill(raw.AsFloat32(), float32(value))
	case Float64:
		fill(raw.AsFloat64(), value)
	default:
		panic(fmt.Sprintf("full: unsupported dtype %s", dtype))
	}
	return raw
}

// Ones creates a floating point tensor filled with ones.
func Ones(shape Shape, dtype DataType) *RawTensor {
	return Full(shape, dtype, 1)
}

// OnesLike creates a tensor of ones with the shape and dtype of t.
func OnesLike(t *RawTensor) *RawTensor {
	return Ones(t.Shape(), t.DType())
}

// ZerosLike creates a zero tensor with the shape and dtype of t.
func ZerosLike(t *RawTensor) *RawTensor {
	return Zeros(t.Shape(), t.DType())
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T Float](shape Shape, data []T) (*RawTensor, error) {
	raw, err := NewRaw(shape, dataTypeOf[T](), CPU)
	if err != nil {
		return nil, err
	}
	if len(data) != raw.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	copy(Values[T](raw), data)
	return raw, nil
}

// FromInt64s copies data into a new int64 tensor of the given shape.
func FromInt64s(shape Shape, data []int64) (*RawTensor, error) {
	raw, err := NewRaw(shape, Int64, CPU)
	if err != nil {
		return nil, err
	}
	if len(data) != raw.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	copy(raw.AsInt64(), data)
	return raw, nil
}

// RandUniform fills a new tensor with values drawn from U(low, high).
// Uses math/rand (not crypto/rand), which is appropriate for weight init.
func RandUniform(shape Shape, dtype DataType, low, high float64, rng *rand.Rand) *RawTensor {
	raw := Zeros(shape, dtype)
	draw := func() float64 { return low + rng.Float64()*(high-low) } //nolint:gosec // weight init
	switch dtype {
	case Float32:
		for i, data := 0, raw.AsFloat32(); i < len(data); i++ {
			data[i] = float32(draw())
		}
	case Float64:
		for i, data := 0, raw.AsFloat64(); i < len(data); i++ {
			data[i] = draw()
		}
	default:
		panic(fmt.Sprintf("rand: unsupported dtype %s", dtype))
	}
	return raw
}

func fill[T Float](data []T, v T) {
	for i := range data {
		data[i] = v
	}
}
