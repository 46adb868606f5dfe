// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor buffers that models are traced on.
//
// A RawTensor is a dense, row-major buffer with a Shape and a DataType.
// Exported models store parameters as RawTensors and the ONNX initializers
// are written from their bytes unchanged.
//
//	x := tensor.Zeros(tensor.Shape{1, 3, 28, 28}, tensor.Float32)
//	w, _ := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
package tensor

import (
	"math/rand"

	"github.com/born-ml/onnxport/internal/tensor"
)

// RawTensor is a typed, shaped byte buffer.
type RawTensor = tensor.RawTensor

// Shape lists the dimensions of a tensor, outermost first.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Backend computes tensor operations.
type Backend = tensor.Backend

// Float is the set of floating point element types.
type Float = tensor.Float

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Zeros returns a tensor filled with zeros.
func Zeros(shape Shape, dtype DataType) *RawTensor { return tensor.Zeros(shape, dtype) }

// Ones returns a tensor filled with ones.
func Ones(shape Shape, dtype DataType) *RawTensor { return tensor.Ones(shape, dtype) }

// Full returns a tensor filled with value.
func Full(shape Shape, dtype DataType, value float64) *RawTensor {
	return tensor.Full(shape, dtype, value)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T Float](shape Shape, data []T) (*RawTensor, error) {
	return tensor.FromSlice(shape, data)
}

// RandUniform returns a tensor of values drawn uniformly from [low, high).
func RandUniform(shape Shape, dtype DataType, low, high float64, rng *rand.Rand) *RawTensor {
	return tensor.RandUniform(shape, dtype, low, high, rng)
}
