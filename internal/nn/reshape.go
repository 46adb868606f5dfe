package nn

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Reshape changes the shape of its input to Shape (one entry may be -1).
type Reshape struct {
	Shape tensor.Shape
}

// NewReshape creates a Reshape layer.
func NewReshape(shape ...int) *Reshape { return &Reshape{Shape: tensor.Shape(shape)} }

// Forward reshapes x.
func (r *Reshape) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	return ops.Reshape(x, r.Shape)
}

// NamedParams returns nil.
func (*Reshape) NamedParams() []NamedParam { return nil }

// Flatten reshapes [N, ...] to [N, prod(...)].
type Flatten struct{}

// NewFlatten creates a Flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward flattens every axis but the first.
func (*Flatten) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	shape := x.Shape()
	if len(shape) == 0 {
		return ops.Reshape(x, tensor.Shape{1, 1})
	}
	return ops.Reshape(x, tensor.Shape{shape[0], shape.NumElements() / shape[0]})
}

// NamedParams returns nil.
func (*Flatten) NamedParams() []NamedParam { return nil }
