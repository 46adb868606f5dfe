package nn

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
)

// ReLU applies max(0, x). It has no parameters.
type ReLU struct{}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies ReLU.
func (*ReLU) Forward(x *autodiff.Variable) (*autodiff.Variable, error) { return ops.ReLU(x) }

// NamedParams returns nil.
func (*ReLU) NamedParams() []NamedParam { return nil }

// Sigmoid applies the logistic function.
type Sigmoid struct{}

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

// Forward applies Sigmoid.
func (*Sigmoid) Forward(x *autodiff.Variable) (*autodiff.Variable, error) { return ops.Sigmoid(x) }

// NamedParams returns nil.
func (*Sigmoid) NamedParams() []NamedParam { return nil }

// Tanh applies the hyperbolic tangent.
type Tanh struct{}

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh { return &Tanh{} }

// Forward applies Tanh.
func (*Tanh) Forward(x *autodiff.Variable) (*autodiff.Variable, error) { return ops.Tanh(x) }

// NamedParams returns nil.
func (*Tanh) NamedParams() []NamedParam { return nil }

// Softmax normalizes along Axis.
type Softmax struct {
	Axis int
}

// NewSoftmax creates a Softmax over axis.
func NewSoftmax(axis int) *Softmax { return &Softmax{Axis: axis} }

// Forward applies Softmax.
func (s *Softmax) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	return ops.Softmax(x, s.Axis)
}

// NamedParams returns nil.
func (*Softmax) NamedParams() []NamedParam { return nil }
