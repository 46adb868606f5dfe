package nn

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer. The stride defaults to the kernel size.
type MaxPool2D struct {
	Window tensor.Window2D
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernel [2]int, opts ...Option) *MaxPool2D {
	return &MaxPool2D{Window: poolWindow(kernel, opts)}
}

// Forward applies max pooling.
func (p *MaxPool2D) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	return ops.MaxPool2D(x, p.Window)
}

// NamedParams returns nil.
func (*MaxPool2D) NamedParams() []NamedParam { return nil }

// AvgPool2D is a 2D average pooling layer. The stride defaults to the kernel size.
type AvgPool2D struct {
	Window tensor.Window2D
}

// NewAvgPool2D creates an average pooling layer.
func NewAvgPool2D(kernel [2]int, opts ...Option) *AvgPool2D {
	return &AvgPool2D{Window: poolWindow(kernel, opts)}
}

// Forward applies average pooling.
func (p *AvgPool2D) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	return ops.AvgPool2D(x, p.Window)
}

// NamedParams returns nil.
func (*AvgPool2D) NamedParams() []NamedParam { return nil }

func poolWindow(kernel [2]int, opts []Option) tensor.Window2D {
	o := options{stride: kernel}
	for _, opt := range opts {
		opt(&o)
	}
	return tensor.Window2D{Kernel: kernel, Stride: o.stride, Pad: o.pad}
}
