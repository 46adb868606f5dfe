package nn

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*pad_h - kernel_h) / stride_h + 1
//	out_w = (width + 2*pad_w - kernel_w) / stride_w + 1
type Conv2D struct {
	inChannels  int
	outChannels int
	stride      [2]int
	pad         [2]int

	W *autodiff.Parameter
	B *autodiff.Parameter // nil without bias
}

// NewConv2D creates a new 2D convolutional layer with Xavier initialization.
//
//	// 1 channel -> 6 channels, 5x5 kernel
//	conv := nn.NewConv2D(1, 6, [2]int{5, 5})
func NewConv2D(inChannels, outChannels int, kernel [2]int, opts ...Option) *Conv2D {
	o := buildOptions(opts)
	fanIn := inChannels * kernel[0] * kernel[1]
	fanOut := outChannels * kernel[0] * kernel[1]
	shape := tensor.Shape{outChannels, inChannels, kernel[0], kernel[1]}

	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		stride:      o.stride,
		pad:         o.pad,
		W:           autodiff.NewParameter("W", Xavier(fanIn, fanOut, shape, o.dtype, o.rng)),
	}
	if !o.noBias {
		c.B = autodiff.NewParameter("b", tensor.Zeros(tensor.Shape{outChannels}, o.dtype))
	}
	return c
}

// Forward convolves x with the layer's kernel.
func (c *Conv2D) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		return nil, fmt.Errorf("conv2d: expected input [N,%d,H,W], got %v", c.inChannels, shape)
	}

	g := x.Graph()
	var b *autodiff.Variable
	if c.B != nil {
		b = g.Param(c.B)
	}
	return ops.Conv2D(x, g.Param(c.W), b, c.stride, c.pad)
}

// NamedParams returns "/W" and, with a bias, "/b".
func (c *Conv2D) NamedParams() []NamedParam {
	return leafParams(c.W, c.B)
}
