package ops

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Convolution2DFunction is a 2D convolution over NCHW input with kernel
// W [C_out, C_in, K_h, K_w] and an optional bias b [C_out].
//
// Backward (gradients):
//   - d_input:  transposed convolution of d_output with the kernel
//   - d_kernel: correlation of the input with d_output
//   - d_bias:   d_output summed over batch and spatial axes
type Convolution2DFunction struct {
	Stride [2]int
	Pad    [2]int
}

// Kind implements autodiff.Function.
func (*Convolution2DFunction) Kind() autodiff.Kind { return autodiff.KindConvolution2D }

// Forward implements autodiff.Function.
func (f *Convolution2DFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 3); err != nil {
		return nil, err
	}
	var bias *tensor.RawTensor
	if len(in) == 3 {
		bias = in[2]
	}
	return one(ctx.Backend.Conv2D(in[0], in[1], bias, f.Stride, f.Pad)), nil
}

// Backward implements autodiff.Function.
func (f *Convolution2DFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	gx, gw := b.Conv2DBackward(in[0], in[1], g[0], f.Stride, f.Pad)
	grads := []*tensor.RawTensor{gx, gw}
	if len(in) == 3 {
		cout := in[1].Shape()[0]
		gb := b.SumTo(g[0], tensor.Shape{1, cout, 1, 1})
		grads = append(grads, b.Reshape(gb, in[2].Shape()))
	}
	return grads, nil
}

// Conv2D convolves x with w and adds bias when it is not nil.
func Conv2D(x, w, bias *autodiff.Variable, stride, pad [2]int) (*autodiff.Variable, error) {
	fn := &Convolution2DFunction{Stride: stride, Pad: pad}
	if bias == nil {
		return apply(fn, x, w)
	}
	return apply(fn, x, w, bias)
}
