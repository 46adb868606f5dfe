package ops

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// MaxPooling2D takes the maximum over each window of an NCHW input.
// Padded taps never win.
type MaxPooling2D struct {
	Window tensor.Window2D
}

// Kind implements autodiff.Function.
func (*MaxPooling2D) Kind() autodiff.Kind { return autodiff.KindMaxPooling2D }

// Forward implements autodiff.Function.
func (f *MaxPooling2D) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.MaxPool2D(in[0], f.Window)), nil
}

// Backward implements autodiff.Function.
func (f *MaxPooling2D) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.MaxPool2DBackward(in[0], g[0], f.Window)), nil
}

// AveragePooling2D averages each window of an NCHW input. Padded taps count
// as zeros and the divisor is always the window area.
type AveragePooling2D struct {
	Window tensor.Window2D
}

// Kind implements autodiff.Function.
func (*AveragePooling2D) Kind() autodiff.Kind { return autodiff.KindAveragePooling2D }

// Forward implements autodiff.Function.
func (f *AveragePooling2D) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.AvgPool2D(in[0], f.Window, true)), nil
}

// Backward implements autodiff.Function.
func (f *AveragePooling2D) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.AvgPool2DBackward(g[0], in[0].Shape(), f.Window, true)), nil
}

// MaxPool2D applies max pooling to x.
func MaxPool2D(x *autodiff.Variable, w tensor.Window2D) (*autodiff.Variable, error) {
	return apply(&MaxPooling2D{Window: w}, x)
}

// AvgPool2D applies average pooling to x.
func AvgPool2D(x *autodiff.Variable, w tensor.Window2D) (*autodiff.Variable, error) {
	return apply(&AveragePooling2D{Window: w}, x)
}
