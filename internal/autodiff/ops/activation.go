package ops

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// ReLUFunction computes max(0, x).
type ReLUFunction struct{}

// Kind implements autodiff.Function.
func (ReLUFunction) Kind() autodiff.Kind { return autodiff.KindReLU }

// Forward implements autodiff.Function.
func (f ReLUFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.ReLU(in[0])), nil
}

// Backward implements autodiff.Function: the gradient passes where x > 0.
func (ReLUFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.ReLUBackward(in[0], g[0])), nil
}

// SigmoidFunction computes the logistic function.
type SigmoidFunction struct{}

// Kind implements autodiff.Function.
func (SigmoidFunction) Kind() autodiff.Kind { return autodiff.KindSigmoid }

// Forward implements autodiff.Function.
func (f SigmoidFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Sigmoid(in[0])), nil
}

// Backward implements autodiff.Function.
func (SigmoidFunction) Backward(ctx autodiff.Context, _, out, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.SigmoidBackward(out[0], g[0])), nil
}

// TanhFunction computes the hyperbolic tangent.
type TanhFunction struct{}

// Kind implements autodiff.Function.
func (TanhFunction) Kind() autodiff.Kind { return autodiff.KindTanh }

// Forward implements autodiff.Function.
func (f TanhFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Tanh(in[0])), nil
}

// Backward implements autodiff.Function.
func (TanhFunction) Backward(ctx autodiff.Context, _, out, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.TanhBackward(out[0], g[0])), nil
}

// SoftmaxFunction normalizes exp(x) along Axis.
type SoftmaxFunction struct {
	Axis int
}

// Kind implements autodiff.Function.
func (*SoftmaxFunction) Kind() autodiff.Kind { return autodiff.KindSoftmax }

// Forward implements autodiff.Function.
func (f *SoftmaxFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Softmax(in[0], f.Axis)), nil
}

// Backward implements autodiff.Function.
func (f *SoftmaxFunction) Backward(ctx autodiff.Context, _, out, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.SoftmaxBackward(out[0], g[0], f.Axis)), nil
}

// PReLUFunction is the parametric ReLU: x where x >= 0, W*x elsewhere. The
// slope W spans the axes following the batch axis.
type PReLUFunction struct{}

// Kind implements autodiff.Function.
func (PReLUFunction) Kind() autodiff.Kind { return autodiff.KindPReLU }

// Forward implements autodiff.Function.
func (f PReLUFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 2); err != nil {
		return nil, err
	}
	return one(ctx.Backend.PReLU(in[0], in[1])), nil
}

// Backward implements autodiff.Function.
func (PReLUFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	gx, gw := ctx.Backend.PReLUBackward(in[0], in[1], g[0])
	return []*tensor.RawTensor{gx, gw}, nil
}

// ReLU returns max(0, x).
func ReLU(x *autodiff.Variable) (*autodiff.Variable, error) { return apply(ReLUFunction{}, x) }

// Sigmoid returns 1 / (1 + exp(-x)).
func Sigmoid(x *autodiff.Variable) (*autodiff.Variable, error) { return apply(SigmoidFunction{}, x) }

// Tanh returns tanh(x).
func Tanh(x *autodiff.Variable) (*autodiff.Variable, error) { return apply(TanhFunction{}, x) }

// Softmax returns softmax(x) along axis.
func Softmax(x *autodiff.Variable, axis int) (*autodiff.Variable, error) {
	return apply(&SoftmaxFunction{Axis: axis}, x)
}

// PReLU returns the parametric ReLU of x with slope w.
func PReLU(x, w *autodiff.Variable) (*autodiff.Variable, error) { return apply(PReLUFunction{}, x, w) }
