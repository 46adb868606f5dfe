package ops

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// LinearFunction computes y = x @ W^T + b for W of shape [out, in]. Inputs
// with more than two axes are flattened to [batch, in] first.
//
// Backward:
//   - grad_x = grad @ W
//   - grad_W = grad^T @ x
//   - grad_b = sum of grad over the batch axis
type LinearFunction struct{}

// Kind implements autodiff.Function.
func (LinearFunction) Kind() autodiff.Kind { return autodiff.KindLinear }

// Forward implements autodiff.Function.
func (f LinearFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 3); err != nil {
		return nil, err
	}
	b := ctx.Backend
	x := flatten2D(in[0], b)
	y := b.MatMul(x, in[1], false, true)
	if len(in) == 3 {
		y = b.Add(y, in[2])
	}
	return one(y), nil
}

// Backward implements autodiff.Function.
func (LinearFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	x := flatten2D(in[0], b)

	gx := b.MatMul(g[0], in[1], false, false)
	if !gx.Shape().Equal(in[0].Shape()) {
		gx = b.Reshape(gx, in[0].Shape())
	}
	grads := []*tensor.RawTensor{gx, b.MatMul(g[0], x, true, false)}
	if len(in) == 3 {
		grads = append(grads, reduceBroadcast(g[0], in[2].Shape(), b))
	}
	return grads, nil
}

func flatten2D(x *tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 2 {
		return x
	}
	return b.Reshape(x, tensor.Shape{shape[0], shape.NumElements() / shape[0]})
}

// Linear returns x @ W^T + b. The bias may be nil.
func Linear(x, w, bias *autodiff.Variable) (*autodiff.Variable, error) {
	if bias == nil {
		return apply(LinearFunction{}, x, w)
	}
	return apply(LinearFunction{}, x, w, bias)
}
