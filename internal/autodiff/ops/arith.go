package ops

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// AddFunction is element-wise addition with broadcasting: y = a + b.
type AddFunction struct{}

// Kind implements autodiff.Function.
func (AddFunction) Kind() autodiff.Kind { return autodiff.KindAdd }

// Forward implements autodiff.Function.
func (f AddFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 2); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Add(in[0], in[1])), nil
}

// Backward implements autodiff.Function. The gradient flows unchanged to both
// operands, reduced over broadcast axes.
func (AddFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	return []*tensor.RawTensor{
		reduceBroadcast(g[0], in[0].Shape(), b),
		reduceBroadcast(g[0], in[1].Shape(), b),
	}, nil
}

// SubFunction is element-wise subtraction: y = a - b.
type SubFunction struct{}

// Kind implements autodiff.Function.
func (SubFunction) Kind() autodiff.Kind { return autodiff.KindSub }

// Forward implements autodiff.Function.
func (f SubFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 2); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Sub(in[0], in[1])), nil
}

// Backward implements autodiff.Function.
func (SubFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	return []*tensor.RawTensor{
		reduceBroadcast(g[0], in[0].Shape(), b),
		reduceBroadcast(b.Neg(g[0]), in[1].Shape(), b),
	}, nil
}

// MulFunction is element-wise multiplication: y = a * b.
type MulFunction struct{}

// Kind implements autodiff.Function.
func (MulFunction) Kind() autodiff.Kind { return autodiff.KindMul }

// Forward implements autodiff.Function.
func (f MulFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 2); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Mul(in[0], in[1])), nil
}

// Backward implements autodiff.Function: grad_a = g*b, grad_b = g*a.
func (MulFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	return []*tensor.RawTensor{
		reduceBroadcast(b.Mul(g[0], in[1]), in[0].Shape(), b),
		reduceBroadcast(b.Mul(g[0], in[0]), in[1].Shape(), b),
	}, nil
}

// DivFunction is element-wise division: y = a / b.
type DivFunction struct{}

// Kind implements autodiff.Function.
func (DivFunction) Kind() autodiff.Kind { return autodiff.KindDiv }

// Forward implements autodiff.Function.
func (f DivFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 2, 2); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Div(in[0], in[1])), nil
}

// Backward implements autodiff.Function: grad_a = g/b, grad_b = -g*y/b.
func (DivFunction) Backward(ctx autodiff.Context, in, out, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	b := ctx.Backend
	ga := b.Div(g[0], in[1])
	gb := b.Neg(b.Mul(ga, out[0]))
	return []*tensor.RawTensor{
		reduceBroadcast(ga, in[0].Shape(), b),
		reduceBroadcast(gb, in[1].Shape(), b),
	}, nil
}

// NegFunction negates its input.
type NegFunction struct{}

// Kind implements autodiff.Function.
func (NegFunction) Kind() autodiff.Kind { return autodiff.KindNeg }

// Forward implements autodiff.Function.
func (f NegFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Neg(in[0])), nil
}

// Backward implements autodiff.Function.
func (NegFunction) Backward(ctx autodiff.Context, _, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.Neg(g[0])), nil
}

// AbsoluteFunction takes the absolute value of its input.
type AbsoluteFunction struct{}

// Kind implements autodiff.Function.
func (AbsoluteFunction) Kind() autodiff.Kind { return autodiff.KindAbsolute }

// Forward implements autodiff.Function.
func (f AbsoluteFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	return one(ctx.Backend.Abs(in[0])), nil
}

// Backward implements autodiff.Function: grad = g * sign(x).
func (AbsoluteFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.Mul(g[0], ctx.Backend.Sign(in[0]))), nil
}

// Add returns a + b.
func Add(a, b *autodiff.Variable) (*autodiff.Variable, error) { return apply(AddFunction{}, a, b) }

// Sub returns a - b.
func Sub(a, b *autodiff.Variable) (*autodiff.Variable, error) { return apply(SubFunction{}, a, b) }

// Mul returns a * b.
func Mul(a, b *autodiff.Variable) (*autodiff.Variable, error) { return apply(MulFunction{}, a, b) }

// Div returns a / b.
func Div(a, b *autodiff.Variable) (*autodiff.Variable, error) { return apply(DivFunction{}, a, b) }

// Neg returns -x.
func Neg(x *autodiff.Variable) (*autodiff.Variable, error) { return apply(NegFunction{}, x) }

// Abs returns |x|.
func Abs(x *autodiff.Variable) (*autodiff.Variable, error) { return apply(AbsoluteFunction{}, x) }
