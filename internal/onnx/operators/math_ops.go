package operators

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", binary("Add", tensor.Backend.Add))
	r.Register("Sub", binary("Sub", tensor.Backend.Sub))
	r.Register("Mul", binary("Mul", tensor.Backend.Mul))
	r.Register("Div", binary("Div", tensor.Backend.Div))
	r.Register("Neg", unary("Neg", tensor.Backend.Neg))
	r.Register("Abs", unary("Abs", tensor.Backend.Abs))
	r.Register("Gemm", handleGemm)
}

// binary adapts an element-wise backend method. Broadcasting follows NumPy
// rules, which covers the legacy broadcast=1 suffix form.
func binary(op string, fn func(tensor.Backend, *tensor.RawTensor, *tensor.RawTensor) *tensor.RawTensor) OpHandler {
	return func(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(op, inputs, 2, 2); err != nil {
			return nil, err
		}
		if axis := GetAttrInt(node, "axis", -1); axis >= 0 {
			return nil, fmt.Errorf("%s: broadcast axis %d not supported", op, axis)
		}
		return single(fn(ctx.Backend, inputs[0], inputs[1])), nil
	}
}

func unary(op string, fn func(tensor.Backend, *tensor.RawTensor) *tensor.RawTensor) OpHandler {
	return func(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(op, inputs, 1, 1); err != nil {
			return nil, err
		}
		return single(fn(ctx.Backend, inputs[0])), nil
	}
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A*B + beta*C.
func handleGemm(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("Gemm", inputs, 2, 3); err != nil {
		return nil, err
	}

	alpha := GetAttrFloat(node, "alpha", 1.0)
	beta := GetAttrFloat(node, "beta", 1.0)
	transA := GetAttrInt(node, "transA", 0) != 0
	transB := GetAttrInt(node, "transB", 0) != 0

	a, b := inputs[0], inputs[1]
	// Exported Linear layers feed NCHW activations straight into Gemm.
	if shape := a.Shape(); len(shape) > 2 && !transA {
		a = ctx.Backend.Reshape(a, tensor.Shape{shape[0], shape.NumElements() / shape[0]})
	}
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		return nil, fmt.Errorf("gemm requires 2D operands, got %v and %v", a.Shape(), b.Shape())
	}

	result := ctx.Backend.MatMul(a, b, transA, transB)
	if alpha != 1.0 {
		result = ctx.Backend.Scale(result, float64(alpha))
	}

	if len(inputs) == 3 && inputs[2] != nil && beta != 0 {
		c := inputs[2]
		if beta != 1.0 {
			c = ctx.Backend.Scale(c, float64(beta))
		}
		result = ctx.Backend.Add(result, c)
	}

	return single(result), nil
}
