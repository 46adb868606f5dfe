package operators

import (
	"github.com/born-ml/onnxport/internal/tensor"
)

// registerActivations adds activation operators to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unary("Relu", tensor.Backend.ReLU))
	r.Register("PRelu", handlePRelu)
	r.Register("Softmax", handleSoftmax)
}

func handlePRelu(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("PRelu", inputs, 2, 2); err != nil {
		return nil, err
	}
	return single(ctx.Backend.PReLU(inputs[0], inputs[1])), nil
}

// handleSoftmax applies the opset 1 definition: the input is coerced to 2D
// as [prod(shape[:axis]), prod(shape[axis:])] and normalized along axis 1.
func handleSoftmax(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("Softmax", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(shape)
	}

	rows := tensor.Shape(shape[:axis]).NumElements()
	flat := ctx.Backend.Reshape(x, tensor.Shape{rows, shape.NumElements() / rows})
	y := ctx.Backend.Softmax(flat, 1)
	return single(ctx.Backend.Reshape(y, shape)), nil
}
