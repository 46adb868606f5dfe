package ops

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// ReshapeFunction changes the shape of its input. Shape may hold a single -1
// entry, which is inferred from the element count.
type ReshapeFunction struct {
	Shape tensor.Shape
}

// Kind implements autodiff.Function.
func (*ReshapeFunction) Kind() autodiff.Kind { return autodiff.KindReshape }

// Forward implements autodiff.Function.
func (f *ReshapeFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 1, 1); err != nil {
		return nil, err
	}
	target, err := ResolveShape(f.Shape, in[0].NumElements())
	if err != nil {
		return nil, err
	}
	return one(ctx.Backend.Reshape(in[0], target)), nil
}

// Backward implements autodiff.Function.
func (*ReshapeFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return one(ctx.Backend.Reshape(g[0], in[0].Shape())), nil
}

// ResolveShape replaces a single -1 entry of shape so that it holds n elements.
func ResolveShape(shape tensor.Shape, n int) (tensor.Shape, error) {
	out := shape.Clone()
	infer, known := -1, 1
	for i, d := range out {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d == -1:
			return nil, fmt.Errorf("reshape: more than one -1 in %v", shape)
		case d <= 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d in %v", d, shape)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer %v from %d elements", shape, n)
		}
		out[infer] = n / known
	}
	if out.NumElements() != n {
		return nil, fmt.Errorf("reshape: %v does not hold %d elements", shape, n)
	}
	return out, nil
}

// Reshape returns x with a new shape.
func Reshape(x *autodiff.Variable, shape tensor.Shape) (*autodiff.Variable, error) {
	return apply(&ReshapeFunction{Shape: shape.Clone()}, x)
}
