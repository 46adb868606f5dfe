package operators

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", handleReshape)
}

// handleReshape reads the target shape from the legacy "shape" attribute or,
// in newer opsets, from the second input.
func handleReshape(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("Reshape", inputs, 1, 2); err != nil {
		return nil, err
	}

	target := GetAttrInts(node, "shape")
	if len(inputs) == 2 && inputs[1] != nil {
		if inputs[1].DType() != tensor.Int64 {
			return nil, fmt.Errorf("reshape: shape input must be int64, got %s", inputs[1].DType())
		}
		target = inputs[1].AsInt64()
	}
	if target == nil {
		return nil, fmt.Errorf("reshape: no target shape")
	}

	shape, err := resolveShape(inputs[0].Shape(), target)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return single(ctx.Backend.Reshape(inputs[0], shape)), nil
}

// resolveShape applies the ONNX conventions: 0 copies the input dimension and
// a single -1 is inferred.
func resolveShape(in tensor.Shape, target []int64) (tensor.Shape, error) {
	out := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, d := range target {
		switch {
		case d == 0:
			if i >= len(in) {
				return nil, fmt.Errorf("dimension %d copies a missing input axis", i)
			}
			out[i] = in[i]
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("more than one -1 in %v", target)
			}
			infer = i
			continue
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d", d)
		default:
			out[i] = int(d)
		}
		known *= out[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, fmt.Errorf("cannot infer -1 for %v from %v", target, in)
		}
		out[infer] = in.NumElements() / known
	}
	if out.NumElements() != in.NumElements() {
		return nil, fmt.Errorf("incompatible shapes: %v -> %v", in, out)
	}
	return out, nil
}
