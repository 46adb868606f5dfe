// Package ops implements the differentiable functions recorded by the trace.
//
// Each function is a small struct holding its configuration and implementing
// autodiff.Function:
//   - Forward: computed by the backend
//   - Backward: computes input gradients from output gradients
//
// The package-level helpers (Linear, Conv2D, ReLU, ...) apply a fresh function
// to Variables of one Graph and return the recorded output.
package ops

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// reduceBroadcast reduces a gradient back to the shape of an operand that was
// broadcast in the forward pass.
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	return backend.SumTo(grad, targetShape)
}

// apply records fn on the graph of the first input.
func apply(fn autodiff.Function, inputs ...*autodiff.Variable) (*autodiff.Variable, error) {
	if len(inputs) == 0 || inputs[0] == nil {
		return nil, fmt.Errorf("%s: missing input", fn.Kind())
	}
	return inputs[0].Graph().Apply1(fn, inputs...)
}

// checkArity validates the operand count a function received.
func checkArity(kind autodiff.Kind, inputs []*tensor.RawTensor, minN, maxN int) error {
	if len(inputs) < minN || len(inputs) > maxN {
		return fmt.Errorf("%s: got %d inputs, want %d..%d", kind, len(inputs), minN, maxN)
	}
	return nil
}

func one(t *tensor.RawTensor) []*tensor.RawTensor { return []*tensor.RawTensor{t} }
