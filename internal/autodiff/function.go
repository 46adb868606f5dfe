package autodiff

import "github.com/born-ml/onnxport/internal/tensor"

// Mode selects the behaviour of mode-dependent functions such as batch
// normalization.
type Mode int

// Execution modes.
const (
	ModeTest Mode = iota
	ModeTrain
)

// String returns "train" or "test".
func (m Mode) String() string {
	if m == ModeTrain {
		return "train"
	}
	return "test"
}

// Context carries what a Function needs besides its operands.
type Context struct {
	Backend tensor.Backend
	Mode    Mode
}

// Function is a differentiable operation recorded in a Graph. Implementations
// hold their own configuration (stride, epsilon, target shape, ...) and are
// inspected by the exporter through type assertions on the concrete type.
type Function interface {
	// Kind returns the function's runtime tag.
	Kind() Kind

	// Forward computes the outputs from the input tensors.
	Forward(ctx Context, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

	// Backward returns one gradient per input (nil where none flows) given the
	// forward inputs and outputs and one gradient per output.
	Backward(ctx Context, inputs, outputs, grads []*tensor.RawTensor) ([]*tensor.RawTensor, error)
}
