package export

import (
	"errors"
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
)

// ErrConfiguration is returned (wrapped) when export options or the model's
// parameter naming are invalid. It is reported before anything is written.
var ErrConfiguration = errors.New("export: invalid configuration")

// UnsupportedOperatorError reports a recorded function with no ONNX
// translation.
type UnsupportedOperatorError struct {
	Kind autodiff.Kind
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("export: %s is not supported", e.Kind)
}

// InvalidArgumentError reports model arguments of an unsupported form.
type InvalidArgumentError struct {
	Got string
}

func (e *InvalidArgumentError) Error() string {
	return "export: args must be a Variable or tensor, a slice of them or a map of them; got " + e.Got
}

// SchemaValidationError reports a node, graph or model rejected by the
// ONNX checker. It unwraps to onnx.ErrInvalidModel.
type SchemaValidationError struct {
	Stage string // "node", "graph" or "model"
	Err   error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("export: %s failed validation: %v", e.Stage, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
