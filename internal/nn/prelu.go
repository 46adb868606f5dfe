package nn

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// DefaultPReLUSlope is the initial negative slope.
const DefaultPReLUSlope = 0.25

// PReLU is a parametric ReLU whose slope W has the given shape, matched
// against the axes following the batch axis.
type PReLU struct {
	W *autodiff.Parameter
}

// NewPReLU creates a PReLU layer; an empty shape shares one scalar slope.
func NewPReLU(shape tensor.Shape, opts ...Option) *PReLU {
	o := buildOptions(opts)
	if shape == nil {
		shape = tensor.Shape{}
	}
	return &PReLU{W: autodiff.NewParameter("W", tensor.Full(shape, o.dtype, DefaultPReLUSlope))}
}

// Forward applies the parametric ReLU.
func (p *PReLU) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	return ops.PReLU(x, x.Graph().Param(p.W))
}

// NamedParams returns "/W".
func (p *PReLU) NamedParams() []NamedParam {
	return leafParams(p.W)
}
