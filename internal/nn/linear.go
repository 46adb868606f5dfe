package nn

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input with shape [batch_size, in_features] (higher rank inputs are flattened)
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
type Linear struct {
	inFeatures  int
	outFeatures int
	W           *autodiff.Parameter
	B           *autodiff.Parameter // nil without bias
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, opts ...Option) *Linear {
	o := buildOptions(opts)
	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		W: autodiff.NewParameter("W",
			Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, o.dtype, o.rng)),
	}
	if !o.noBias {
		l.B = autodiff.NewParameter("b", tensor.Zeros(tensor.Shape{outFeatures}, o.dtype))
	}
	return l
}

// Forward computes x @ W.T + b.
func (l *Linear) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	shape := x.Shape()
	if len(shape) < 2 || shape.NumElements()/shape[0] != l.inFeatures {
		return nil, fmt.Errorf("linear: input shape %v incompatible with %d input features", shape, l.inFeatures)
	}

	g := x.Graph()
	var b *autodiff.Variable
	if l.B != nil {
		b = g.Param(l.B)
	}
	return ops.Linear(x, g.Param(l.W), b)
}

// NamedParams returns "/W" and, with a bias, "/b".
func (l *Linear) NamedParams() []NamedParam {
	return leafParams(l.W, l.B)
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int { return l.outFeatures }
