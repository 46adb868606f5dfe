package nn

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Batch normalization defaults.
const (
	DefaultBatchNormEps   = 2e-5
	DefaultBatchNormDecay = 0.9
)

// BatchNorm2D normalizes activations per channel.
//
// Parameters gamma (scale, ones) and beta (shift, zeros) are learned. The
// running mean and variance are buffers updated by forward passes in
// training mode and used as-is in test mode.
type BatchNorm2D struct {
	channels int
	Eps      float64
	Decay    float64

	Gamma   *autodiff.Parameter
	Beta    *autodiff.Parameter
	AvgMean *tensor.RawTensor
	AvgVar  *tensor.RawTensor
}

// NewBatchNorm2D creates a batch normalization layer over size channels.
func NewBatchNorm2D(size int, opts ...Option) *BatchNorm2D {
	o := buildOptions(opts)
	shape := tensor.Shape{size}
	return &BatchNorm2D{
		channels: size,
		Eps:      DefaultBatchNormEps,
		Decay:    DefaultBatchNormDecay,
		Gamma:    autodiff.NewParameter("gamma", tensor.Ones(shape, o.dtype)),
		Beta:     autodiff.NewParameter("beta", tensor.Zeros(shape, o.dtype)),
		AvgMean:  tensor.Zeros(shape, o.dtype),
		AvgVar:   tensor.Ones(shape, o.dtype),
	}
}

// Forward normalizes x using batch statistics in training mode and the
// running statistics in test mode.
func (bn *BatchNorm2D) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	shape := x.Shape()
	if len(shape) < 2 || shape[1] != bn.channels {
		return nil, fmt.Errorf("batchnorm: expected %d channels on axis 1, got %v", bn.channels, shape)
	}
	g := x.Graph()
	return ops.BatchNorm(x, g.Param(bn.Gamma), g.Param(bn.Beta), bn.AvgMean, bn.AvgVar, bn.Eps, bn.Decay)
}

// NamedParams returns "/gamma" and "/beta".
func (bn *BatchNorm2D) NamedParams() []NamedParam {
	return leafParams(bn.Gamma, bn.Beta)
}

// NamedBuffers returns "/avg_mean" and "/avg_var".
func (bn *BatchNorm2D) NamedBuffers() []NamedBuffer {
	return []NamedBuffer{{Name: "/avg_mean", Data: bn.AvgMean}, {Name: "/avg_var", Data: bn.AvgVar}}
}
