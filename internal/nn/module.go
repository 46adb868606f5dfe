// Package nn implements the layers whose forward passes are traced and
// exported.
//
// This package provides building blocks for constructing networks:
//   - Module interface: base interface for all layers
//   - Linear, Conv2D, BatchNorm2D, PReLU: layers with parameters
//   - ReLU, Sigmoid, Tanh, Softmax, MaxPool2D, AvgPool2D, Reshape, Flatten
//   - Sequential: container for stacking layers
//
// Every parameter has a hierarchical name of the form <layer-path>/<key>,
// for example "/0/W" for the weight of the first layer of a Sequential.
package nn

import (
	"math/rand"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Module is the base interface for all layers.
//
//	model := nn.NewSequential(
//	    nn.NewConv2D(3, 16, [2]int{5, 5}, nn.WithPad(2, 2)),
//	    nn.NewReLU(),
//	    nn.NewLinear(16*28*28, 10),
//	)
type Module interface {
	// Forward records the layer's computation on x's graph and returns the
	// output Variable.
	Forward(x *autodiff.Variable) (*autodiff.Variable, error)

	// NamedParams returns the layer's parameters with names relative to the
	// layer ("/W", "/0/W", ...), in a stable order.
	NamedParams() []NamedParam
}

// BufferOwner is implemented by layers holding non-learned state, such as the
// running statistics of batch normalization.
type BufferOwner interface {
	NamedBuffers() []NamedBuffer
}

// NamedParam pairs a parameter with its hierarchical name.
type NamedParam struct {
	Name  string
	Param *autodiff.Parameter
}

// NamedBuffer pairs a state tensor with its hierarchical name.
type NamedBuffer struct {
	Name string
	Data *tensor.RawTensor
}

// Prefix prepends a path segment to every name.
func Prefix(prefix string, params []NamedParam) []NamedParam {
	out := make([]NamedParam, len(params))
	for i, p := range params {
		out[i] = NamedParam{Name: "/" + prefix + p.Name, Param: p.Param}
	}
	return out
}

func prefixBuffers(prefix string, bufs []NamedBuffer) []NamedBuffer {
	out := make([]NamedBuffer, len(bufs))
	for i, b := range bufs {
		out[i] = NamedBuffer{Name: "/" + prefix + b.Name, Data: b.Data}
	}
	return out
}

// leafParams names a layer's own parameters, skipping nil ones.
func leafParams(params ...*autodiff.Parameter) []NamedParam {
	var out []NamedParam
	for _, p := range params {
		if p != nil {
			out = append(out, NamedParam{Name: "/" + p.Key, Param: p})
		}
	}
	return out
}

// options configure layer construction.
type options struct {
	rng    *rand.Rand
	dtype  tensor.DataType
	noBias bool
	stride [2]int
	pad    [2]int
}

// Option configures a layer constructor.
type Option func(*options)

// WithRand sets the random source for weight initialization.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithDType sets the parameter element type (default float32).
func WithDType(dt tensor.DataType) Option {
	return func(o *options) { o.dtype = dt }
}

// WithoutBias drops the bias parameter.
func WithoutBias() Option {
	return func(o *options) { o.noBias = true }
}

// WithStride sets the (height, width) stride of convolution and pooling.
func WithStride(sy, sx int) Option {
	return func(o *options) { o.stride = [2]int{sy, sx} }
}

// WithPad sets the (height, width) zero padding of convolution and pooling.
func WithPad(ph, pw int) Option {
	return func(o *options) { o.pad = [2]int{ph, pw} }
}

func buildOptions(opts []Option) options {
	o := options{dtype: tensor.Float32, stride: [2]int{1, 1}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		o.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return o
}
