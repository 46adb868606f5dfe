package export

import (
	"go.uber.org/zap"

	"github.com/born-ml/onnxport/internal/backend/cpu"
	"github.com/born-ml/onnxport/internal/metrics"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/storage"
	"github.com/born-ml/onnxport/internal/tensor"
)

// DefaultGraphName is the name of exported graphs unless overridden.
const DefaultGraphName = "Graph"

// Options configures an export.
type Options struct {
	// Filename is the destination of the binary model; nothing is written
	// when empty. It is relative to Sink when one is set.
	Filename string

	// ExportParams embeds parameter values as initializers. Without it the
	// parameters remain graph inputs that the consumer must feed.
	ExportParams bool

	GraphName string

	// SaveText also writes Filename + ".txt" with a readable rendering.
	SaveText bool

	// Train runs the forward pass in training mode, which changes how batch
	// normalization is exported.
	Train bool

	// Opset is the default-domain operator set version.
	Opset int64

	// InputNames and OutputNames rename the graph inputs and outputs. When
	// set they must name every input (output).
	InputNames  []string
	OutputNames []string

	// OutputGrad makes ExportTestcase also write parameter gradients.
	OutputGrad bool

	Sink    storage.Sink
	Backend tensor.Backend
	Logger  *zap.SugaredLogger
	Metrics *metrics.Registry
}

// Option configures an export.
type Option func(*Options)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		ExportParams: true,
		GraphName:    DefaultGraphName,
		Opset:        onnx.DefaultOpset,
		Backend:      cpu.New(),
		Logger:       zap.NewNop().Sugar(),
	}
}

// WithFilename sets the destination of the binary model.
func WithFilename(name string) Option {
	return func(o *Options) { o.Filename = name }
}

// WithExportParams controls whether parameter values are embedded.
func WithExportParams(v bool) Option {
	return func(o *Options) { o.ExportParams = v }
}

// WithGraphName sets the graph name.
func WithGraphName(name string) Option {
	return func(o *Options) { o.GraphName = name }
}

// WithSaveText also writes the text rendering next to the model.
func WithSaveText(v bool) Option {
	return func(o *Options) { o.SaveText = v }
}

// WithTrain exports the training-mode graph.
func WithTrain(v bool) Option {
	return func(o *Options) { o.Train = v }
}

// WithOpset sets the default-domain opset version.
func WithOpset(v int64) Option {
	return func(o *Options) { o.Opset = v }
}

// WithInputNames renames the graph inputs, in argument order.
func WithInputNames(names ...string) Option {
	return func(o *Options) { o.InputNames = names }
}

// WithOutputNames renames the graph outputs, in output order.
func WithOutputNames(names ...string) Option {
	return func(o *Options) { o.OutputNames = names }
}

// WithOutputGrad makes ExportTestcase write parameter gradients.
func WithOutputGrad(v bool) Option {
	return func(o *Options) { o.OutputGrad = v }
}

// WithSink routes every written file through sink.
func WithSink(sink storage.Sink) Option {
	return func(o *Options) { o.Sink = sink }
}

// WithBackend sets the backend the forward pass computes with.
func WithBackend(b tensor.Backend) Option {
	return func(o *Options) { o.Backend = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics records export statistics in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *Options) { o.Metrics = r }
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

func (o *Options) validate() error {
	if !onnx.SupportedOpset(o.Opset) {
		return configErr("opset %d is outside the supported range %d..%d", o.Opset, onnx.MinOpset, onnx.MaxOpset)
	}
	if o.GraphName == "" {
		return configErr("graph name is empty")
	}
	if o.Backend == nil {
		return configErr("no backend")
	}
	if err := uniqueNames("input", o.InputNames); err != nil {
		return err
	}
	return uniqueNames("output", o.OutputNames)
}

func uniqueNames(what string, names []string) error {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if name == "" {
			return configErr("%s name %d is empty", what, i)
		}
		if seen[name] {
			return configErr("duplicate %s name %q", what, name)
		}
		seen[name] = true
	}
	return nil
}
