package config

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/tensor"
)

// BuildModel constructs the layer stack. Parameters are initialized from
// Model.Seed, so equal configurations build equal models.
func (c *Config) BuildModel() (*nn.Sequential, error) {
	rng := rand.New(rand.NewSource(c.Model.Seed)) //nolint:gosec // G404: deterministic init.
	layers := make([]nn.Module, 0, len(c.Model.Layers))
	for i, l := range c.Model.Layers {
		m, err := buildLayer(l, rng)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Type, err)
		}
		layers = append(layers, m)
	}
	return nn.NewSequential(layers...), nil
}

func buildLayer(l Layer, rng *rand.Rand) (nn.Module, error) {
	opts := []nn.Option{nn.WithRand(rng)}
	if len(l.Stride) == 2 {
		opts = append(opts, nn.WithStride(l.Stride[0], l.Stride[1]))
	}
	if len(l.Pad) == 2 {
		opts = append(opts, nn.WithPad(l.Pad[0], l.Pad[1]))
	}
	if l.NoBias {
		opts = append(opts, nn.WithoutBias())
	}

	switch l.Type {
	case LayerLinear:
		return nn.NewLinear(l.In, l.Out, opts...), nil
	case LayerConv2D:
		return nn.NewConv2D(l.In, l.Out, kernel(l), opts...), nil
	case LayerBatchNorm:
		return nn.NewBatchNorm2D(l.Out, opts...), nil
	case LayerPReLU:
		var shape tensor.Shape
		if len(l.Shape) > 0 {
			shape = tensor.Shape(l.Shape)
		}
		return nn.NewPReLU(shape, opts...), nil
	case LayerReLU:
		return nn.NewReLU(), nil
	case LayerSigmoid:
		return nn.NewSigmoid(), nil
	case LayerTanh:
		return nn.NewTanh(), nil
	case LayerSoftmax:
		return nn.NewSoftmax(l.Axis), nil
	case LayerMaxPool:
		return nn.NewMaxPool2D(kernel(l), opts...), nil
	case LayerAvgPool:
		return nn.NewAvgPool2D(kernel(l), opts...), nil
	case LayerFlatten:
		return nn.NewFlatten(), nil
	case LayerReshape:
		return nn.NewReshape(l.Shape...), nil
	default:
		return nil, fmt.Errorf("%w: unknown layer type %q", ErrInvalidConfig, l.Type)
	}
}

func kernel(l Layer) [2]int {
	return [2]int{l.Kernel[0], l.Kernel[1]}
}

// Input returns the traced input: uniform values in [-1, 1) drawn from
// Model.Seed.
func (c *Config) Input() *tensor.RawTensor {
	rng := rand.New(rand.NewSource(c.Model.Seed + 1)) //nolint:gosec // G404: reproducible sample input.
	return tensor.RandUniform(tensor.Shape(c.Model.InputShape), tensor.Float32, -1, 1, rng)
}

// ExportOptions converts the export settings to export options.
func (c *Config) ExportOptions() []export.Option {
	e := c.Export
	opts := []export.Option{
		export.WithGraphName(e.GraphName),
		export.WithOpset(e.Opset),
		export.WithExportParams(e.ExportsParams()),
		export.WithTrain(e.Train),
		export.WithSaveText(e.SaveText),
	}
	if len(e.InputNames) > 0 {
		opts = append(opts, export.WithInputNames(e.InputNames...))
	}
	if len(e.OutputNames) > 0 {
		opts = append(opts, export.WithOutputNames(e.OutputNames...))
	}
	return opts
}
