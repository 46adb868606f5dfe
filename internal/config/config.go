// Package config loads the YAML file that describes a model to export: its
// layer stack, the traced input and the export settings. Environment
// variables prefixed with ONNXPORT_ override the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ONNXPORT_OPSET.
const EnvPrefix = "ONNXPORT"

// ErrInvalidConfig is returned (wrapped) for configurations that fail
// validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Layer types accepted in Model.Layers.
const (
	LayerLinear    = "linear"
	LayerConv2D    = "conv2d"
	LayerBatchNorm = "batchnorm2d"
	LayerPReLU     = "prelu"
	LayerReLU      = "relu"
	LayerSigmoid   = "sigmoid"
	LayerTanh      = "tanh"
	LayerSoftmax   = "softmax"
	LayerMaxPool   = "maxpool2d"
	LayerAvgPool   = "avgpool2d"
	LayerFlatten   = "flatten"
	LayerReshape   = "reshape"
)

// Config is the top-level configuration file.
type Config struct {
	LogLevel string  `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Model    Model   `yaml:"model"`
	Export   Export  `yaml:"export"`
	Weights  Weights `yaml:"weights"`
}

// Model describes the layer stack and the input it is traced with.
type Model struct {
	// InputShape is the shape of the single traced input, batch first.
	InputShape []int `yaml:"input_shape" validate:"required,min=1,dive,gt=0"`
	// Seed drives parameter initialization and the random input.
	Seed   int64   `yaml:"seed"`
	Layers []Layer `yaml:"layers" validate:"required,min=1,dive"`
}

// Layer is one entry of the stack. Fields not used by Type are ignored.
type Layer struct {
	Type string `yaml:"type" validate:"required,oneof=linear conv2d batchnorm2d prelu relu sigmoid tanh softmax maxpool2d avgpool2d flatten reshape"`

	In  int `yaml:"in" validate:"required_if=Type linear,required_if=Type conv2d,gte=0"`
	Out int `yaml:"out" validate:"required_if=Type linear,required_if=Type conv2d,required_if=Type batchnorm2d,gte=0"`

	Kernel []int `yaml:"kernel" validate:"required_if=Type conv2d,required_if=Type maxpool2d,required_if=Type avgpool2d,omitempty,len=2,dive,gt=0"`
	Stride []int `yaml:"stride" validate:"omitempty,len=2,dive,gt=0"`
	Pad    []int `yaml:"pad" validate:"omitempty,len=2,dive,gte=0"`

	// NoBias drops the bias of linear and conv2d layers.
	NoBias bool `yaml:"no_bias"`
	// Axis is the softmax axis.
	Axis int `yaml:"axis"`
	// Shape is the reshape target, or the slope shape of prelu.
	Shape []int `yaml:"shape" validate:"required_if=Type reshape,omitempty,dive,gt=0"`
}

// Export holds the export settings.
type Export struct {
	GraphName    string   `yaml:"graph_name" validate:"required"`
	Opset        int64    `yaml:"opset" validate:"gte=1,lte=4"`
	ExportParams *bool    `yaml:"export_params"`
	Train        bool     `yaml:"train"`
	SaveText     bool     `yaml:"save_text"`
	InputNames   []string `yaml:"input_names" validate:"omitempty,unique,dive,required"`
	OutputNames  []string `yaml:"output_names" validate:"omitempty,unique,dive,required"`
}

// Weights points at pretrained weights loaded before export.
type Weights struct {
	Path  string `yaml:"path"`
	Style string `yaml:"style" validate:"omitempty,oneof=identity dotted"`
	// Prefix is prepended to dotted keys.
	Prefix       string `yaml:"prefix"`
	AllowMissing bool   `yaml:"allow_missing"`
}

// Env lists the environment overrides. Unset variables leave the file
// values alone.
type Env struct {
	LogLevel     *string `envconfig:"LOG_LEVEL"`
	GraphName    *string `envconfig:"GRAPH_NAME"`
	Opset        *int64  `envconfig:"OPSET"`
	ExportParams *bool   `envconfig:"EXPORT_PARAMS"`
	Train        *bool   `envconfig:"TRAIN"`
	SaveText     *bool   `envconfig:"SAVE_TEXT"`
	Seed         *int64  `envconfig:"SEED"`
	Weights      *string `envconfig:"WEIGHTS"`
}

var validate = validator.New()

// Default returns the settings applied before the file is read.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Export: Export{
			GraphName: "Graph",
			Opset:     4,
		},
		Weights: Weights{Style: "identity"},
	}
}

// LoadFile reads, overrides and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	//nolint:gosec // G304: config path is supplied by the user.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load parses YAML over the defaults, applies environment overrides and
// validates the result.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the ONNXPORT_* environment variables.
func (c *Config) ApplyEnv() error {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.LogLevel != nil {
		c.LogLevel = *env.LogLevel
	}
	if env.GraphName != nil {
		c.Export.GraphName = *env.GraphName
	}
	if env.Opset != nil {
		c.Export.Opset = *env.Opset
	}
	if env.ExportParams != nil {
		c.Export.ExportParams = env.ExportParams
	}
	if env.Train != nil {
		c.Export.Train = *env.Train
	}
	if env.SaveText != nil {
		c.Export.SaveText = *env.SaveText
	}
	if env.Seed != nil {
		c.Model.Seed = *env.Seed
	}
	if env.Weights != nil {
		c.Weights.Path = *env.Weights
	}
	return nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, formatValidationError(err))
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	e := validationErrs[0]
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", e.Namespace())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %v", e.Namespace(), e.Param(), e.Value())
	default:
		return fmt.Errorf("%s failed %s=%s (got %v)", e.Namespace(), e.Tag(), e.Param(), e.Value())
	}
}

// ExportsParams reports whether initializers are written, defaulting to
// true.
func (e Export) ExportsParams() bool {
	return e.ExportParams == nil || *e.ExportParams
}
