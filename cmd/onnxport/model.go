package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/born-ml/onnxport/internal/config"
	"github.com/born-ml/onnxport/internal/loader"
	"github.com/born-ml/onnxport/internal/nn"
)

// modelFlags are the flags shared by the commands that build a model.
type modelFlags struct {
	configFile string
	weights    string
	train      bool
}

func (f *modelFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "Model configuration file (YAML)")
	fs.StringVar(&f.weights, "weights", "", "SafeTensors file with pretrained weights")
	fs.BoolVar(&f.train, "train", false, "Trace in training mode")
	_ = cmd.MarkFlagRequired("config")
}

// apply copies the flags that were set on the command line over cfg.
func (f *modelFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("weights") {
		cfg.Weights.Path = f.weights
	}
	if fs.Changed("train") {
		cfg.Export.Train = f.train
	}
}

// load reads the configuration, applies the flags that were set and builds
// the model with its weights.
func (f *modelFlags) load(cmd *cobra.Command, a *app) (*config.Config, *nn.Sequential, error) {
	cfg, err := config.LoadFile(f.configFile)
	if err != nil {
		return nil, nil, err
	}
	f.apply(cmd.Flags(), cfg)

	model, err := cfg.BuildModel()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Weights.Path != "" {
		if err := loadWeights(cfg, model, a); err != nil {
			return nil, nil, err
		}
	}
	return cfg, model, nil
}

func loadWeights(cfg *config.Config, model *nn.Sequential, a *app) error {
	w, err := loader.Open(cfg.Weights.Path)
	if err != nil {
		return err
	}
	mapper, err := loader.GetMapper(cfg.Weights.Style, cfg.Weights.Prefix)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	report, err := loader.Load(w, model.NamedParams(), model.NamedBuffers(), mapper,
		loader.LoadOptions{AllowMissing: cfg.Weights.AllowMissing})
	if err != nil {
		return err
	}
	a.log.Infow("loaded weights", "path", cfg.Weights.Path,
		"loaded", len(report.Loaded), "missing", report.Missing, "unused", report.Unused)
	return nil
}
