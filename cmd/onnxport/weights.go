package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/loader"
	"github.com/born-ml/onnxport/internal/version"
)

func newWeightsCmd(a *app) *cobra.Command {
	var (
		mf     modelFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Save a model's parameters and running statistics as SafeTensors",
		Long: "Build the configured model, load --weights if given, and write its parameters\n" +
			"and buffers to a SafeTensors file keyed the way the weights section maps names.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, model, err := mf.load(cmd, a)
			if err != nil {
				return err
			}
			mapper, err := loader.GetMapper(cfg.Weights.Style, cfg.Weights.Prefix)
			if err != nil {
				return fmt.Errorf("weights: %w", err)
			}
			meta := map[string]string{"producer": version.Producer, "producer_version": version.Version}
			if err := loader.SaveFile(output, model.NamedParams(), model.NamedBuffers(), mapper, meta); err != nil {
				return err
			}
			a.log.Infow("saved weights", "path", output,
				"params", len(model.NamedParams()), "buffers", len(model.NamedBuffers()))
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination SafeTensors file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
