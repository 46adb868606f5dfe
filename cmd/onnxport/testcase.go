package main

import (
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/export"
)

func newTestcaseCmd(a *app) *cobra.Command {
	var (
		mf         modelFlags
		outDir     string
		outputGrad bool
	)

	cmd := &cobra.Command{
		Use:   "testcase",
		Short: "Export a model with its input, output and gradient tensors",
		Long: "Write model.onnx and test_data_set_0/ with the traced input and output tensors\n" +
			"to --out-dir, a local directory or an s3:// URI.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, model, err := mf.load(cmd, a)
			if err != nil {
				return err
			}
			opts := append(cfg.ExportOptions(),
				export.WithOutputGrad(outputGrad),
				export.WithLogger(a.log),
				export.WithMetrics(a.metrics),
			)
			_, err = export.ExportTestcase(export.FromModule(model), cfg.Input(), outDir, opts...)
			return err
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Destination directory of the test case")
	cmd.Flags().BoolVar(&outputGrad, "output-grad", false, "Also write parameter gradients")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}
