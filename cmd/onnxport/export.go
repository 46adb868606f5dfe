package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/storage"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		mf        modelFlags
		output    string
		text      bool
		noParams  bool
		graphName string
		opset     int64
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a model to an ONNX file",
		Long: "Build the model described by --config, trace it once on a seeded random input\n" +
			"and write the ONNX model to --output, a local path or an s3:// URI.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, model, err := mf.load(cmd, a)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("text") {
				cfg.Export.SaveText = text
			}
			if cmd.Flags().Changed("no-params") {
				exportParams := !noParams
				cfg.Export.ExportParams = &exportParams
			}
			if cmd.Flags().Changed("graph-name") {
				cfg.Export.GraphName = graphName
			}
			if cmd.Flags().Changed("opset") {
				cfg.Export.Opset = opset
			}

			dir, name := storage.Split(output)
			if name == "" {
				return fmt.Errorf("--output %q names a directory, want a file such as %q", output, output+"model.onnx")
			}
			sink, err := storage.Open(cmd.Context(), dir)
			if err != nil {
				return err
			}
			opts := append(cfg.ExportOptions(),
				export.WithFilename(name),
				export.WithSink(sink),
				export.WithLogger(a.log),
				export.WithMetrics(a.metrics),
			)
			res, err := export.Export(export.FromModule(model), cfg.Input(), opts...)
			if err != nil {
				return err
			}
			a.log.Infow("wrote model", "location", sink.Location(name), "nodes", len(res.Model.Graph.Nodes))
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "model.onnx", "Destination of the ONNX model")
	cmd.Flags().BoolVar(&text, "text", false, "Also write a readable rendering next to the model")
	cmd.Flags().BoolVar(&noParams, "no-params", false, "Leave parameters as graph inputs without initializers")
	cmd.Flags().StringVar(&graphName, "graph-name", export.DefaultGraphName, "Name of the exported graph")
	cmd.Flags().Int64Var(&opset, "opset", 4, "Default-domain opset version")
	return cmd
}
