package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "onnxport %s (producer %s, IR version %d, opset %d..%d)\n",
				version.Version, version.Producer, onnx.IRVersion, onnx.MinOpset, onnx.MaxOpset)
		},
	}
}
