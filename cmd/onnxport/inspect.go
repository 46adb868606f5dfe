package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/onnx"
)

func newInspectCmd() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print an ONNX model in readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := onnx.ParseFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary {
				info := onnx.InfoOf(m)
				fmt.Fprintf(out, "graph: %s\nir_version: %d\nopset: %d\nproducer: %s %s\nnodes: %d\ninitializers: %d\ninputs: %v\noutputs: %v\n",
					info.GraphName, info.IRVersion, info.OpsetVersion, info.ProducerName, info.ProducerVersion,
					info.NodeCount, info.WeightCount, info.InputNames, info.OutputNames)
				fmt.Fprintf(out, "ops: %s\n", opCounts(info.OpCounts))
				return nil
			}
			text, err := onnx.MarshalText(m)
			if err != nil {
				return err
			}
			_, err = out.Write(text)
			return err
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "Print only the model header and graph sizes")
	return cmd
}

// opCounts renders counts as "Conv=1 Relu=2", sorted by operator type.
func opCounts(counts map[string]int) string {
	types := make([]string, 0, len(counts))
	for op := range counts {
		types = append(types, op)
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, op := range types {
		parts[i] = fmt.Sprintf("%s=%d", op, counts[op])
	}
	return strings.Join(parts, " ")
}
