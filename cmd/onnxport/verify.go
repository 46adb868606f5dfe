package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxport/internal/export"
)

func newVerifyCmd(a *app) *cobra.Command {
	var rtol, atol float64

	cmd := &cobra.Command{
		Use:   "verify DIR",
		Short: "Run a test case through the ONNX executor and compare outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := export.VerifyTestcase(args[0], rtol, atol,
				export.WithLogger(a.log), export.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range report.Mismatches {
				fmt.Fprintf(out, "FAIL output %d (%s): element %d got %g want %g, max error %g\n",
					m.Output, m.Name, m.Index, m.Got, m.Want, m.MaxError)
			}
			if !report.Passed() {
				return fmt.Errorf("%d of %d outputs differ", len(report.Mismatches), report.Outputs)
			}
			fmt.Fprintf(out, "PASS %d inputs, %d outputs\n", report.Inputs, report.Outputs)
			return nil
		},
	}

	cmd.Flags().Float64Var(&rtol, "rtol", 1e-4, "Relative tolerance")
	cmd.Flags().Float64Var(&atol, "atol", 1e-6, "Absolute tolerance")
	return cmd
}
