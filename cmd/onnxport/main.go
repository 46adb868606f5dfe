// Command onnxport exports layer stacks described in YAML to ONNX models and
// ONNX test cases, and checks exported test cases with the built-in executor.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/onnxport/internal/metrics"
)

// app holds the state shared by all subcommands.
type app struct {
	logLevel    string
	metricsFile string

	log     *zap.SugaredLogger
	metrics *metrics.Registry
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{metrics: metrics.NewRegistry()}

	cmd := &cobra.Command{
		Use:          "onnxport",
		Short:        "Export traced models to ONNX",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			log, err := newLogger(a.logLevel)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			_ = a.log.Sync()
			if a.metricsFile == "" {
				return nil
			}
			return a.metrics.WriteToTextfile(a.metricsFile)
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	cmd.AddCommand(
		newExportCmd(a),
		newTestcaseCmd(a),
		newVerifyCmd(a),
		newWeightsCmd(a),
		newInspectCmd(),
		newVersionCmd(),
	)
	return cmd
}

// newLogger builds a development logger for debug and a production logger
// otherwise.
func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}
