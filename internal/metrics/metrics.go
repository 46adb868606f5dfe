// Package metrics records export statistics in a Prometheus registry.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all export metrics.
type Registry struct {
	ExportsTotal       *prometheus.CounterVec
	ExportDuration     *prometheus.HistogramVec
	NodesExported      prometheus.Histogram
	OperatorsTotal     *prometheus.CounterVec
	InitializerBytes   prometheus.Counter
	FilesWrittenTotal  *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onnxport_exports_total",
				Help: "Total number of export runs",
			},
			[]string{"kind", "result"}, // model|testcase, ok|error
		),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onnxport_export_duration_seconds",
				Help:    "Duration of export runs in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"kind"},
		),
		NodesExported: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "onnxport_graph_nodes",
				Help:    "Number of ONNX nodes per exported graph",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		OperatorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onnxport_operators_total",
				Help: "Total number of ONNX nodes emitted, by operator type",
			},
			[]string{"op_type"},
		),
		InitializerBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "onnxport_initializer_bytes_total",
				Help: "Total size of exported initializer payloads in bytes",
			},
		),
		FilesWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onnxport_files_written_total",
				Help: "Total number of files written, by sink scheme",
			},
			[]string{"scheme"},
		),
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onnxport_verifications_total",
				Help: "Total number of test-case verifications",
			},
			[]string{"result"}, // pass|fail
		),
	}
}

// RecordExport records one export run.
func (r *Registry) RecordExport(kind string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ExportsTotal.WithLabelValues(kind, result).Inc()
	r.ExportDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordGraph records the operators and initializer payload of an exported
// graph.
func (r *Registry) RecordGraph(opTypes []string, initializerBytes int) {
	r.NodesExported.Observe(float64(len(opTypes)))
	for _, op := range opTypes {
		r.OperatorsTotal.WithLabelValues(op).Inc()
	}
	r.InitializerBytes.Add(float64(initializerBytes))
}

// RecordFile records a file written through a sink.
func (r *Registry) RecordFile(scheme string) {
	r.FilesWrittenTotal.WithLabelValues(scheme).Inc()
}

// RecordVerification records the outcome of a test-case verification.
func (r *Registry) RecordVerification(passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	r.VerificationsTotal.WithLabelValues(result).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteToTextfile dumps the registry in the node-exporter textfile format.
func (r *Registry) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
