package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r)
	assert.NotNil(t, r.ExportsTotal)
	assert.NotNil(t, r.OperatorsTotal)
	assert.NotNil(t, r.registry)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRecordExport(t *testing.T) {
	r := NewRegistry()
	r.RecordExport("model", nil, 10*time.Millisecond)
	r.RecordExport("model", nil, 20*time.Millisecond)
	r.RecordExport("testcase", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ExportsTotal.WithLabelValues("model", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ExportsTotal.WithLabelValues("testcase", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.ExportDuration))
}

func TestRecordGraph(t *testing.T) {
	r := NewRegistry()
	r.RecordGraph([]string{"Conv", "Relu", "Gemm", "Relu"}, 128)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.OperatorsTotal.WithLabelValues("Relu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperatorsTotal.WithLabelValues("Gemm")))
	assert.Equal(t, 128.0, testutil.ToFloat64(r.InitializerBytes))
}

func TestRecordVerification(t *testing.T) {
	r := NewRegistry()
	r.RecordVerification(true)
	r.RecordVerification(false)
	r.RecordVerification(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.VerificationsTotal.WithLabelValues("pass")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.VerificationsTotal.WithLabelValues("fail")))
}

func TestWriteToTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordFile("file")
	path := filepath.Join(t.TempDir(), "onnxport.prom")

	require.NoError(t, r.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `onnxport_files_written_total{scheme="file"} 1`)
}
