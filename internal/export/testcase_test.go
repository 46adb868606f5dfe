package export_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/metrics"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// memorySink keeps written artifacts in memory.
type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemorySink() *memorySink { return &memorySink{files: make(map[string][]byte)} }

func (s *memorySink) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), data...)
	return nil
}

func (s *memorySink) Scheme() string { return "mem" }

func (s *memorySink) Location(name string) string { return "mem://" + name }

func readTensor(t *testing.T, path string) *onnx.TensorProto {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	p, err := onnx.ParseTensor(data)
	require.NoError(t, err)
	return p
}

func TestExportTestcase_Layout(t *testing.T) {
	dir := t.TempDir()
	x := randTensor(20, 1, 3, 28, 28)

	res, err := export.ExportTestcase(export.FromModule(convNet()), x, dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "model.onnx"))
	in := readTensor(t, filepath.Join(dir, "test_data_set_0", "input_0.pb"))
	out := readTensor(t, filepath.Join(dir, "test_data_set_0", "output_0.pb"))
	assert.NoFileExists(t, filepath.Join(dir, "test_data_set_0", "gradient_0.pb"))

	assert.Equal(t, "Input_0", in.Name)
	assert.Equal(t, []int64{1, 3, 28, 28}, in.Dims)
	assert.Equal(t, x.Data(), in.RawData)

	assert.Empty(t, out.Name)
	assert.Equal(t, []int64{1, 10}, out.Dims)
	assert.Equal(t, res.Outputs[0].Data().Data(), out.RawData)
}

func TestExportTestcase_NamedTensors(t *testing.T) {
	dir := t.TempDir()

	_, err := export.ExportTestcase(export.FromModule(convNet()), randTensor(21, 1, 3, 28, 28), dir,
		export.WithInputNames("x"), export.WithOutputNames("y"))
	require.NoError(t, err)

	assert.Equal(t, "x", readTensor(t, filepath.Join(dir, export.InputFile(0))).Name)
	assert.Equal(t, "y", readTensor(t, filepath.Join(dir, export.OutputFile(0))).Name)
}

func TestExportTestcase_Gradients(t *testing.T) {
	model := nn.NewSequential(nn.NewLinear(3, 2, seeded()))
	dir := t.TempDir()

	res, err := export.ExportTestcase(export.FromModule(model), randTensor(22, 4, 3), dir, export.WithOutputGrad(true))
	require.NoError(t, err)

	inits := initializerNames(res.Model)
	params := model.NamedParams()
	for i, np := range params {
		g := readTensor(t, filepath.Join(dir, export.GradientFile(i)))
		assert.Equal(t, np.Name, g.Name)
		assert.Contains(t, inits, g.Name)
		assert.Equal(t, np.Param.Data.Shape().Int64s(), g.Dims)
	}
	assert.NoFileExists(t, filepath.Join(dir, export.GradientFile(len(params))))

	// d(sum y)/db is the batch size for every output unit.
	bias, err := onnx.ToRaw(readTensor(t, filepath.Join(dir, export.GradientFile(1))))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 4}, bias.Float64s(), 1e-6)
}

func TestExportTestcase_Sink(t *testing.T) {
	sink := newMemorySink()

	_, err := export.ExportTestcase(export.FromModule(convNet()), randTensor(23, 1, 3, 28, 28), "runs/mnist",
		export.WithSink(sink), export.WithSaveText(true))
	require.NoError(t, err)

	names := make([]string, 0, len(sink.files))
	for name := range sink.files {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"runs/mnist/model.onnx",
		"runs/mnist/model.onnx.txt",
		"runs/mnist/test_data_set_0/input_0.pb",
		"runs/mnist/test_data_set_0/output_0.pb",
	}, names)

	m, err := onnx.Parse(sink.files["runs/mnist/model.onnx"])
	require.NoError(t, err)
	assert.Equal(t, []string{"Conv", "Relu", "Gemm"}, opTypes(m))
}

func TestExportTestcase_FailureWritesNothing(t *testing.T) {
	sink := newMemorySink()
	model := nn.NewSequential(nn.NewTanh())

	_, err := export.ExportTestcase(export.FromModule(model), tensor.Ones(tensor.Shape{2}, tensor.Float32), "out",
		export.WithSink(sink))

	var unsupported *export.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, sink.files)
}

func TestVerifyTestcase(t *testing.T) {
	model := nn.NewSequential(
		nn.NewConv2D(1, 2, [2]int{3, 3}, seeded()),
		nn.NewReLU(),
		nn.NewFlatten(),
		nn.NewLinear(2*4*4, 3, seeded()),
		nn.NewSoftmax(1),
	)
	dir := t.TempDir()
	reg := metrics.NewRegistry()

	_, err := export.ExportTestcase(export.FromModule(model), randTensor(24, 2, 1, 6, 6), dir)
	require.NoError(t, err)

	report, err := export.VerifyTestcase(dir, 1e-4, 1e-6, export.WithMetrics(reg))
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, 1, report.Inputs)
	assert.Equal(t, 1, report.Outputs)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.VerificationsTotal.WithLabelValues("pass")))

	// Corrupt the stored output.
	wrong, err := onnx.TensorFromRaw("", tensor.Full(tensor.Shape{2, 3}, tensor.Float32, 5))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, export.OutputFile(0)), onnx.MarshalTensor(&wrong), 0o600))

	report, err = export.VerifyTestcase(dir, 1e-4, 1e-6, export.WithMetrics(reg))
	require.NoError(t, err)
	assert.False(t, report.Passed())
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, 0, report.Mismatches[0].Index)
	assert.InDelta(t, 5.0, report.Mismatches[0].Want, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.VerificationsTotal.WithLabelValues("fail")))
}

func TestVerifyTestcase_MissingModel(t *testing.T) {
	_, err := export.VerifyTestcase(t.TempDir(), 1e-4, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
