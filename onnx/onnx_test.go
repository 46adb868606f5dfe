package onnx_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/backend/cpu"
	"github.com/born-ml/onnxport/nn"
	"github.com/born-ml/onnxport/onnx"
	"github.com/born-ml/onnxport/tensor"
)

func TestExportAndLoad(t *testing.T) {
	model := nn.NewSequential(
		nn.NewLinear(4, 3),
		nn.NewReLU(),
		nn.NewLinear(3, 2),
	)
	x, err := tensor.FromSlice(tensor.Shape{1, 4}, []float32{0.5, -1, 2, 0})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mlp.onnx")

	res, err := onnx.Export(onnx.FromModule(model), x, onnx.WithFilename(path))
	require.NoError(t, err)
	require.NoError(t, onnx.Check(res.Model))

	m, err := onnx.Load(path, cpu.New())
	require.NoError(t, err)
	y, err := m.Forward(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, res.Outputs[0].Data().Float64s(), y.Float64s(), 1e-6)
}

func TestExportUnsupported(t *testing.T) {
	_, err := onnx.Export(onnx.FromModule(nn.NewSigmoid()), tensor.Ones(tensor.Shape{2}, tensor.Float32))

	var unsupported *onnx.UnsupportedOperatorError
	assert.ErrorAs(t, err, &unsupported)
}
