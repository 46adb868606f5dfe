package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/backend/cpu"
	"github.com/born-ml/onnxport/internal/tensor"
)

func TestListSupportedOps(t *testing.T) {
	ops := ListSupportedOps()
	for _, essential := range []string{"Gemm", "Conv", "Relu", "Reshape", "Softmax", "BatchNormalization"} {
		assert.Contains(t, ops, essential)
	}
}

func TestTopologicalSort(t *testing.T) {
	// A -> B -> C
	//      B -> D
	nodes := []NodeProto{
		{Name: "C", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "A", Inputs: []string{"input"}, Outputs: []string{"a_out"}},
		{Name: "D", Inputs: []string{"b_out"}, Outputs: []string{"d_out"}},
		{Name: "B", Inputs: []string{"a_out"}, Outputs: []string{"b_out"}},
	}

	order, err := topologicalOrder(nodes)
	require.NoError(t, err)

	positions := make(map[string]int)
	for i, idx := range order {
		positions[nodes[idx].Name] = i
	}
	assert.Less(t, positions["A"], positions["B"])
	assert.Less(t, positions["B"], positions["C"])
	assert.Less(t, positions["B"], positions["D"])
}

func TestTopologicalSort_Cycle(t *testing.T) {
	nodes := []NodeProto{
		{Name: "A", Inputs: []string{"b"}, Outputs: []string{"a"}},
		{Name: "B", Inputs: []string{"a"}, Outputs: []string{"b"}},
	}
	_, err := topologicalOrder(nodes)
	assert.ErrorContains(t, err, "cycle")
}

func TestTopologicalOrder_KeepsOrderedGraphs(t *testing.T) {
	nodes := []NodeProto{
		{Inputs: []string{"x"}, Outputs: []string{"a"}},
		{Inputs: []string{"x"}, Outputs: []string{"b"}},
		{Inputs: []string{"a", "b", "a"}, Outputs: []string{"c"}},
	}
	order, err := topologicalOrder(nodes)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestLoad_Forward(t *testing.T) {
	data, err := Marshal(sampleModel(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	model, err := Load(path, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, model.InputNames())
	assert.Equal(t, []string{"2"}, model.OutputNames())
	assert.Equal(t, int64(DefaultOpset), model.OpsetVersion())
	assert.Equal(t, "Born", model.Metadata()["producer_name"])

	x, err := tensor.FromSlice(tensor.Shape{1, 2}, []float32{2, 3})
	require.NoError(t, err)
	y, err := model.Forward(x)
	require.NoError(t, err)
	// relu([2, 3, 5] + [0, -10, 1])
	assert.Equal(t, []float32{2, 0, 6}, y.AsFloat32())
}

func TestLoad_MissingInput(t *testing.T) {
	model, err := LoadFromProto(sampleModel(t), cpu.New(), DefaultLoadOptions())
	require.NoError(t, err)

	_, err = model.ForwardNamed(map[string]*tensor.RawTensor{})
	assert.ErrorContains(t, err, "missing input: x")

	_, err = model.Run()
	assert.ErrorContains(t, err, "got 0 inputs")
}

func TestModel_Run(t *testing.T) {
	model, err := LoadFromProto(sampleModel(t), cpu.New(), DefaultLoadOptions())
	require.NoError(t, err)

	x, err := tensor.FromSlice(tensor.Shape{1, 2}, []float32{-1, 1})
	require.NoError(t, err)
	outs, err := model.Run(x)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	// relu([-1, 1, 0] + [0, -10, 1])
	assert.Equal(t, []float32{0, 0, 1}, outs[0].AsFloat32())
	assert.Equal(t, "Graph", model.Proto().Graph.Name)
}

func TestLoad_StrictRejectsUnknownOps(t *testing.T) {
	m := sampleModel(t)
	m.Graph.Nodes[1].OpType = "Gelu"

	_, err := LoadFromProto(m, cpu.New(), LoadOptions{StrictMode: true})
	assert.ErrorContains(t, err, "unsupported operators: [Gelu]")

	_, err = LoadFromProto(m, cpu.New(), DefaultLoadOptions())
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestInfoOf(t *testing.T) {
	info := InfoOf(sampleModel(t))
	assert.Equal(t, []string{"x"}, info.InputNames)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, 2, info.WeightCount)
	assert.Equal(t, int64(IRVersion), info.IRVersion)
	assert.Equal(t, "Graph", info.GraphName)
	assert.Equal(t, map[string]int{"Gemm": 1, "Relu": 1}, info.OpCounts)
}
