package export_test

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/backend/cpu"
	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/metrics"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

func seeded() nn.Option { return nn.WithRand(rand.New(rand.NewSource(42))) }

func randTensor(seed int64, shape ...int) *tensor.RawTensor {
	return tensor.RandUniform(tensor.Shape(shape), tensor.Float32, -1, 1, rand.New(rand.NewSource(seed)))
}

func opTypes(m *onnx.ModelProto) []string {
	out := make([]string, len(m.Graph.Nodes))
	for i := range m.Graph.Nodes {
		out[i] = m.Graph.Nodes[i].OpType
	}
	return out
}

func initializerNames(m *onnx.ModelProto) []string {
	out := make([]string, len(m.Graph.Initializers))
	for i := range m.Graph.Initializers {
		out[i] = m.Graph.Initializers[i].Name
	}
	return out
}

func inputNames(m *onnx.ModelProto) []string {
	out := make([]string, len(m.Graph.Inputs))
	for i := range m.Graph.Inputs {
		out[i] = m.Graph.Inputs[i].Name
	}
	return out
}

func convNet() *nn.Sequential {
	return nn.NewSequential(
		nn.NewConv2D(3, 16, [2]int{5, 5}, nn.WithPad(2, 2), seeded()),
		nn.NewReLU(),
		nn.NewLinear(16*28*28, 10, seeded()),
	)
}

// runExported executes an exported model with the ONNX executor on the
// given inputs, keyed by graph input name.
func runExported(t *testing.T, m *onnx.ModelProto, inputs map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	t.Helper()
	data, err := onnx.Marshal(m)
	require.NoError(t, err)
	model, err := onnx.LoadFromBytes(data, cpu.New())
	require.NoError(t, err)
	out, err := model.ForwardNamed(inputs)
	require.NoError(t, err)
	return out
}

func TestExport_ConvReLULinear(t *testing.T) {
	x := tensor.Zeros(tensor.Shape{1, 3, 28, 28}, tensor.Float32)

	res, err := export.Export(export.FromModule(convNet()), x)
	require.NoError(t, err)
	m := res.Model

	assert.Equal(t, []string{"Conv", "Relu", "Gemm"}, opTypes(m))
	assert.Equal(t, []string{"/0/W", "/0/b", "/2/W", "/2/b"}, initializerNames(m))
	assert.Equal(t, []string{"/0/W", "/0/b", "/2/W", "/2/b", "0"}, inputNames(m))

	require.Len(t, m.Graph.Outputs, 1)
	out := m.Graph.Outputs[0]
	assert.Equal(t, []int64{1, 10}, out.Dims())
	assert.Equal(t, m.Graph.Nodes[2].Outputs[0], out.Name)

	conv := m.Graph.Nodes[0]
	assert.Equal(t, []string{"0", "/0/W", "/0/b"}, conv.Inputs)
	assert.Equal(t, []int64{5, 5}, conv.Attr("kernel_shape").Ints)
	assert.Equal(t, []int64{1, 1}, conv.Attr("strides").Ints)
	assert.Equal(t, []int64{2, 2, 2, 2}, conv.Attr("pads").Ints)

	gemm := m.Graph.Nodes[2]
	assert.Equal(t, m.Graph.Nodes[1].Outputs[0], gemm.Inputs[0])
	assert.Equal(t, int64(1), gemm.Attr("transB").I)
	assert.Equal(t, int64(0), gemm.Attr("transA").I)

	assert.Equal(t, int64(onnx.IRVersion), m.IRVersion)
	assert.Equal(t, "Born", m.ProducerName)
	assert.Equal(t, "Graph", m.Graph.Name)
	require.Len(t, m.OpsetImport, 1)
	assert.Equal(t, int64(onnx.DefaultOpset), m.OpsetImport[0].Version)

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, tensor.Shape{1, 10}, res.Outputs[0].Shape())
}

func TestExport_ExecutorReproducesRuntime(t *testing.T) {
	model := nn.NewSequential(
		nn.NewConv2D(1, 4, [2]int{3, 3}, nn.WithPad(1, 1), seeded()),
		nn.NewBatchNorm2D(4),
		nn.NewReLU(),
		nn.NewMaxPool2D([2]int{2, 2}),
		nn.NewAvgPool2D([2]int{2, 2}, nn.WithStride(1, 1)),
		nn.NewFlatten(),
		nn.NewLinear(4*3*3, 5, seeded()),
		nn.NewPReLU(nil),
		nn.NewSoftmax(1),
	)
	x := randTensor(1, 2, 1, 8, 8)

	res, err := export.Export(export.FromModule(model), x)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"Conv", "BatchNormalization", "Relu", "MaxPool", "AveragePool", "Reshape", "Gemm", "PRelu", "Softmax"},
		opTypes(res.Model))

	out := runExported(t, res.Model, map[string]*tensor.RawTensor{"0": x})
	got := out[res.Model.Graph.Outputs[0].Name]
	require.NotNil(t, got)
	assert.InDeltaSlice(t, res.Outputs[0].Data().Float64s(), got.Float64s(), 1e-5)
}

func TestExport_Arithmetic(t *testing.T) {
	scale := autodiff.NewParameter("scale", tensor.Full(tensor.Shape{3}, tensor.Float32, 0.5))
	model := &funcModel{
		params: []nn.NamedParam{{Name: "/scale", Param: scale}},
		forward: func(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
			a, b := args[0], args[1]
			s := a.Graph().Param(scale)
			sum, err := ops.Add(a, b)
			if err != nil {
				return nil, err
			}
			diff, err := ops.Sub(sum, s)
			if err != nil {
				return nil, err
			}
			prod, err := ops.Mul(diff, diff)
			if err != nil {
				return nil, err
			}
			neg, err := ops.Neg(prod)
			if err != nil {
				return nil, err
			}
			abs, err := ops.Abs(b)
			if err != nil {
				return nil, err
			}
			quot, err := ops.Div(neg, abs)
			if err != nil {
				return nil, err
			}
			return []*autodiff.Variable{quot}, nil
		},
	}
	a, b := randTensor(1, 2, 3), randTensor(2, 2, 3)

	res, err := export.Export(model, []*tensor.RawTensor{a, b})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Add", "Sub", "Mul", "Neg", "Abs", "Div"}, opTypes(res.Model))
	for i := range res.Model.Graph.Nodes {
		n := &res.Model.Graph.Nodes[i]
		if n.OpType == "Mul" {
			assert.Equal(t, n.Inputs[0], n.Inputs[1], "x*x reads the same value twice")
		}
		if n.OpType == "Sub" {
			assert.Equal(t, "/scale", n.Inputs[1])
		}
	}

	out := runExported(t, res.Model, map[string]*tensor.RawTensor{"0": a, "1": b})
	assert.InDeltaSlice(t, res.Outputs[0].Data().Float64s(), out[res.Model.Graph.Outputs[0].Name].Float64s(), 1e-5)
}

func TestExport_GlobalPooling(t *testing.T) {
	tests := []struct {
		name   string
		layer  nn.Module
		opType string
		attrs  bool
	}{
		{"max_global", nn.NewMaxPool2D([2]int{4, 4}), "GlobalMaxPool", false},
		{"avg_global", nn.NewAvgPool2D([2]int{4, 4}), "GlobalAveragePool", false},
		{"max_window", nn.NewMaxPool2D([2]int{2, 2}), "MaxPool", true},
		{"avg_window", nn.NewAvgPool2D([2]int{3, 3}, nn.WithStride(1, 1), nn.WithPad(1, 1)), "AveragePool", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := export.Export(export.FromModule(tt.layer), randTensor(3, 1, 2, 4, 4))
			require.NoError(t, err)
			require.Len(t, res.Model.Graph.Nodes, 1)
			n := res.Model.Graph.Nodes[0]
			assert.Equal(t, tt.opType, n.OpType)
			if !tt.attrs {
				assert.Empty(t, n.Attributes)
				return
			}
			assert.NotNil(t, n.Attr("kernel_shape"))
			assert.NotNil(t, n.Attr("strides"))
			assert.Len(t, n.Attr("pads").Ints, 4)
		})
	}
}

func TestExport_BatchNormalization(t *testing.T) {
	x := randTensor(4, 3, 2, 2, 2)

	t.Run("test", func(t *testing.T) {
		res, err := export.Export(export.FromModule(nn.NewSequential(nn.NewBatchNorm2D(2))), x)
		require.NoError(t, err)
		require.Len(t, res.Model.Graph.Nodes, 1)
		n := res.Model.Graph.Nodes[0]

		assert.Equal(t, []string{"0", "/0/gamma", "/0/beta", "/0/running_mean", "/0/running_var"}, n.Inputs)
		assert.Len(t, n.Outputs, 1)
		assert.Equal(t, int64(1), n.Attr("is_test").I)
		assert.Equal(t, int64(1), n.Attr("spatial").I)
		assert.Equal(t, []int64{0, 0, 0, 1, 1}, n.Attr("consumed_inputs").Ints)
		assert.InDelta(t, nn.DefaultBatchNormEps, n.Attr("epsilon").F, 1e-9)
		assert.InDelta(t, nn.DefaultBatchNormDecay, n.Attr("momentum").F, 1e-6)
		assert.Equal(t, []string{"/0/gamma", "/0/beta", "/0/running_mean", "/0/running_var"}, initializerNames(res.Model))
	})

	t.Run("train", func(t *testing.T) {
		bn := nn.NewBatchNorm2D(2)
		res, err := export.Export(export.FromModule(nn.NewSequential(bn)), x, export.WithTrain(true))
		require.NoError(t, err)
		n := res.Model.Graph.Nodes[0]

		require.Len(t, n.Outputs, 5)
		assert.Equal(t, []string{"/0/mean", "/0/var", "/0/saved_mean", "/0/saved_var"}, n.Outputs[1:])
		assert.Equal(t, int64(0), n.Attr("is_test").I)
		assert.Equal(t, autodiff.ModeTrain, res.Graph.Mode())

		// The running statistics are exported after the training-mode update.
		for i := range res.Model.Graph.Initializers {
			init := &res.Model.Graph.Initializers[i]
			if init.Name == "/0/running_mean" {
				assert.Equal(t, bn.AvgMean.Data(), init.RawData)
			}
		}
	})
}

func TestExport_LinearWithoutBias(t *testing.T) {
	model := nn.NewSequential(nn.NewLinear(3, 2, nn.WithoutBias(), seeded()))
	x := randTensor(5, 4, 3)

	res, err := export.Export(export.FromModule(model), x)
	require.NoError(t, err)

	gemm := res.Model.Graph.Nodes[0]
	assert.Equal(t, []string{"0", "/0/W", "/0/zero_b"}, gemm.Inputs)
	assert.Contains(t, initializerNames(res.Model), "/0/zero_b")

	out := runExported(t, res.Model, map[string]*tensor.RawTensor{"0": x})
	assert.InDeltaSlice(t, res.Outputs[0].Data().Float64s(), out[res.Model.Graph.Outputs[0].Name].Float64s(), 1e-5)
}

func TestExport_UnsupportedOperator(t *testing.T) {
	model := nn.NewSequential(nn.NewLinear(3, 2, seeded()), nn.NewSigmoid())
	filename := filepath.Join(t.TempDir(), "model.onnx")

	_, err := export.Export(export.FromModule(model), randTensor(6, 1, 3), export.WithFilename(filename))

	var unsupported *export.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, autodiff.KindSigmoid, unsupported.Kind)
	assert.Contains(t, err.Error(), "Sigmoid")
	assert.NoFileExists(t, filename)
}

func TestExport_InitializersRoundTrip(t *testing.T) {
	model := convNet()
	filename := filepath.Join(t.TempDir(), "model.onnx")

	_, err := export.Export(export.FromModule(model), randTensor(7, 1, 3, 28, 28), export.WithFilename(filename))
	require.NoError(t, err)

	parsed, err := onnx.ParseFile(filename)
	require.NoError(t, err)
	params := model.NamedParams()
	require.Len(t, parsed.Graph.Initializers, len(params))
	for i, np := range params {
		init := &parsed.Graph.Initializers[i]
		assert.Equal(t, np.Name, init.Name)
		raw, err := onnx.ToRaw(init)
		require.NoError(t, err)
		assert.Equal(t, np.Param.Data.Shape(), raw.Shape())
		assert.Equal(t, np.Param.Data.Data(), raw.Data(), "parameter %s", np.Name)
	}
}

func TestExport_Idempotent(t *testing.T) {
	model := export.FromModule(convNet())
	x := randTensor(8, 1, 3, 28, 28)

	first, err := export.Export(model, x)
	require.NoError(t, err)
	second, err := export.Export(model, x)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Model, second.Model); diff != "" {
		t.Errorf("exports differ (-first +second):\n%s", diff)
	}
}

func TestExport_WithoutParams(t *testing.T) {
	res, err := export.Export(export.FromModule(convNet()), randTensor(9, 1, 3, 28, 28), export.WithExportParams(false))
	require.NoError(t, err)

	assert.Empty(t, res.Model.Graph.Initializers)
	assert.Equal(t, []string{"/0/W", "/0/b", "/2/W", "/2/b", "0"}, inputNames(res.Model))
}

func TestExport_NameOverrides(t *testing.T) {
	res, err := export.Export(export.FromModule(convNet()), randTensor(10, 1, 3, 28, 28),
		export.WithInputNames("x"), export.WithOutputNames("y"), export.WithGraphName("mnist"))
	require.NoError(t, err)
	g := res.Model.Graph

	assert.Equal(t, "mnist", g.Name)
	assert.Equal(t, "x", g.Inputs[len(g.Inputs)-1].Name)
	assert.Equal(t, "x", g.Nodes[0].Inputs[0])
	assert.Equal(t, "y", g.Outputs[0].Name)
	assert.Equal(t, "y", g.Nodes[len(g.Nodes)-1].Outputs[0])
}

func TestExport_DuplicateOutputs(t *testing.T) {
	model := &funcModel{forward: func(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
		y, err := ops.ReLU(args[0])
		if err != nil {
			return nil, err
		}
		return []*autodiff.Variable{y, y, args[0]}, nil
	}}

	res, err := export.Export(model, randTensor(11, 2, 2))
	require.NoError(t, err)

	require.Len(t, res.Outputs, 2)
	require.Len(t, res.Model.Graph.Outputs, 2)
	assert.Equal(t, res.Model.Graph.Nodes[0].Outputs[0], res.Model.Graph.Outputs[0].Name)
	assert.Equal(t, "0", res.Model.Graph.Outputs[1].Name, "an input returned as output keeps its name")
}

func TestExport_OutputFromAnotherGraph(t *testing.T) {
	other := autodiff.NewGraph(cpu.New())
	foreign, err := ops.ReLU(other.Input(randTensor(30, 2, 2)))
	require.NoError(t, err)

	model := &funcModel{forward: func(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
		y, err := ops.ReLU(args[0])
		if err != nil {
			return nil, err
		}
		for range 2 {
			if _, err := ops.Neg(y); err != nil {
				return nil, err
			}
		}
		return []*autodiff.Variable{foreign}, nil
	}}

	_, err = export.Export(model, randTensor(31, 2, 2))
	assert.ErrorContains(t, err, "model output 0 belongs to a different graph")
}

func TestExport_KeywordArguments(t *testing.T) {
	model := &funcModel{named: func(args map[string]*autodiff.Variable) ([]*autodiff.Variable, error) {
		y, err := ops.Sub(args["x"], args["bias"])
		if err != nil {
			return nil, err
		}
		return []*autodiff.Variable{y}, nil
	}}
	args := map[string]*tensor.RawTensor{"x": randTensor(12, 2, 3), "bias": randTensor(13, 3)}

	res, err := export.Export(model, args)
	require.NoError(t, err)

	// Keys are bound in sorted order: bias is handle 0, x is handle 1.
	assert.Equal(t, []string{"1", "0"}, res.Model.Graph.Nodes[0].Inputs)
	assert.Equal(t, []string{"0", "1"}, inputNames(res.Model))

	_, err = export.Export(export.FromModule(convNet()), args)
	assert.ErrorIs(t, err, export.ErrConfiguration)
}

func TestExport_InvalidArguments(t *testing.T) {
	model := export.FromModule(convNet())
	for _, args := range []any{42, "x", []*tensor.RawTensor{}, []*tensor.RawTensor{nil}, (*tensor.RawTensor)(nil)} {
		_, err := export.Export(model, args)
		var invalid *export.InvalidArgumentError
		assert.ErrorAs(t, err, &invalid, "args %#v", args)
	}
}

func TestExport_ConfigurationErrors(t *testing.T) {
	x := randTensor(14, 1, 3, 28, 28)
	tests := []struct {
		name string
		opts []export.Option
	}{
		{"opset too new", []export.Option{export.WithOpset(9)}},
		{"opset zero", []export.Option{export.WithOpset(0)}},
		{"empty graph name", []export.Option{export.WithGraphName("")}},
		{"too many input names", []export.Option{export.WithInputNames("a", "b")}},
		{"duplicate output names", []export.Option{export.WithOutputNames("y", "y")}},
		{"input named like a tensor handle", []export.Option{export.WithInputNames("4")}},
		{"output named like a parameter", []export.Option{export.WithOutputNames("/0/W")}},
		{"input named like a bias", []export.Option{export.WithInputNames("/2/b")}},
		{"input and output share a name", []export.Option{export.WithInputNames("x"), export.WithOutputNames("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := export.Export(export.FromModule(convNet()), x, tt.opts...)
			assert.ErrorIs(t, err, export.ErrConfiguration)
		})
	}

	t.Run("parameter missing from NamedParams", func(t *testing.T) {
		hidden := autodiff.NewParameter("W", tensor.Ones(tensor.Shape{3}, tensor.Float32))
		model := &funcModel{forward: func(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
			y, err := ops.Mul(args[0], args[0].Graph().Param(hidden))
			return []*autodiff.Variable{y}, err
		}}
		_, err := export.Export(model, randTensor(15, 2, 3))
		assert.ErrorIs(t, err, export.ErrConfiguration)
	})
}

func TestExport_WritesModelAndText(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "nested", "model.onnx")
	reg := metrics.NewRegistry()

	_, err := export.Export(export.FromModule(convNet()), randTensor(16, 1, 3, 28, 28),
		export.WithFilename(filename), export.WithSaveText(true), export.WithMetrics(reg))
	require.NoError(t, err)

	assert.FileExists(t, filename)
	text, err := os.ReadFile(filename + ".txt")
	require.NoError(t, err)
	assert.Contains(t, string(text), "op_type: Gemm")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ExportsTotal.WithLabelValues("model", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.FilesWrittenTotal.WithLabelValues("file")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.OperatorsTotal.WithLabelValues("Conv"))+testutil.ToFloat64(reg.OperatorsTotal.WithLabelValues("Gemm")))
}

func TestExport_SchemaValidationError(t *testing.T) {
	cause := fmt.Errorf("%w: node 0 (Relu): 2 inputs, want 1..1", onnx.ErrInvalidModel)
	err := fmt.Errorf("export: %w", &export.SchemaValidationError{Stage: "node", Err: cause})

	var schema *export.SchemaValidationError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, "node", schema.Stage)
	assert.True(t, errors.Is(err, onnx.ErrInvalidModel))
	assert.Contains(t, err.Error(), "Relu")
}

func TestExport_OverrideCollisionIsNotSchemaError(t *testing.T) {
	_, err := export.Export(export.FromModule(convNet()), randTensor(17, 1, 3, 28, 28),
		export.WithInputNames("/0/W"))

	require.ErrorIs(t, err, export.ErrConfiguration)
	var schema *export.SchemaValidationError
	assert.False(t, errors.As(err, &schema))
}

// funcModel adapts closures to export.KeywordModel.
type funcModel struct {
	params  []nn.NamedParam
	forward func(args ...*autodiff.Variable) ([]*autodiff.Variable, error)
	named   func(args map[string]*autodiff.Variable) ([]*autodiff.Variable, error)
}

func (m *funcModel) NamedParams() []nn.NamedParam { return m.params }

func (m *funcModel) Forward(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
	return m.forward(args...)
}

func (m *funcModel) ForwardNamed(args map[string]*autodiff.Variable) ([]*autodiff.Variable, error) {
	return m.named(args)
}
