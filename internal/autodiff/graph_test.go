package autodiff_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/backend/cpu"
	"github.com/born-ml/onnxport/internal/tensor"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "LinearFunction", autodiff.KindLinear.String())
	assert.Equal(t, "Convolution2DFunction", autodiff.KindConvolution2D.String())
	assert.Equal(t, "PReLUFunction", autodiff.KindPReLU.String())
	assert.Equal(t, "Unknown", autodiff.Kind(999).String())
	assert.Len(t, autodiff.Kinds(), 17)
}

func TestGraph_RanksAndHandles(t *testing.T) {
	g := autodiff.NewGraph(cpu.New())
	x := g.Input(tensor.Ones(tensor.Shape{2, 3}, tensor.Float32))
	w := g.Param(autodiff.NewParameter("W", tensor.Ones(tensor.Shape{4, 3}, tensor.Float32)))

	h, err := ops.Linear(x, w, nil)
	require.NoError(t, err)
	y, err := ops.ReLU(h)
	require.NoError(t, err)
	z, err := ops.Add(y, g.Input(tensor.Ones(tensor.Shape{4}, tensor.Float32)))
	require.NoError(t, err)

	assert.Equal(t, 0, x.Node().Rank())
	assert.Equal(t, 1, h.Node().Rank())
	assert.Equal(t, 2, y.Node().Rank())
	assert.Equal(t, 3, z.Node().Rank())

	assert.Equal(t, autodiff.NoFunc, x.Node().Creator())
	relu := g.Func(y.Node().Creator())
	assert.Equal(t, autodiff.KindReLU, relu.Kind())
	assert.Equal(t, []autodiff.VarID{h.ID()}, relu.Inputs())
	assert.Equal(t, []autodiff.VarID{y.ID()}, relu.Outputs())
	assert.Equal(t, 1, relu.Rank())

	assert.Equal(t, "W", w.Node().Name())
	assert.Empty(t, x.Node().Name())
	assert.Equal(t, 3, g.NumFuncs())
	assert.Equal(t, tensor.Shape{2, 4}, h.Node().Shape())
}

func TestGraph_ParamIsBoundOnce(t *testing.T) {
	g := autodiff.NewGraph(cpu.New())
	p := autodiff.NewParameter("b", tensor.Zeros(tensor.Shape{3}, tensor.Float32))

	a := g.Param(p)
	b := g.Param(p)
	assert.Same(t, a, b)
	assert.Same(t, p, a.Node().Param())

	got, ok := g.ParamVariable(p)
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = g.ParamVariable(autodiff.NewParameter("c", tensor.Zeros(tensor.Shape{1}, tensor.Float32)))
	assert.False(t, ok)
}

func TestGraph_RejectsForeignInputs(t *testing.T) {
	g1 := autodiff.NewGraph(cpu.New())
	g2 := autodiff.NewGraph(cpu.New())
	a := g1.Input(tensor.Ones(tensor.Shape{2}, tensor.Float32))
	b := g2.Input(tensor.Ones(tensor.Shape{2}, tensor.Float32))

	_, err := ops.Add(a, b)
	assert.Error(t, err)
}

func TestGraph_OutputReferencesAreWeak(t *testing.T) {
	g := autodiff.NewGraph(cpu.New())
	x := g.Input(tensor.Ones(tensor.Shape{2}, tensor.Float32))

	fid, id := func() (autodiff.FuncID, autodiff.VarID) {
		y, err := ops.Neg(x)
		require.NoError(t, err)
		v, ok := g.OutputVariable(y.Node().Creator(), 0)
		require.True(t, ok)
		assert.Same(t, y, v)
		return y.Node().Creator(), y.ID()
	}()

	// The only strong reference is gone; the trace record itself stays.
	runtime.GC()
	runtime.GC()

	_, ok := g.OutputVariable(fid, 0)
	assert.False(t, ok)
	assert.Equal(t, tensor.Shape{2}, g.Node(id).Shape())
	assert.Equal(t, fid, g.Node(id).Creator())
}

func TestGraph_Backward(t *testing.T) {
	g := autodiff.NewGraph(cpu.New())
	xData, _ := tensor.FromSlice(tensor.Shape{1, 2}, []float32{1, -2})
	wData, _ := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	w := autodiff.NewParameter("W", wData)
	x := g.Input(xData)

	// y = x @ W^T = [1-4, 3-8] = [-3, -5]; z = y * y
	y, err := ops.Linear(x, g.Param(w), nil)
	require.NoError(t, err)
	z, err := ops.Mul(y, y)
	require.NoError(t, err)

	require.NoError(t, g.Backward([]*autodiff.Variable{z}, nil))

	// dz/dy = 2y accumulates through both operands of Mul.
	assert.Equal(t, []float32{-6, -10}, y.Grad().AsFloat32())
	// dz/dx = dz/dy @ W
	assert.Equal(t, []float32{-36, -52}, x.Grad().AsFloat32())
	// dz/dW = dz/dy^T @ x
	assert.Equal(t, []float32{-6, 12, -10, 20}, g.ParamGrad(w).AsFloat32())

	unused := autodiff.NewParameter("unused", tensor.Ones(tensor.Shape{3}, tensor.Float32))
	assert.Equal(t, []float32{0, 0, 0}, g.ParamGrad(unused).AsFloat32())
}

func TestGraph_BackwardSeedMismatch(t *testing.T) {
	g := autodiff.NewGraph(cpu.New())
	x := g.Input(tensor.Ones(tensor.Shape{2}, tensor.Float32))
	y, err := ops.Neg(x)
	require.NoError(t, err)

	err = g.Backward([]*autodiff.Variable{y}, []*tensor.RawTensor{tensor.Ones(tensor.Shape{3}, tensor.Float32)})
	assert.Error(t, err)

	err = g.Backward([]*autodiff.Variable{y}, []*tensor.RawTensor{})
	assert.Error(t, err)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "train", autodiff.ModeTrain.String())
	assert.Equal(t, "test", autodiff.ModeTest.String())
	assert.Equal(t, autodiff.ModeTrain, autodiff.NewGraph(cpu.New(), autodiff.WithMode(autodiff.ModeTrain)).Mode())
}
