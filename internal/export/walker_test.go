package export_test

import (
	"runtime"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/backend/cpu"
	"github.com/born-ml/onnxport/internal/export"
	"github.com/born-ml/onnxport/internal/tensor"
)

func handleName(id autodiff.VarID) (string, error) { return id.String(), nil }

func newTestGraph() *autodiff.Graph { return autodiff.NewGraph(cpu.New()) }

func scalarInput(g *autodiff.Graph) *autodiff.Variable {
	return g.Input(tensor.Ones(tensor.Shape{2}, tensor.Float32))
}

// buildRandomTrace records one Neg, Add or Mul per step on operands picked
// from the values recorded so far.
func buildRandomTrace(steps []uint16) (*autodiff.Graph, []*autodiff.Variable, error) {
	g := newTestGraph()
	vals := []*autodiff.Variable{scalarInput(g), scalarInput(g)}
	for _, s := range steps {
		a := vals[int(s>>2)%len(vals)]
		b := vals[int(s>>7)%len(vals)]
		var v *autodiff.Variable
		var err error
		switch s % 3 {
		case 0:
			v, err = ops.Neg(a)
		case 1:
			v, err = ops.Add(a, b)
		default:
			v, err = ops.Mul(a, b)
		}
		if err != nil {
			return nil, nil, err
		}
		vals = append(vals, v)
	}
	return g, vals, nil
}

// ancestors returns the functions and tensors reachable backwards from the
// roots.
func ancestors(g *autodiff.Graph, roots []autodiff.VarID) (map[autodiff.FuncID]bool, map[autodiff.VarID]bool) {
	funcs := make(map[autodiff.FuncID]bool)
	vars := make(map[autodiff.VarID]bool)
	stack := append([]autodiff.VarID(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if vars[id] {
			continue
		}
		vars[id] = true
		creator := g.Node(id).Creator()
		if creator == autodiff.NoFunc || funcs[creator] {
			continue
		}
		funcs[creator] = true
		stack = append(stack, g.Func(creator).Inputs()...)
	}
	return funcs, vars
}

func TestWalk_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("walk discovers exactly the ancestors in topological order", prop.ForAll(
		func(steps []uint16, pick uint8) bool {
			g, vals, err := buildRandomTrace(steps)
			if err != nil {
				return false
			}
			roots := []autodiff.VarID{vals[len(vals)-1].ID(), vals[int(pick)%len(vals)].ID()}

			d, err := export.Walk(g, roots, handleName)
			if err != nil {
				return false
			}
			runtime.KeepAlive(vals)

			wantFuncs, wantVars := ancestors(g, roots)
			if len(d.Funcs) != len(wantFuncs) || len(d.Ops) != len(wantFuncs) || len(d.Vars) != len(wantVars) {
				return false
			}
			seenFuncs := make(map[autodiff.FuncID]bool)
			for _, f := range d.Funcs {
				if !wantFuncs[f] || seenFuncs[f] {
					return false
				}
				seenFuncs[f] = true
			}
			seenVars := make(map[autodiff.VarID]bool)
			for _, v := range d.Vars {
				if !wantVars[v] || seenVars[v] {
					return false
				}
				seenVars[v] = true
			}
			seenEdges := make(map[export.Edge]bool)
			for _, e := range d.Edges {
				if seenEdges[e] {
					return false
				}
				seenEdges[e] = true
			}

			// Reversed discovery order must define every operand before use.
			defined := make(map[autodiff.VarID]bool)
			for i := len(d.Ops) - 1; i >= 0; i-- {
				fn := g.Func(d.Ops[i].Func)
				for _, in := range fn.Inputs() {
					if g.Node(in).Creator() != autodiff.NoFunc && !defined[in] {
						return false
					}
				}
				for _, out := range fn.Outputs() {
					defined[out] = true
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt16()),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestWalk_Diamond(t *testing.T) {
	g := newTestGraph()
	x := scalarInput(g)
	a, err := ops.Neg(x)
	require.NoError(t, err)
	b, err := ops.Abs(x)
	require.NoError(t, err)
	y, err := ops.Add(a, b)
	require.NoError(t, err)

	d, err := export.Walk(g, []autodiff.VarID{y.ID()}, handleName)
	require.NoError(t, err)

	require.Len(t, d.Ops, 3)
	assert.Equal(t, autodiff.KindAdd, d.Ops[0].Kind)
	assert.Equal(t, autodiff.KindNeg, d.Ops[1].Kind, "equal ranks pop in push order")
	assert.Equal(t, autodiff.KindAbsolute, d.Ops[2].Kind)
	assert.Len(t, d.Vars, 4)
	assert.Len(t, d.Edges, 7)
	assert.Equal(t, y.ID().String(), d.OutputNames[y.ID()])
}

func TestWalk_RepeatedOperand(t *testing.T) {
	g := newTestGraph()
	x := scalarInput(g)
	y, err := ops.Mul(x, x)
	require.NoError(t, err)

	d, err := export.Walk(g, []autodiff.VarID{y.ID()}, handleName)
	require.NoError(t, err)

	require.Len(t, d.Ops, 1)
	assert.Equal(t, []string{"0", "0"}, d.Ops[0].Inputs)
	assert.Len(t, d.Edges, 2, "the consumed edge is traversed once")
}

// splitFunction returns its input and its negation.
type splitFunction struct{}

func (splitFunction) Kind() autodiff.Kind { return autodiff.KindTanh }

func (splitFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return []*tensor.RawTensor{in[0], ctx.Backend.Neg(in[0])}, nil
}

func (splitFunction) Backward(_ autodiff.Context, _, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return []*tensor.RawTensor{g[0]}, nil
}

func TestWalk_MultiOutputFunctionVisitedOnce(t *testing.T) {
	g := newTestGraph()
	x := scalarInput(g)
	outs, err := g.Apply(splitFunction{}, x)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	y, err := ops.Add(outs[0], outs[1])
	require.NoError(t, err)

	d, err := export.Walk(g, []autodiff.VarID{y.ID(), outs[1].ID()}, handleName)
	require.NoError(t, err)
	runtime.KeepAlive(outs)

	kinds := make([]autodiff.Kind, len(d.Ops))
	for i, op := range d.Ops {
		kinds[i] = op.Kind
	}
	assert.Equal(t, []autodiff.Kind{autodiff.KindAdd, autodiff.KindTanh}, kinds)
	assert.Len(t, d.Ops[1].Outputs, 2)
	assert.Equal(t, outs[1].ID().String(), d.OutputNames[outs[1].ID()])
}

func TestWalk_NameError(t *testing.T) {
	g := newTestGraph()
	y, err := ops.Neg(scalarInput(g))
	require.NoError(t, err)

	_, err = export.Walk(g, []autodiff.VarID{y.ID()}, func(autodiff.VarID) (string, error) {
		return "", export.ErrConfiguration
	})
	assert.ErrorIs(t, err, export.ErrConfiguration)
}
