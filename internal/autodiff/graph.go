// Package autodiff records define-by-run computation traces and runs the
// reverse pass over them.
//
// A Graph is an arena owned by one forward pass. Every tensor that takes part
// in the pass gets a VariableNode and every applied Function gets a
// FunctionNode; both are addressed by integer handles (VarID, FuncID) that are
// unique within the Graph. Nodes link to each other only through handles, so
// the trace can be walked without touching the tensors themselves.
//
//	g := autodiff.NewGraph(cpu.New(), autodiff.WithMode(autodiff.ModeTrain))
//	x := g.Input(data)
//	y, err := ops.ReLU(x)
package autodiff

import (
	"fmt"
	"strconv"
	"weak"

	"github.com/born-ml/onnxport/internal/tensor"
)

// VarID is the handle of a VariableNode within its Graph.
type VarID int

// String returns the decimal form used to name unnamed tensors.
func (id VarID) String() string {
	return strconv.Itoa(int(id))
}

// FuncID is the handle of a FunctionNode within its Graph.
type FuncID int

// NoFunc is the creator of graph inputs and parameters.
const NoFunc FuncID = -1

// Parameter is a learnable tensor owned by a layer. Key is the local name
// within the owning layer ("W", "b", "gamma"); the hierarchical name is
// assigned by the layer tree.
type Parameter struct {
	Key  string
	Data *tensor.RawTensor
}

// NewParameter creates a parameter with the given local key.
func NewParameter(key string, data *tensor.RawTensor) *Parameter {
	return &Parameter{Key: key, Data: data}
}

// VariableNode is the trace record of one tensor.
type VariableNode struct {
	id      VarID
	name    string
	shape   tensor.Shape
	dtype   tensor.DataType
	creator FuncID
	rank    int
	param   *Parameter
	ref     weak.Pointer[Variable]
}

// ID returns the node handle.
func (n *VariableNode) ID() VarID { return n.id }

// Name returns the parameter key for parameters and "" otherwise.
func (n *VariableNode) Name() string { return n.name }

// Shape returns the tensor shape recorded at creation.
func (n *VariableNode) Shape() tensor.Shape { return n.shape }

// DType returns the tensor element type.
func (n *VariableNode) DType() tensor.DataType { return n.dtype }

// Creator returns the producing function, or NoFunc for leaves.
func (n *VariableNode) Creator() FuncID { return n.creator }

// Rank returns the generation number: 0 for leaves, creator rank + 1 otherwise.
func (n *VariableNode) Rank() int { return n.rank }

// Param returns the bound parameter, or nil.
func (n *VariableNode) Param() *Parameter { return n.param }

// FunctionNode is the trace record of one applied Function.
type FunctionNode struct {
	id      FuncID
	fn      Function
	inputs  []VarID
	outputs []VarID
	outRefs []weak.Pointer[Variable]
	rank    int

	// retained for the reverse pass
	inData  []*tensor.RawTensor
	outData []*tensor.RawTensor
}

// ID returns the node handle.
func (n *FunctionNode) ID() FuncID { return n.id }

// Kind returns the runtime tag of the recorded function.
func (n *FunctionNode) Kind() Kind { return n.fn.Kind() }

// Function returns the recorded function and its configuration.
func (n *FunctionNode) Function() Function { return n.fn }

// Inputs returns the ordered input handles.
func (n *FunctionNode) Inputs() []VarID { return n.inputs }

// Outputs returns the ordered output handles.
func (n *FunctionNode) Outputs() []VarID { return n.outputs }

// Rank returns the maximum rank over the inputs.
func (n *FunctionNode) Rank() int { return n.rank }

// Graph is the trace arena of one forward pass. It is not safe for
// concurrent use.
type Graph struct {
	backend tensor.Backend
	mode    Mode
	vars    []*VariableNode
	funcs   []*FunctionNode
	params  map[*Parameter]*Variable
	grads   map[VarID]*tensor.RawTensor
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithMode sets the execution mode (default ModeTest).
func WithMode(m Mode) GraphOption {
	return func(g *Graph) { g.mode = m }
}

// NewGraph creates an empty trace that computes with backend.
func NewGraph(backend tensor.Backend, opts ...GraphOption) *Graph {
	g := &Graph{
		backend: backend,
		params:  make(map[*Parameter]*Variable),
		grads:   make(map[VarID]*tensor.RawTensor),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Backend returns the compute backend.
func (g *Graph) Backend() tensor.Backend { return g.backend }

// Mode returns the execution mode.
func (g *Graph) Mode() Mode { return g.mode }

// NumVars returns the number of recorded tensors.
func (g *Graph) NumVars() int { return len(g.vars) }

// NumFuncs returns the number of recorded functions.
func (g *Graph) NumFuncs() int { return len(g.funcs) }

// Node returns the record of a tensor handle.
func (g *Graph) Node(id VarID) *VariableNode {
	return g.vars[id]
}

// Func returns the record of a function handle.
func (g *Graph) Func(id FuncID) *FunctionNode {
	return g.funcs[id]
}

// Variable resolves a handle to its live Variable. It reports false when the
// Variable has been garbage collected.
func (g *Graph) Variable(id VarID) (*Variable, bool) {
	v := g.vars[id].ref.Value()
	return v, v != nil
}

// OutputVariable resolves the i-th output of a function. An expired
// reference is reported as absent.
func (g *Graph) OutputVariable(id FuncID, i int) (*Variable, bool) {
	v := g.funcs[id].outRefs[i].Value()
	return v, v != nil
}

// Input records a new leaf tensor.
func (g *Graph) Input(data *tensor.RawTensor) *Variable {
	return g.newVariable(data, "", NoFunc, 0, nil)
}

// Param binds a parameter into the trace. Binding the same parameter twice
// returns the same Variable.
func (g *Graph) Param(p *Parameter) *Variable {
	if v, ok := g.params[p]; ok {
		return v
	}
	v := g.newVariable(p.Data, p.Key, NoFunc, 0, p)
	g.params[p] = v
	return v
}

// ParamVariable returns the Variable bound to p, if p took part in the pass.
func (g *Graph) ParamVariable(p *Parameter) (*Variable, bool) {
	v, ok := g.params[p]
	return v, ok
}

func (g *Graph) newVariable(data *tensor.RawTensor, name string, creator FuncID, rank int, p *Parameter) *Variable {
	id := VarID(len(g.vars))
	v := &Variable{graph: g, id: id, data: data}
	g.vars = append(g.vars, &VariableNode{
		id:      id,
		name:    name,
		shape:   data.Shape().Clone(),
		dtype:   data.DType(),
		creator: creator,
		rank:    rank,
		param:   p,
		ref:     weak.Make(v),
	})
	return v
}

// Apply runs fn on inputs and records it. Kernel panics are returned as
// errors and leave the trace unchanged.
func (g *Graph) Apply(fn Function, inputs ...*Variable) (outs []*Variable, err error) {
	inData := make([]*tensor.RawTensor, len(inputs))
	inIDs := make([]VarID, len(inputs))
	rank := 0
	for i, in := range inputs {
		if in.graph != g {
			return nil, fmt.Errorf("%s: input %d belongs to a different graph", fn.Kind(), i)
		}
		inData[i] = in.data
		inIDs[i] = in.id
		rank = max(rank, g.vars[in.id].rank)
	}

	defer func() {
		if r := recover(); r != nil {
			outs, err = nil, fmt.Errorf("%s: %v", fn.Kind(), r)
		}
	}()

	outData, err := fn.Forward(Context{Backend: g.backend, Mode: g.mode}, inData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Kind(), err)
	}

	node := &FunctionNode{
		id:      FuncID(len(g.funcs)),
		fn:      fn,
		inputs:  inIDs,
		rank:    rank,
		inData:  inData,
		outData: outData,
	}
	g.funcs = append(g.funcs, node)

	outs = make([]*Variable, len(outData))
	for i, data := range outData {
		v := g.newVariable(data, "", node.id, rank+1, nil)
		node.outputs = append(node.outputs, v.id)
		node.outRefs = append(node.outRefs, weak.Make(v))
		outs[i] = v
	}
	return outs, nil
}

// Apply1 is Apply for single-output functions.
func (g *Graph) Apply1(fn Function, inputs ...*Variable) (*Variable, error) {
	outs, err := g.Apply(fn, inputs...)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}
