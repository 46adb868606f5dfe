package export

import (
	"container/heap"

	"github.com/born-ml/onnxport/internal/autodiff"
)

// NameFunc resolves a trace handle to its ONNX value name.
type NameFunc func(autodiff.VarID) (string, error)

// Binding is one discovered function with its operands resolved to ONNX
// names.
type Binding struct {
	Func    autodiff.FuncID
	Kind    autodiff.Kind
	Inputs  []string
	Outputs []string
	// Params maps parameter keys ("W", "gamma") to the parameters bound as
	// inputs.
	Params map[string]*autodiff.Parameter
}

// Edge is a traversed link of the trace: a function producing a tensor when
// Produced is set, a tensor consumed by a function otherwise.
type Edge struct {
	Var      autodiff.VarID
	Func     autodiff.FuncID
	Produced bool
}

// Discovery is the part of a trace reachable from the outputs.
type Discovery struct {
	// Ops is in discovery order: every function precedes the functions
	// producing its inputs.
	Ops   []Binding
	Vars  []autodiff.VarID
	Funcs []autodiff.FuncID
	Edges []Edge

	// OutputNames binds each declared output produced by a function to the
	// name that function writes it under.
	OutputNames map[autodiff.VarID]string
}

type itemKind uint8

const (
	varItem itemKind = iota
	funcItem
)

type itemKey struct {
	kind itemKind
	id   int
}

type item struct {
	itemKey
	rank int
	seq  int
}

// worklist pops the highest rank first and, within a rank, the item pushed
// first.
type worklist []item

func (w worklist) Len() int { return len(w) }

func (w worklist) Less(i, j int) bool {
	if w[i].rank != w[j].rank {
		return w[i].rank > w[j].rank
	}
	return w[i].seq < w[j].seq
}

func (w worklist) Swap(i, j int) { w[i], w[j] = w[j], w[i] }

func (w *worklist) Push(x any) { *w = append(*w, x.(item)) }

func (w *worklist) Pop() any {
	old := *w
	n := len(old)
	it := old[n-1]
	*w = old[:n-1]
	return it
}

type walker struct {
	graph  *autodiff.Graph
	name   NameFunc
	queue  worklist
	seq    int
	queued map[itemKey]bool
	edges  map[Edge]bool
	want   map[autodiff.VarID]bool
	found  *Discovery
}

// Walk discovers every function and tensor the outputs depend on. Items are
// visited by decreasing rank, so a function is visited only after every
// discovered function consuming its outputs. Each item is visited once and
// each edge traversed once. The trace is not modified.
func Walk(g *autodiff.Graph, outputs []autodiff.VarID, name NameFunc) (*Discovery, error) {
	w := &walker{
		graph:  g,
		name:   name,
		queued: make(map[itemKey]bool),
		edges:  make(map[Edge]bool),
		want:   make(map[autodiff.VarID]bool, len(outputs)),
		found:  &Discovery{OutputNames: make(map[autodiff.VarID]string)},
	}
	for _, id := range outputs {
		w.want[id] = true
		w.pushVar(id)
	}

	for w.queue.Len() > 0 {
		it := heap.Pop(&w.queue).(item)
		switch it.kind {
		case varItem:
			w.visitVar(autodiff.VarID(it.id))
		case funcItem:
			if err := w.visitFunc(autodiff.FuncID(it.id)); err != nil {
				return nil, err
			}
		}
	}
	return w.found, nil
}

func (w *walker) pushVar(id autodiff.VarID) {
	key := itemKey{varItem, int(id)}
	if w.queued[key] {
		return
	}
	w.queued[key] = true
	heap.Push(&w.queue, item{itemKey: key, rank: w.graph.Node(id).Rank(), seq: w.next()})
}

func (w *walker) pushFunc(id autodiff.FuncID) {
	key := itemKey{funcItem, int(id)}
	if w.queued[key] {
		return
	}
	w.queued[key] = true
	heap.Push(&w.queue, item{itemKey: key, rank: w.graph.Func(id).Rank(), seq: w.next()})
}

func (w *walker) next() int {
	w.seq++
	return w.seq
}

// traverse marks e and reports whether it was new.
func (w *walker) traverse(e Edge) bool {
	if w.edges[e] {
		return false
	}
	w.edges[e] = true
	w.found.Edges = append(w.found.Edges, e)
	return true
}

func (w *walker) visitVar(id autodiff.VarID) {
	w.found.Vars = append(w.found.Vars, id)
	creator := w.graph.Node(id).Creator()
	if creator == autodiff.NoFunc {
		return
	}
	if w.traverse(Edge{Var: id, Func: creator, Produced: true}) {
		w.pushFunc(creator)
	}
}

func (w *walker) visitFunc(id autodiff.FuncID) error {
	fn := w.graph.Func(id)
	w.found.Funcs = append(w.found.Funcs, id)

	b := Binding{Func: id, Kind: fn.Kind()}
	for _, in := range fn.Inputs() {
		if w.traverse(Edge{Var: in, Func: id}) {
			w.pushVar(in)
		}
		name, err := w.name(in)
		if err != nil {
			return err
		}
		b.Inputs = append(b.Inputs, name)
		if p := w.graph.Node(in).Param(); p != nil {
			if b.Params == nil {
				b.Params = make(map[string]*autodiff.Parameter)
			}
			b.Params[p.Key] = p
		}
	}

	for i, out := range fn.Outputs() {
		name, err := w.name(out)
		if err != nil {
			return err
		}
		b.Outputs = append(b.Outputs, name)
		// Outputs nobody holds any more cannot be declared outputs.
		if v, ok := w.graph.OutputVariable(id, i); ok && w.want[v.ID()] {
			w.found.OutputNames[v.ID()] = name
		}
	}

	w.found.Ops = append(w.found.Ops, b)
	return nil
}
