package export

import (
	"fmt"
	"sort"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Model is anything whose forward pass can be traced and exported.
type Model interface {
	// NamedParams lists every parameter the forward pass may use, with its
	// hierarchical name.
	NamedParams() []nn.NamedParam

	// Forward records the computation on the graph of its arguments.
	Forward(args ...*autodiff.Variable) ([]*autodiff.Variable, error)
}

// KeywordModel is a Model that also accepts named arguments.
type KeywordModel interface {
	Model
	ForwardNamed(args map[string]*autodiff.Variable) ([]*autodiff.Variable, error)
}

// FromModule adapts a single-input layer to Model.
func FromModule(m nn.Module) Model {
	return &moduleModel{module: m}
}

type moduleModel struct {
	module nn.Module
}

func (m *moduleModel) NamedParams() []nn.NamedParam {
	return m.module.NamedParams()
}

func (m *moduleModel) Forward(args ...*autodiff.Variable) ([]*autodiff.Variable, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("module takes 1 input, got %d", len(args))
	}
	y, err := m.module.Forward(args[0])
	if err != nil {
		return nil, err
	}
	return []*autodiff.Variable{y}, nil
}

// arguments are the model inputs bound into the export graph. For keyword
// arguments, vars follows the sorted keys.
type arguments struct {
	vars []*autodiff.Variable
	keys []string
}

// bindArgs records every argument tensor as a fresh input of g. Variables
// from other graphs contribute their data only.
func bindArgs(g *autodiff.Graph, args any) (*arguments, error) {
	var data []*tensor.RawTensor
	var keys []string
	switch a := args.(type) {
	case *autodiff.Variable:
		if a == nil {
			return nil, &InvalidArgumentError{Got: "nil *autodiff.Variable"}
		}
		data = []*tensor.RawTensor{a.Data()}
	case *tensor.RawTensor:
		if a == nil {
			return nil, &InvalidArgumentError{Got: "nil *tensor.RawTensor"}
		}
		data = []*tensor.RawTensor{a}
	case []*autodiff.Variable:
		for i, v := range a {
			if v == nil {
				return nil, &InvalidArgumentError{Got: fmt.Sprintf("nil element %d", i)}
			}
			data = append(data, v.Data())
		}
	case []*tensor.RawTensor:
		for i, t := range a {
			if t == nil {
				return nil, &InvalidArgumentError{Got: fmt.Sprintf("nil element %d", i)}
			}
			data = append(data, t)
		}
	case map[string]*autodiff.Variable:
		keys = sortedKeys(a)
		for _, k := range keys {
			if a[k] == nil {
				return nil, &InvalidArgumentError{Got: fmt.Sprintf("nil value for %q", k)}
			}
			data = append(data, a[k].Data())
		}
	case map[string]*tensor.RawTensor:
		keys = sortedKeys(a)
		for _, k := range keys {
			if a[k] == nil {
				return nil, &InvalidArgumentError{Got: fmt.Sprintf("nil value for %q", k)}
			}
			data = append(data, a[k])
		}
	default:
		return nil, &InvalidArgumentError{Got: fmt.Sprintf("%T", args)}
	}
	if len(data) == 0 {
		return nil, &InvalidArgumentError{Got: fmt.Sprintf("empty %T", args)}
	}

	bound := &arguments{keys: keys, vars: make([]*autodiff.Variable, len(data))}
	for i, t := range data {
		bound.vars[i] = g.Input(t)
	}
	return bound, nil
}

// run calls the model with positional or keyword arguments.
func (a *arguments) run(model Model) ([]*autodiff.Variable, error) {
	if a.keys == nil {
		return model.Forward(a.vars...)
	}
	km, ok := model.(KeywordModel)
	if !ok {
		return nil, configErr("keyword arguments given but %T has no ForwardNamed", model)
	}
	named := make(map[string]*autodiff.Variable, len(a.keys))
	for i, k := range a.keys {
		named[k] = a.vars[i]
	}
	return km.ForwardNamed(named)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// uniqueOutputs drops repeated outputs, keeping the first occurrence. Every
// output must have been recorded on g.
func uniqueOutputs(g *autodiff.Graph, outs []*autodiff.Variable) ([]*autodiff.Variable, error) {
	if len(outs) == 0 {
		return nil, fmt.Errorf("model returned no outputs")
	}
	seen := make(map[autodiff.VarID]bool, len(outs))
	unique := make([]*autodiff.Variable, 0, len(outs))
	for i, v := range outs {
		if v == nil {
			return nil, fmt.Errorf("model output %d is nil", i)
		}
		if v.Graph() != g {
			return nil, fmt.Errorf("model output %d belongs to a different graph", i)
		}
		if seen[v.ID()] {
			continue
		}
		seen[v.ID()] = true
		unique = append(unique, v)
	}
	return unique, nil
}
