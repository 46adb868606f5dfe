package export

import (
	"strconv"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/onnx"
)

// ParamNames maps each parameter of the exported model to its ONNX name.
type ParamNames map[*autodiff.Parameter]string

// NameParameters assigns every parameter its hierarchical name and builds
// one initializer and one graph input descriptor per parameter, in the given
// order. A parameter listed twice keeps its first name.
func NameParameters(named []nn.NamedParam) (ParamNames, []onnx.TensorProto, []onnx.ValueInfoProto, error) {
	names := make(ParamNames, len(named))
	taken := make(map[string]bool, len(named))
	inits := make([]onnx.TensorProto, 0, len(named))
	inputs := make([]onnx.ValueInfoProto, 0, len(named))

	for _, np := range named {
		if np.Param == nil || np.Param.Data == nil {
			return nil, nil, nil, configErr("parameter %q has no data", np.Name)
		}
		if np.Name == "" {
			return nil, nil, nil, configErr("parameter %q has an empty name", np.Param.Key)
		}
		if taken[np.Name] {
			return nil, nil, nil, configErr("duplicate parameter name %q", np.Name)
		}
		if _, ok := names[np.Param]; ok {
			continue
		}
		taken[np.Name] = true
		names[np.Param] = np.Name

		init, err := onnx.TensorFromRaw(np.Name, np.Param.Data)
		if err != nil {
			return nil, nil, nil, configErr("%v", err)
		}
		inits = append(inits, init)
		inputs = append(inputs, onnx.MakeTensorValueInfo(np.Name, init.DataType, init.Dims))
	}
	return names, inits, inputs, nil
}

// namespace resolves trace handles to ONNX value names: overridden inputs and
// outputs first, then parameter names, then the decimal handle.
type namespace struct {
	graph     *autodiff.Graph
	params    ParamNames
	overrides map[autodiff.VarID]string
}

func newNamespace(g *autodiff.Graph, params ParamNames, inputs, outputs []*autodiff.Variable, o *Options) (*namespace, error) {
	ns := &namespace{graph: g, params: params, overrides: make(map[autodiff.VarID]string)}
	if len(o.InputNames) > 0 {
		if len(o.InputNames) != len(inputs) {
			return nil, configErr("%d input names for %d inputs", len(o.InputNames), len(inputs))
		}
		for i, v := range inputs {
			ns.overrides[v.ID()] = o.InputNames[i]
		}
	}
	if len(o.OutputNames) > 0 {
		if len(o.OutputNames) != len(outputs) {
			return nil, configErr("%d output names for %d outputs", len(o.OutputNames), len(outputs))
		}
		for i, v := range outputs {
			if v.Node().Creator() == autodiff.NoFunc {
				return nil, configErr("output %d is a graph input or parameter and keeps its name", i)
			}
			ns.overrides[v.ID()] = o.OutputNames[i]
		}
	}
	if err := ns.checkOverrides(); err != nil {
		return nil, err
	}
	return ns, nil
}

// checkOverrides rejects override names that another value of the graph
// already uses: a parameter name, the decimal name of another handle, or a
// second override.
func (ns *namespace) checkOverrides() error {
	paramNames := make(map[string]bool, len(ns.params))
	for _, name := range ns.params {
		paramNames[name] = true
	}
	used := make(map[string]autodiff.VarID, len(ns.overrides))
	for id, name := range ns.overrides {
		if paramNames[name] {
			return configErr("name %q is already used by a parameter", name)
		}
		if other, ok := used[name]; ok && other != id {
			return configErr("name %q is given to both %s and %s", name, other, id)
		}
		used[name] = id
		if n, err := strconv.Atoi(name); err == nil && n >= 0 && n < ns.graph.NumVars() {
			if other := autodiff.VarID(n); other != id && other.String() == name {
				return configErr("name %q is already used by tensor %s", name, other)
			}
		}
	}
	return nil
}

func (ns *namespace) name(id autodiff.VarID) (string, error) {
	if name, ok := ns.overrides[id]; ok {
		return name, nil
	}
	node := ns.graph.Node(id)
	if p := node.Param(); p != nil {
		name, ok := ns.params[p]
		if !ok {
			return "", configErr("parameter %q used by the forward pass is not listed by NamedParams", node.Name())
		}
		return name, nil
	}
	return id.String(), nil
}
