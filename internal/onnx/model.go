package onnx

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/onnx/operators"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Model is a compiled graph that evaluates exported models on a backend.
// It is used to check that an export reproduces the runtime's results.
type Model struct {
	proto    *ModelProto
	registry *operators.Registry
	backend  tensor.Backend
	weights  map[string]*tensor.RawTensor
	inputs   []string
	outputs  []string
	steps    []step
	opset    int64
}

// step is one node with its attributes already converted for the registry.
type step struct {
	node *operators.Node
}

// InputNames returns the graph inputs that are not initializers, in
// declaration order.
func (m *Model) InputNames() []string { return m.inputs }

// OutputNames returns the graph outputs in declaration order.
func (m *Model) OutputNames() []string { return m.outputs }

// OpsetVersion returns the imported default-domain opset.
func (m *Model) OpsetVersion() int64 { return m.opset }

// Proto returns the parsed model the executor was compiled from.
func (m *Model) Proto() *ModelProto { return m.proto }

// Metadata returns the model's metadata_props together with its producer
// stamp.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string, len(m.proto.MetadataProps)+3)
	for _, kv := range m.proto.MetadataProps {
		meta[kv.Key] = kv.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}

// Forward evaluates a single-input, single-output model.
func (m *Model) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(m.inputs) != 1 || len(m.outputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, use Run or ForwardNamed", len(m.inputs), len(m.outputs))
	}
	outs, err := m.Run(input)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// Run feeds inputs positionally to InputNames and returns the outputs in
// OutputNames order.
func (m *Model) Run(inputs ...*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) != len(m.inputs) {
		return nil, fmt.Errorf("got %d inputs, model takes %d (%v)", len(inputs), len(m.inputs), m.inputs)
	}
	feed := make(map[string]*tensor.RawTensor, len(inputs))
	for i, name := range m.inputs {
		feed[name] = inputs[i]
	}
	values, err := m.evaluate(feed)
	if err != nil {
		return nil, err
	}
	outs := make([]*tensor.RawTensor, len(m.outputs))
	for i, name := range m.outputs {
		outs[i] = values[name]
	}
	return outs, nil
}

// ForwardNamed evaluates the graph with inputs keyed by graph input name and
// returns the outputs keyed by graph output name. A named input that is
// also an initializer overrides the stored value.
func (m *Model) ForwardNamed(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	values, err := m.evaluate(inputs)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*tensor.RawTensor, len(m.outputs))
	for _, name := range m.outputs {
		result[name] = values[name]
	}
	return result, nil
}

func (m *Model) evaluate(feed map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	values := make(map[string]*tensor.RawTensor, len(m.weights)+len(feed)+len(m.steps))
	for name, t := range m.weights {
		values[name] = t
	}
	for name, t := range feed {
		values[name] = t
	}
	for _, name := range m.inputs {
		if values[name] == nil {
			return nil, fmt.Errorf("missing input: %s", name)
		}
	}

	ctx := &operators.Context{Backend: m.backend}
	for i, s := range m.steps {
		args := make([]*tensor.RawTensor, len(s.node.Inputs))
		for j, name := range s.node.Inputs {
			if name == "" {
				continue
			}
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("node %d (%s): input %q has no value", i, s.node.OpType, name)
			}
			args[j] = t
		}
		outs, err := m.registry.Execute(ctx, s.node, args)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, s.node.OpType, err)
		}
		for j, name := range s.node.Outputs {
			if j < len(outs) && name != "" {
				values[name] = outs[j]
			}
		}
	}

	for _, name := range m.outputs {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
	}
	return values, nil
}

// compile decodes the initializers and orders the nodes for evaluation.
func (m *Model) compile() error {
	g := m.proto.Graph
	if g == nil {
		return fmt.Errorf("model has no graph")
	}

	m.weights = make(map[string]*tensor.RawTensor, len(g.Initializers))
	for i := range g.Initializers {
		t, err := ToRaw(&g.Initializers[i])
		if err != nil {
			return fmt.Errorf("initializer: %w", err)
		}
		m.weights[g.Initializers[i].Name] = t
	}
	for i := range g.Inputs {
		if _, ok := m.weights[g.Inputs[i].Name]; !ok {
			m.inputs = append(m.inputs, g.Inputs[i].Name)
		}
	}
	for i := range g.Outputs {
		m.outputs = append(m.outputs, g.Outputs[i].Name)
	}

	order, err := topologicalOrder(g.Nodes)
	if err != nil {
		return err
	}
	m.steps = make([]step, len(order))
	for i, idx := range order {
		m.steps[i] = step{node: operatorNode(&g.Nodes[idx])}
	}
	m.opset = DefaultDomainOpset(m.proto)
	return nil
}

func operatorNode(n *NodeProto) *operators.Node {
	attrs := make([]operators.Attribute, len(n.Attributes))
	for i := range n.Attributes {
		a := &n.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    a.Name,
			Type:    a.Type,
			F:       a.F,
			I:       a.I,
			S:       a.S,
			Floats:  a.Floats,
			Ints:    a.Ints,
			Strings: a.Strings,
		}
	}
	return &operators.Node{
		Name:       n.Name,
		OpType:     n.OpType,
		Domain:     n.Domain,
		Inputs:     n.Inputs,
		Outputs:    n.Outputs,
		Attributes: attrs,
	}
}

// topologicalOrder returns node indices with every producer ahead of its
// consumers. Exported graphs are already ordered and come back unchanged;
// ties keep the stored order.
func topologicalOrder(nodes []NodeProto) ([]int, error) {
	producer := make(map[string]int)
	for i := range nodes {
		for _, out := range nodes[i].Outputs {
			producer[out] = i
		}
	}

	pending := make([]int, len(nodes))
	consumers := make([][]int, len(nodes))
	for i := range nodes {
		deps := make(map[int]bool)
		for _, in := range nodes[i].Inputs {
			p, ok := producer[in]
			if !ok || p == i || deps[p] {
				continue
			}
			deps[p] = true
			pending[i]++
			consumers[p] = append(consumers[p], i)
		}
	}

	order := make([]int, 0, len(nodes))
	for i := range nodes {
		if pending[i] == 0 {
			order = append(order, i)
		}
	}
	for next := 0; next < len(order); next++ {
		for _, c := range consumers[order[next]] {
			if pending[c]--; pending[c] == 0 {
				order = append(order, c)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("graph contains a cycle through %d nodes", len(nodes)-len(order))
	}
	return order, nil
}
