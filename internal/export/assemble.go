package export

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/version"
)

// assemble orders the translated nodes producer-before-consumer, attaches
// the graph inputs and outputs, wraps everything in a model and runs the
// checker over the graph and the model.
func assemble(ctx *buildContext, d *Discovery, ns *namespace, inputs, outputs []*autodiff.Variable, o *Options) (*onnx.ModelProto, error) {
	graph := &onnx.GraphProto{Name: o.GraphName}
	for i := len(ctx.ops) - 1; i >= 0; i-- {
		graph.Nodes = append(graph.Nodes, ctx.ops[i]...)
	}

	graph.Inputs = append(graph.Inputs, ctx.inputs...)
	for _, v := range inputs {
		desc, err := describe(ns, v.Node(), d)
		if err != nil {
			return nil, err
		}
		graph.Inputs = append(graph.Inputs, desc)
	}
	for _, v := range outputs {
		desc, err := describe(ns, v.Node(), d)
		if err != nil {
			return nil, err
		}
		graph.Outputs = append(graph.Outputs, desc)
	}
	if o.ExportParams {
		graph.Initializers = ctx.initializers
	}

	if err := onnx.CheckGraph(graph, o.Opset); err != nil {
		return nil, &SchemaValidationError{Stage: "graph", Err: err}
	}

	model := &onnx.ModelProto{
		IRVersion:       onnx.IRVersion,
		ProducerName:    version.Producer,
		ProducerVersion: version.Version,
		OpsetImport:     []onnx.OperatorSetID{{Domain: "", Version: o.Opset}},
		Graph:           graph,
	}
	if err := onnx.CheckModel(model); err != nil {
		return nil, &SchemaValidationError{Stage: "model", Err: err}
	}
	return model, nil
}

// describe builds the descriptor of a graph input or output. Outputs are
// named as the graph body writes them.
func describe(ns *namespace, node *autodiff.VariableNode, d *Discovery) (onnx.ValueInfoProto, error) {
	name, ok := d.OutputNames[node.ID()]
	if !ok {
		var err error
		if name, err = ns.name(node.ID()); err != nil {
			return onnx.ValueInfoProto{}, err
		}
	}
	elemType, err := onnx.ElemTypeOf(node.DType())
	if err != nil {
		return onnx.ValueInfoProto{}, configErr("value %q: %v", name, err)
	}
	return onnx.MakeTensorValueInfo(name, elemType, node.Shape().Int64s()), nil
}
