package export

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/storage"
)

// Result is the outcome of an export.
type Result struct {
	Model *onnx.ModelProto

	// Inputs and Outputs are the traced model arguments and (deduplicated)
	// results, in graph input and output order.
	Inputs  []*autodiff.Variable
	Outputs []*autodiff.Variable

	// Graph is the trace the model was exported from.
	Graph *autodiff.Graph
}

// Export runs model once on args and converts the recorded trace into an
// ONNX model. args is a *autodiff.Variable or *tensor.RawTensor, a slice of
// either (positional arguments) or a map of either (keyword arguments, which
// require a KeywordModel).
//
// With WithFilename the model is written through the sink as the last step,
// so a failed export writes nothing.
func Export(model Model, args any, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	start := time.Now()

	res, err := trace(model, args, &o)
	if err == nil && o.Filename != "" {
		err = writeModel(context.Background(), &o, res.Model, o.Filename)
	}
	if o.Metrics != nil {
		o.Metrics.RecordExport("model", err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// trace runs the forward pass and builds the validated model.
func trace(model Model, args any, o *Options) (*Result, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, configErr("model is nil")
	}

	mode := autodiff.ModeTest
	if o.Train {
		mode = autodiff.ModeTrain
	}
	g := autodiff.NewGraph(o.Backend, autodiff.WithMode(mode))
	bound, err := bindArgs(g, args)
	if err != nil {
		return nil, err
	}
	outs, err := bound.run(model)
	if err != nil {
		return nil, fmt.Errorf("export: forward pass: %w", err)
	}
	outs, err = uniqueOutputs(g, outs)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	res := &Result{Inputs: bound.vars, Outputs: outs, Graph: g}
	res.Model, err = build(g, model.NamedParams(), res.Inputs, res.Outputs, o)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func build(g *autodiff.Graph, named []nn.NamedParam, inputs, outputs []*autodiff.Variable, o *Options) (*onnx.ModelProto, error) {
	params, inits, paramInputs, err := NameParameters(named)
	if err != nil {
		return nil, err
	}
	ns, err := newNamespace(g, params, inputs, outputs, o)
	if err != nil {
		return nil, err
	}

	ids := make([]autodiff.VarID, len(outputs))
	for i, v := range outputs {
		ids[i] = v.ID()
	}
	found, err := Walk(g, ids, ns.name)
	if err != nil {
		return nil, err
	}

	ctx := newBuildContext(g, params, inits, paramInputs, o)
	for _, b := range found.Ops {
		nodes, err := translate(ctx, b)
		if err != nil {
			return nil, err
		}
		ctx.ops = append(ctx.ops, nodes)
	}

	model, err := assemble(ctx, found, ns, inputs, outputs, o)
	if err != nil {
		return nil, err
	}

	opTypes := make([]string, len(model.Graph.Nodes))
	for i := range model.Graph.Nodes {
		opTypes[i] = model.Graph.Nodes[i].OpType
	}
	initBytes := 0
	for i := range model.Graph.Initializers {
		initBytes += len(model.Graph.Initializers[i].RawData)
	}
	if o.Metrics != nil {
		o.Metrics.RecordGraph(opTypes, initBytes)
	}
	o.Logger.Infow("exported graph",
		"graph", o.GraphName, "mode", g.Mode().String(), "opset", o.Opset,
		"nodes", len(opTypes), "initializers", len(model.Graph.Initializers),
		"inputs", len(model.Graph.Inputs), "outputs", len(model.Graph.Outputs))
	return model, nil
}

// file is an artifact ready to be written.
type file struct {
	name string
	data []byte
}

// modelFiles encodes the binary model and, with SaveText, its rendering.
func modelFiles(o *Options, m *onnx.ModelProto, name string) ([]file, error) {
	data, err := onnx.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	files := []file{{name: name, data: data}}
	if o.SaveText {
		text, err := onnx.MarshalText(m)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		files = append(files, file{name: name + ".txt", data: text})
	}
	return files, nil
}

func writeModel(ctx context.Context, o *Options, m *onnx.ModelProto, name string) error {
	files, err := modelFiles(o, m, name)
	if err != nil {
		return err
	}
	sink := o.Sink
	if sink == nil {
		sink = &storage.LocalSink{}
	}
	return writeFiles(ctx, o, sink, files)
}

func writeFiles(ctx context.Context, o *Options, sink storage.Sink, files []file) error {
	for _, f := range files {
		if err := sink.Write(ctx, f.name, f.data); err != nil {
			return err
		}
		if o.Metrics != nil {
			o.Metrics.RecordFile(sink.Scheme())
		}
		o.Logger.Debugw("wrote file", "location", sink.Location(f.name), "bytes", len(f.data))
	}
	return nil
}
