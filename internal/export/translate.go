package export

import (
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/autodiff/ops"
	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// buildContext accumulates the graph under construction.
type buildContext struct {
	graph  *autodiff.Graph
	mode   autodiff.Mode
	opset  int64
	params ParamNames
	log    *zap.SugaredLogger

	// ops holds the nodes of each translated function, in discovery order.
	ops          [][]onnx.NodeProto
	initializers []onnx.TensorProto
	inputs       []onnx.ValueInfoProto
	defined      map[string]bool
}

func newBuildContext(g *autodiff.Graph, params ParamNames, inits []onnx.TensorProto, inputs []onnx.ValueInfoProto, o *Options) *buildContext {
	ctx := &buildContext{
		graph:        g,
		mode:         g.Mode(),
		opset:        o.Opset,
		params:       params,
		log:          o.Logger,
		initializers: inits,
		inputs:       inputs,
		defined:      make(map[string]bool, len(inputs)),
	}
	for i := range inputs {
		ctx.defined[inputs[i].Name] = true
	}
	return ctx
}

// addConstant registers a tensor the graph needs besides the parameters, as
// an initializer backed by a graph input. Names already present are reused.
func (ctx *buildContext) addConstant(name string, t *tensor.RawTensor) error {
	if ctx.defined[name] {
		return nil
	}
	init, err := onnx.TensorFromRaw(name, t)
	if err != nil {
		return err
	}
	ctx.defined[name] = true
	ctx.initializers = append(ctx.initializers, init)
	ctx.inputs = append(ctx.inputs, onnx.MakeTensorValueInfo(name, init.DataType, init.Dims))
	return nil
}

// translate converts one discovered function into ONNX nodes and checks each
// node against its operator schema.
func translate(ctx *buildContext, b Binding) ([]onnx.NodeProto, error) {
	fn := ctx.graph.Func(b.Func)

	var nodes []onnx.NodeProto
	var err error
	switch b.Kind {
	case autodiff.KindLinear:
		nodes, err = convertLinear(ctx, b)
	case autodiff.KindConvolution2D:
		nodes, err = convertConvolution2D(ctx, fn, b)
	case autodiff.KindReshape:
		nodes, err = convertReshape(fn, b)
	case autodiff.KindAveragePooling2D, autodiff.KindMaxPooling2D:
		nodes, err = convertPooling2D(ctx, fn, b)
	case autodiff.KindBatchNormalization:
		nodes, err = convertBatchNormalization(ctx, fn, b)
	case autodiff.KindSoftmax:
		nodes, err = convertSoftmax(ctx, fn, b)
	case autodiff.KindReLU, autodiff.KindAdd, autodiff.KindSub, autodiff.KindMul,
		autodiff.KindDiv, autodiff.KindNeg, autodiff.KindAbsolute, autodiff.KindPReLU:
		nodes = []onnx.NodeProto{onnx.MakeNode(elementwiseOps[b.Kind], b.Inputs, b.Outputs)}
	default:
		return nil, &UnsupportedOperatorError{Kind: b.Kind}
	}
	if err != nil {
		return nil, fmt.Errorf("export: %s: %w", b.Kind, err)
	}

	for i := range nodes {
		if err := onnx.CheckNode(&nodes[i], ctx.opset); err != nil {
			return nil, &SchemaValidationError{Stage: "node", Err: err}
		}
		ctx.log.Debugw("translated function",
			"kind", b.Kind.String(), "op_type", nodes[i].OpType,
			"inputs", nodes[i].Inputs, "outputs", nodes[i].Outputs)
	}
	return nodes, nil
}

// elementwiseOps are the kinds that map onto an attribute-free operator.
var elementwiseOps = map[autodiff.Kind]string{
	autodiff.KindReLU:     "Relu",
	autodiff.KindAdd:      "Add",
	autodiff.KindSub:      "Sub",
	autodiff.KindMul:      "Mul",
	autodiff.KindDiv:      "Div",
	autodiff.KindNeg:      "Neg",
	autodiff.KindAbsolute: "Abs",
	autodiff.KindPReLU:    "PRelu",
}

// convertLinear emits Gemm(x, W, b) computing x @ W^T + b. Gemm before
// opset 7 requires C, so a bias-free layer gets a zero bias constant.
func convertLinear(ctx *buildContext, b Binding) ([]onnx.NodeProto, error) {
	inputs := b.Inputs
	if len(inputs) == 2 {
		w := b.Params["W"]
		if w == nil {
			return nil, fmt.Errorf("weight is not a parameter")
		}
		name := path.Join(path.Dir(ctx.params[w]), "zero_b")
		zero := tensor.Zeros(tensor.Shape{w.Data.Shape()[0]}, w.Data.DType())
		if err := ctx.addConstant(name, zero); err != nil {
			return nil, err
		}
		inputs = append(inputs[:2:2], name)
	}
	return []onnx.NodeProto{onnx.MakeNode("Gemm", inputs, b.Outputs,
		onnx.AttrFloat("alpha", 1),
		onnx.AttrFloat("beta", 1),
		onnx.AttrInt("broadcast", 1),
		onnx.AttrInt("transA", 0),
		onnx.AttrInt("transB", 1),
	)}, nil
}

func convertConvolution2D(ctx *buildContext, fn *autodiff.FunctionNode, b Binding) ([]onnx.NodeProto, error) {
	conv, ok := fn.Function().(*ops.Convolution2DFunction)
	if !ok {
		return nil, fmt.Errorf("unexpected function %T", fn.Function())
	}
	kernel := ctx.graph.Node(fn.Inputs()[1]).Shape()
	return []onnx.NodeProto{onnx.MakeNode("Conv", b.Inputs, b.Outputs,
		onnx.AttrInts("kernel_shape", kernel[2:].Int64s()...),
		onnx.AttrInts("strides", int64(conv.Stride[0]), int64(conv.Stride[1])),
		onnx.AttrInts("pads", pads(conv.Pad)...),
	)}, nil
}

func convertReshape(fn *autodiff.FunctionNode, b Binding) ([]onnx.NodeProto, error) {
	r, ok := fn.Function().(*ops.ReshapeFunction)
	if !ok {
		return nil, fmt.Errorf("unexpected function %T", fn.Function())
	}
	return []onnx.NodeProto{onnx.MakeNode("Reshape", b.Inputs, b.Outputs,
		onnx.AttrInts("shape", r.Shape.Int64s()...),
	)}, nil
}

// convertPooling2D emits the global variant when the window covers the
// whole spatial extent of the input.
func convertPooling2D(ctx *buildContext, fn *autodiff.FunctionNode, b Binding) ([]onnx.NodeProto, error) {
	var window tensor.Window2D
	var opType string
	switch f := fn.Function().(type) {
	case *ops.MaxPooling2D:
		window, opType = f.Window, "MaxPool"
	case *ops.AveragePooling2D:
		window, opType = f.Window, "AveragePool"
	default:
		return nil, fmt.Errorf("unexpected function %T", fn.Function())
	}

	shape := ctx.graph.Node(fn.Inputs()[0]).Shape()
	if len(shape) == 4 && shape[2] == window.Kernel[0] && shape[3] == window.Kernel[1] {
		return []onnx.NodeProto{onnx.MakeNode("Global"+opType, b.Inputs, b.Outputs)}, nil
	}
	return []onnx.NodeProto{onnx.MakeNode(opType, b.Inputs, b.Outputs,
		onnx.AttrInts("kernel_shape", int64(window.Kernel[0]), int64(window.Kernel[1])),
		onnx.AttrInts("pads", pads(window.Pad)...),
		onnx.AttrInts("strides", int64(window.Stride[0]), int64(window.Stride[1])),
	)}, nil
}

// convertBatchNormalization feeds the running statistics in as constants
// named after the layer. In training mode the node also produces the updated
// running statistics and the saved batch statistics.
func convertBatchNormalization(ctx *buildContext, fn *autodiff.FunctionNode, b Binding) ([]onnx.NodeProto, error) {
	bn, ok := fn.Function().(*ops.BatchNormalizationFunction)
	if !ok {
		return nil, fmt.Errorf("unexpected function %T", fn.Function())
	}
	gamma := b.Params["gamma"]
	if gamma == nil {
		return nil, fmt.Errorf("gamma is not a parameter")
	}
	layer := path.Dir(ctx.params[gamma])

	mean, variance := path.Join(layer, "running_mean"), path.Join(layer, "running_var")
	if err := ctx.addConstant(mean, bn.RunningMean); err != nil {
		return nil, err
	}
	if err := ctx.addConstant(variance, bn.RunningVar); err != nil {
		return nil, err
	}

	inputs := append(append([]string(nil), b.Inputs...), mean, variance)
	outputs := b.Outputs
	isTest := int64(1)
	if ctx.mode == autodiff.ModeTrain {
		isTest = 0
		outputs = append(append([]string(nil), outputs...),
			path.Join(layer, "mean"),
			path.Join(layer, "var"),
			path.Join(layer, "saved_mean"),
			path.Join(layer, "saved_var"))
	}
	return []onnx.NodeProto{onnx.MakeNode("BatchNormalization", inputs, outputs,
		onnx.AttrFloat("epsilon", float32(bn.Eps)),
		onnx.AttrInt("is_test", isTest),
		onnx.AttrFloat("momentum", float32(bn.Decay)),
		onnx.AttrInt("spatial", 1),
		onnx.AttrInts("consumed_inputs", 0, 0, 0, 1, 1),
	)}, nil
}

func convertSoftmax(ctx *buildContext, fn *autodiff.FunctionNode, b Binding) ([]onnx.NodeProto, error) {
	sm, ok := fn.Function().(*ops.SoftmaxFunction)
	if !ok {
		return nil, fmt.Errorf("unexpected function %T", fn.Function())
	}
	axis := sm.Axis
	if axis < 0 {
		axis += len(ctx.graph.Node(fn.Inputs()[0]).Shape())
	}
	return []onnx.NodeProto{onnx.MakeNode("Softmax", b.Inputs, b.Outputs,
		onnx.AttrInt("axis", int64(axis)),
	)}, nil
}

// pads expands a symmetric (height, width) padding to begin and end values.
func pads(p [2]int) []int64 {
	return []int64{int64(p[0]), int64(p[1]), int64(p[0]), int64(p[1])}
}
