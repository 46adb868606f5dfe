package operators

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/tensor"
)

// registerNNOps adds convolution, pooling and normalization operators.
func (r *Registry) registerNNOps() {
	r.Register("Conv", handleConv)
	r.Register("MaxPool", handlePool(false))
	r.Register("AveragePool", handlePool(true))
	r.Register("GlobalMaxPool", handleGlobalPool(false))
	r.Register("GlobalAveragePool", handleGlobalPool(true))
	r.Register("BatchNormalization", handleBatchNorm)
}

func require4D(op string, x *tensor.RawTensor) error {
	if len(x.Shape()) != 4 {
		return fmt.Errorf("%s requires NCHW input, got %v", op, x.Shape())
	}
	return nil
}

func handleConv(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("Conv", inputs, 2, 3); err != nil {
		return nil, err
	}
	x, w := inputs[0], inputs[1]
	if err := require4D("Conv", x); err != nil {
		return nil, err
	}
	if group := GetAttrInt(node, "group", 1); group != 1 {
		return nil, fmt.Errorf("conv: group %d not supported", group)
	}
	for _, d := range GetAttrInts(node, "dilations") {
		if d != 1 {
			return nil, fmt.Errorf("conv: dilations %v not supported", GetAttrInts(node, "dilations"))
		}
	}
	if pad := GetAttrString(node, "auto_pad", "NOTSET"); pad != "NOTSET" {
		return nil, fmt.Errorf("conv: auto_pad %s not supported", pad)
	}
	if ks := GetAttrInts(node, "kernel_shape"); ks != nil {
		ws := w.Shape()
		if len(ks) != 2 || len(ws) != 4 || int(ks[0]) != ws[2] || int(ks[1]) != ws[3] {
			return nil, fmt.Errorf("conv: kernel_shape %v does not match weight %v", ks, ws)
		}
	}
	stride, err := attrPair(node, "strides", [2]int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	pad, err := attrPads(node)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}

	var bias *tensor.RawTensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}
	return single(ctx.Backend.Conv2D(x, w, bias, stride, pad)), nil
}

func poolWindow(node *Node) (tensor.Window2D, error) {
	var w tensor.Window2D
	ks := GetAttrInts(node, "kernel_shape")
	if len(ks) != 2 {
		return w, fmt.Errorf("kernel_shape: want 2 values, got %v", ks)
	}
	w.Kernel = [2]int{int(ks[0]), int(ks[1])}
	var err error
	if w.Stride, err = attrPair(node, "strides", [2]int{1, 1}); err != nil {
		return w, err
	}
	if w.Pad, err = attrPads(node); err != nil {
		return w, err
	}
	if pad := GetAttrString(node, "auto_pad", "NOTSET"); pad != "NOTSET" {
		return w, fmt.Errorf("auto_pad %s not supported", pad)
	}
	return w, nil
}

// handlePool runs windowed pooling. AveragePool before opset 7 excludes
// padding from the divisor.
func handlePool(average bool) OpHandler {
	op := "MaxPool"
	if average {
		op = "AveragePool"
	}
	return func(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(op, inputs, 1, 1); err != nil {
			return nil, err
		}
		if err := require4D(op, inputs[0]); err != nil {
			return nil, err
		}
		w, err := poolWindow(node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if average {
			return single(ctx.Backend.AvgPool2D(inputs[0], w, false)), nil
		}
		return single(ctx.Backend.MaxPool2D(inputs[0], w)), nil
	}
}

// handleGlobalPool pools over the full spatial extent.
func handleGlobalPool(average bool) OpHandler {
	op := "GlobalMaxPool"
	if average {
		op = "GlobalAveragePool"
	}
	return func(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := requireInputs(op, inputs, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		if err := require4D(op, x); err != nil {
			return nil, err
		}
		s := x.Shape()
		w := tensor.Window2D{Kernel: [2]int{s[2], s[3]}, Stride: [2]int{1, 1}}
		if average {
			return single(ctx.Backend.AvgPool2D(x, w, false)), nil
		}
		return single(ctx.Backend.MaxPool2D(x, w)), nil
	}
}

// handleBatchNorm normalizes with the provided statistics when is_test is set.
// Otherwise batch statistics are used and the optional outputs carry the
// updated running statistics followed by the batch mean and variance.
func handleBatchNorm(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("BatchNormalization", inputs, 5, 5); err != nil {
		return nil, err
	}
	if spatial := GetAttrInt(node, "spatial", 1); spatial != 1 {
		return nil, fmt.Errorf("batchNormalization: spatial=%d not supported", spatial)
	}
	b := ctx.Backend
	x, scale, bias, mean, variance := inputs[0], inputs[1], inputs[2], inputs[3], inputs[4]
	eps := float64(GetAttrFloat(node, "epsilon", 1e-5))

	if GetAttrInt(node, "is_test", 0) != 0 {
		return single(b.BatchNorm(x, scale, bias, mean, variance, eps)), nil
	}

	momentum := float64(GetAttrFloat(node, "momentum", 0.9))
	batchMean, batchVar := b.ChannelMoments(x)
	outs := []*tensor.RawTensor{
		b.BatchNorm(x, scale, bias, batchMean, batchVar, eps),
		b.Add(b.Scale(mean, momentum), b.Scale(batchMean, 1-momentum)),
		b.Add(b.Scale(variance, momentum), b.Scale(batchVar, 1-momentum)),
		batchMean,
		batchVar,
	}
	if n := len(node.Outputs); n > 0 && n < len(outs) {
		outs = outs[:n]
	}
	return outs, nil
}
