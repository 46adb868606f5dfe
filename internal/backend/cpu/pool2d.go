package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxport/internal/tensor"
)

type poolGeom struct {
	N, C, H, W int
	HOut, WOut int
	win        tensor.Window2D
}

func newPoolGeom(op string, inputShape tensor.Shape, w tensor.Window2D) poolGeom {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if w.Kernel[0] <= 0 || w.Kernel[1] <= 0 {
		panic(fmt.Sprintf("%s: invalid kernel size %v", op, w.Kernel))
	}
	if w.Stride[0] <= 0 || w.Stride[1] <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %v", op, w.Stride))
	}

	g := poolGeom{N: inputShape[0], C: inputShape[1], H: inputShape[2], W: inputShape[3], win: w}
	g.HOut, g.WOut = w.OutputSize(g.H, g.W)
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: kernel %v too large for input %dx%d", op, w.Kernel, g.H, g.W))
	}
	return g
}

// forEachWindow calls fn for every output cell with the flat input indices of
// the in-bounds taps of its window.
func (g poolGeom) forEachWindow(fn func(out int, taps []int)) {
	taps := make([]int, 0, g.win.Kernel[0]*g.win.Kernel[1])
	out := 0
	for nc := 0; nc < g.N*g.C; nc++ {
		plane := nc * g.H * g.W
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				taps = taps[:0]
				hStart := oh*g.win.Stride[0] - g.win.Pad[0]
				wStart := ow*g.win.Stride[1] - g.win.Pad[1]
				for kh := 0; kh < g.win.Kernel[0]; kh++ {
					for kw := 0; kw < g.win.Kernel[1]; kw++ {
						h, w := hStart+kh, wStart+kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							taps = append(taps, plane+h*g.W+w)
						}
					}
				}
				fn(out, taps)
				out++
			}
		}
	}
}

// MaxPool2D performs 2D max pooling. Padded taps never win.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out_height = (height + 2*pad_h - kernel_h) / stride_h + 1
//	out_width  = (width + 2*pad_w - kernel_w) / stride_w + 1
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, w tensor.Window2D) *tensor.RawTensor {
	g := newPoolGeom("maxpool2d", input.Shape(), w)
	dt := requireFloat("maxpool2d", input)
	output := cpu.newResult("maxpool2d", tensor.Shape{g.N, g.C, g.HOut, g.WOut}, dt)

	switch dt {
	case tensor.Float32:
		maxPool(output.AsFloat32(), nil, input.AsFloat32(), nil, g)
	case tensor.Float64:
		maxPool(output.AsFloat64(), nil, input.AsFloat64(), nil, g)
	}
	return output
}

// MaxPool2DBackward routes each output gradient to the input element that
// produced the maximum.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, w tensor.Window2D) *tensor.RawTensor {
	g := newPoolGeom("maxpool2d_backward", input.Shape(), w)
	dt := requireFloat("maxpool2d_backward", input, grad)
	gInput := cpu.newResult("maxpool2d_backward", input.Shape(), dt)

	switch dt {
	case tensor.Float32:
		maxPool(nil, gInput.AsFloat32(), input.AsFloat32(), grad.AsFloat32(), g)
	case tensor.Float64:
		maxPool(nil, gInput.AsFloat64(), input.AsFloat64(), grad.AsFloat64(), g)
	}
	return gInput
}

// maxPool runs the forward pass when out is set and the backward pass when
// gInput is set.
func maxPool[T tensor.Float](out, gInput, input, grad []T, g poolGeom) {
	g.forEachWindow(func(o int, taps []int) {
		best, bestVal := -1, math.Inf(-1)
		for _, idx := range taps {
			if v := float64(input[idx]); best < 0 || v > bestVal {
				best, bestVal = idx, v
			}
		}
		if out != nil {
			if best < 0 {
				out[o] = 0
			} else {
				out[o] = T(bestVal)
			}
		}
		if gInput != nil && best >= 0 {
			gInput[best] += grad[o]
		}
	})
}

// AvgPool2D performs 2D average pooling. With countPad the divisor is always
// kernel_h*kernel_w (padded taps count as zeros); otherwise only in-bounds taps
// are averaged.
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, w tensor.Window2D, countPad bool) *tensor.RawTensor {
	g := newPoolGeom("avgpool2d", input.Shape(), w)
	dt := requireFloat("avgpool2d", input)
	output := cpu.newResult("avgpool2d", tensor.Shape{g.N, g.C, g.HOut, g.WOut}, dt)

	switch dt {
	case tensor.Float32:
		avgPool(output.AsFloat32(), input.AsFloat32(), g, countPad)
	case tensor.Float64:
		avgPool(output.AsFloat64(), input.AsFloat64(), g, countPad)
	}
	return output
}

// AvgPool2DBackward spreads each output gradient evenly over its window.
func (cpu *CPUBackend) AvgPool2DBackward(grad *tensor.RawTensor, inputShape tensor.Shape, w tensor.Window2D, countPad bool) *tensor.RawTensor {
	g := newPoolGeom("avgpool2d_backward", inputShape, w)
	dt := requireFloat("avgpool2d_backward", grad)
	gInput := cpu.newResult("avgpool2d_backward", inputShape, dt)

	switch dt {
	case tensor.Float32:
		avgPoolBackward(gInput.AsFloat32(), grad.AsFloat32(), g, countPad)
	case tensor.Float64:
		avgPoolBackward(gInput.AsFloat64(), grad.AsFloat64(), g, countPad)
	}
	return gInput
}

func (g poolGeom) divisor(taps []int, countPad bool) float64 {
	if countPad {
		return float64(g.win.Kernel[0] * g.win.Kernel[1])
	}
	return float64(max(len(taps), 1))
}

func avgPool[T tensor.Float](out, input []T, g poolGeom, countPad bool) {
	g.forEachWindow(func(o int, taps []int) {
		sum := 0.0
		for _, idx := range taps {
			sum += float64(input[idx])
		}
		out[o] = T(sum / g.divisor(taps, countPad))
	})
}

func avgPoolBackward[T tensor.Float](gInput, grad []T, g poolGeom, countPad bool) {
	g.forEachWindow(func(o int, taps []int) {
		share := T(float64(grad[o]) / g.divisor(taps, countPad))
		for _, idx := range taps {
			gInput[idx] += share
		}
	})
}
