package cpu

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/parallel"
	"github.com/born-ml/onnxport/internal/tensor"
)

// convGeom holds the dimensions shared by the forward and backward passes.
type convGeom struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding [2]int
}

func (g convGeom) colWidth() int  { return g.CIn * g.KH * g.KW }
func (g convGeom) colHeight() int { return g.N * g.HOut * g.WOut }

func newConvGeom(op string, inputShape, kernelShape tensor.Shape, stride, padding [2]int) convGeom {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", op, len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, inputShape[1], kernelShape[1]))
	}
	if stride[0] <= 0 || stride[1] <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %v", op, stride))
	}

	g := convGeom{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.HOut, g.WOut = tensor.Window2D{Kernel: [2]int{g.KH, g.KW}, Stride: stride, Pad: padding}.OutputSize(g.H, g.W)
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.HOut, g.WOut))
	}
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape: [out_channels], or nil
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm: Im2col
//  1. Transform input patches into columns (im2col)
//  2. Treat the kernel as a [C_out, C_in*K_h*K_w] matrix
//  3. Multiply and scatter into [N, C_out, H_out, W_out], adding the bias
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.RawTensor, stride, padding [2]int) *tensor.RawTensor {
	g := newConvGeom("conv2d", input.Shape(), kernel.Shape(), stride, padding)
	dt := requireFloat("conv2d", input, kernel)
	if bias != nil {
		requireFloat("conv2d", input, bias)
		if bias.NumElements() != g.COut {
			panic(fmt.Sprintf("conv2d: bias has %d elements, want %d", bias.NumElements(), g.COut))
		}
	}

	output := cpu.newResult("conv2d", tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, dt)
	switch dt {
	case tensor.Float32:
		conv2d(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), optional[float32](bias), g, cpu.parallel)
	case tensor.Float64:
		conv2d(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), optional[float64](bias), g, cpu.parallel)
	}
	return output
}

// Conv2DBackward computes the gradients of Conv2D with respect to its input
// and kernel. The bias gradient is grad summed over every axis but 1 and is
// left to the caller.
func (cpu *CPUBackend) Conv2DBackward(input, kernel, grad *tensor.RawTensor, stride, padding [2]int) (gInput, gKernel *tensor.RawTensor) {
	g := newConvGeom("conv2d_backward", input.Shape(), kernel.Shape(), stride, padding)
	dt := requireFloat("conv2d_backward", input, kernel, grad)

	gInput = cpu.newResult("conv2d_backward", input.Shape(), dt)
	gKernel = cpu.newResult("conv2d_backward", kernel.Shape(), dt)
	switch dt {
	case tensor.Float32:
		conv2dBackward(gInput.AsFloat32(), gKernel.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), grad.AsFloat32(), g)
	case tensor.Float64:
		conv2dBackward(gInput.AsFloat64(), gKernel.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), grad.AsFloat64(), g)
	}
	return gInput, gKernel
}

func optional[T tensor.Float](t *tensor.RawTensor) []T {
	if t == nil {
		return nil
	}
	return tensor.Values[T](t)
}

func conv2d[T tensor.Float](out, input, kernel, bias []T, g convGeom, cfg parallel.Config) {
	colWidth := g.colWidth()
	col := make([]T, g.colHeight()*colWidth)
	im2col(col, input, g)

	spatial := g.HOut * g.WOut
	// Each (n, co) pair owns a disjoint slice of out.
	parallel.ForBatch(g.N, g.COut, func(n, co int) {
		krow := kernel[co*colWidth : (co+1)*colWidth]
		var b T
		if bias != nil {
			b = bias[co]
		}
		for p := 0; p < spatial; p++ {
			crow := col[(n*spatial+p)*colWidth : (n*spatial+p+1)*colWidth]
			sum := b
			for k, w := range krow {
				sum += w * crow[k]
			}
			out[(n*g.COut+co)*spatial+p] = sum
		}
	}, cfg)
}

func conv2dBackward[T tensor.Float](gInput, gKernel, input, kernel, grad []T, g convGeom) {
	colWidth := g.colWidth()
	col := make([]T, g.colHeight()*colWidth)
	gCol := make([]T, len(col))
	im2col(col, input, g)

	spatial := g.HOut * g.WOut
	for n := 0; n < g.N; n++ {
		for co := 0; co < g.COut; co++ {
			krow := kernel[co*colWidth : (co+1)*colWidth]
			gkrow := gKernel[co*colWidth : (co+1)*colWidth]
			for p := 0; p < spatial; p++ {
				gy := grad[(n*g.COut+co)*spatial+p]
				if gy == 0 {
					continue
				}
				row := (n*spatial + p) * colWidth
				for k := 0; k < colWidth; k++ {
					gkrow[k] += gy * col[row+k]
					gCol[row+k] += gy * krow[k]
				}
			}
		}
	}

	col2im(gInput, gCol, g)
}

// im2col transforms input [N, C, H, W] into col [N*H_out*W_out, C*K_h*K_w].
// Each row of col is one flattened receptive field; padded taps are zero.
func im2col[T tensor.Float](col, input []T, g convGeom) {
	idx := 0
	for n := 0; n < g.N; n++ {
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				hStart := oh*g.stride[0] - g.padding[0]
				wStart := ow*g.stride[1] - g.padding[1]
				for c := 0; c < g.CIn; c++ {
					for kh := 0; kh < g.KH; kh++ {
						for kw := 0; kw < g.KW; kw++ {
							h, w := hStart+kh, wStart+kw
							if h >= 0 && h < g.H && w >= 0 && w < g.W {
								col[idx] = input[((n*g.CIn+c)*g.H+h)*g.W+w]
							} else {
								col[idx] = 0
							}
							idx++
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it accumulates column gradients back into
// the input layout.
func col2im[T tensor.Float](input, col []T, g convGeom) {
	idx := 0
	for n := 0; n < g.N; n++ {
		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				hStart := oh*g.stride[0] - g.padding[0]
				wStart := ow*g.stride[1] - g.padding[1]
				for c := 0; c < g.CIn; c++ {
					for kh := 0; kh < g.KH; kh++ {
						for kw := 0; kw < g.KW; kw++ {
							h, w := hStart+kh, wStart+kw
							if h >= 0 && h < g.H && w >= 0 && w < g.W {
								input[((n*g.CIn+c)*g.H+h)*g.W+w] += col[idx]
							}
							idx++
						}
					}
				}
			}
		}
	}
}
