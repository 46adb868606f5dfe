package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxport/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float64) float64 { return math.Max(v, 0) })
}

// ReLUBackward passes grad through where x > 0.
func (cpu *CPUBackend) ReLUBackward(x, grad *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("relu_backward", x, grad, func(v, g float64) float64 {
		if v > 0 {
			return g
		}
		return 0
	})
}

// Sigmoid computes 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// SigmoidBackward computes grad * y * (1 - y) from the forward output y.
func (cpu *CPUBackend) SigmoidBackward(y, grad *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sigmoid_backward", y, grad, func(v, g float64) float64 { return g * v * (1 - v) })
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, math.Tanh)
}

// TanhBackward computes grad * (1 - y²) from the forward output y.
func (cpu *CPUBackend) TanhBackward(y, grad *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("tanh_backward", y, grad, func(v, g float64) float64 { return g * (1 - v*v) })
}

// Softmax computes softmax along the given axis.
// Softmax(x_i) = exp(x_i) / sum(exp(x_j)) for all j in the axis.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, axis int) *tensor.RawTensor {
	dt := requireFloat("softmax", x)
	outer, dim, inner := axisSplit("softmax", x.Shape(), axis)
	result := cpu.newResult("softmax", x.Shape(), dt)

	switch dt {
	case tensor.Float32:
		softmax(result.AsFloat32(), x.AsFloat32(), outer, dim, inner)
	case tensor.Float64:
		softmax(result.AsFloat64(), x.AsFloat64(), outer, dim, inner)
	}
	return result
}

// SoftmaxBackward computes y * (grad - sum(grad * y)) along axis.
func (cpu *CPUBackend) SoftmaxBackward(y, grad *tensor.RawTensor, axis int) *tensor.RawTensor {
	dt := requireFloat("softmax_backward", y, grad)
	outer, dim, inner := axisSplit("softmax_backward", y.Shape(), axis)
	result := cpu.newResult("softmax_backward", y.Shape(), dt)

	switch dt {
	case tensor.Float32:
		softmaxBackward(result.AsFloat32(), y.AsFloat32(), grad.AsFloat32(), outer, dim, inner)
	case tensor.Float64:
		softmaxBackward(result.AsFloat64(), y.AsFloat64(), grad.AsFloat64(), outer, dim, inner)
	}
	return result
}

// axisSplit views shape as [outer, dim, inner] around axis.
func axisSplit(op string, shape tensor.Shape, axis int) (outer, dim, inner int) {
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis >= len(shape) {
		panic(fmt.Sprintf("%s: axis %d out of range for tensor of rank %d", op, axis, len(shape)))
	}
	outer, inner = 1, 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	return outer, shape[axis], inner
}

func softmax[T tensor.Float](dst, src []T, outer, dim, inner int) {
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dim*inner + in

			// Subtract the max for numerical stability.
			maxVal := math.Inf(-1)
			for d := 0; d < dim; d++ {
				maxVal = math.Max(maxVal, float64(src[base+d*inner]))
			}
			sum := 0.0
			for d := 0; d < dim; d++ {
				e := math.Exp(float64(src[base+d*inner]) - maxVal)
				dst[base+d*inner] = T(e)
				sum += e
			}
			for d := 0; d < dim; d++ {
				dst[base+d*inner] = T(float64(dst[base+d*inner]) / sum)
			}
		}
	}
}

func softmaxBackward[T tensor.Float](dst, y, grad []T, outer, dim, inner int) {
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dim*inner + in
			dot := 0.0
			for d := 0; d < dim; d++ {
				dot += float64(y[base+d*inner]) * float64(grad[base+d*inner])
			}
			for d := 0; d < dim; d++ {
				idx := base + d*inner
				dst[idx] = T(float64(y[idx]) * (float64(grad[idx]) - dot))
			}
		}
	}
}

// PReLU computes x where x >= 0 and slope*x elsewhere. The slope shape must
// equal x.shape[1:1+slope.ndim]; it is broadcast over the batch axis and any
// trailing axes.
func (cpu *CPUBackend) PReLU(x, slope *tensor.RawTensor) *tensor.RawTensor {
	dt := requireFloat("prelu", x, slope)
	slopeSize, tail := preluLayout(x.Shape(), slope.Shape())
	result := cpu.newResult("prelu", x.Shape(), dt)

	switch dt {
	case tensor.Float32:
		prelu(result.AsFloat32(), x.AsFloat32(), slope.AsFloat32(), slopeSize, tail)
	case tensor.Float64:
		prelu(result.AsFloat64(), x.AsFloat64(), slope.AsFloat64(), slopeSize, tail)
	}
	return result
}

// PReLUBackward returns the gradients with respect to x and slope.
func (cpu *CPUBackend) PReLUBackward(x, slope, grad *tensor.RawTensor) (gx, gslope *tensor.RawTensor) {
	dt := requireFloat("prelu_backward", x, slope, grad)
	slopeSize, tail := preluLayout(x.Shape(), slope.Shape())
	gx = cpu.newResult("prelu_backward", x.Shape(), dt)
	gslope = cpu.newResult("prelu_backward", slope.Shape(), dt)

	switch dt {
	case tensor.Float32:
		preluBackward(gx.AsFloat32(), gslope.AsFloat32(), x.AsFloat32(), slope.AsFloat32(), grad.AsFloat32(), slopeSize, tail)
	case tensor.Float64:
		preluBackward(gx.AsFloat64(), gslope.AsFloat64(), x.AsFloat64(), slope.AsFloat64(), grad.AsFloat64(), slopeSize, tail)
	}
	return gx, gslope
}

func preluLayout(xShape, slopeShape tensor.Shape) (slopeSize, tail int) {
	k := len(slopeShape)
	if len(xShape) < k+1 || !xShape[1:1+k].Equal(slopeShape) {
		panic(fmt.Sprintf("prelu: slope shape %v does not match input shape %v", slopeShape, xShape))
	}
	tail = 1
	for _, d := range xShape[1+k:] {
		tail *= d
	}
	return slopeShape.NumElements(), tail
}

func prelu[T tensor.Float](dst, x, slope []T, slopeSize, tail int) {
	for i, v := range x {
		if v >= 0 {
			dst[i] = v
		} else {
			dst[i] = slope[(i/tail)%slopeSize] * v
		}
	}
}

func preluBackward[T tensor.Float](gx, gslope, x, slope, grad []T, slopeSize, tail int) {
	for i, v := range x {
		j := (i / tail) % slopeSize
		if v >= 0 {
			gx[i] = grad[i]
		} else {
			gx[i] = slope[j] * grad[i]
			gslope[j] += v * grad[i]
		}
	}
}
