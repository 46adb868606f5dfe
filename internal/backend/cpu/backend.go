// Package cpu implements the pure Go CPU backend.
package cpu

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/parallel"
	"github.com/born-ml/onnxport/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend that spreads convolution work across all
// available cores.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
// A zero Config runs every kernel sequentially.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// newResult allocates an output tensor, panicking with the op name on failure.
func (cpu *CPUBackend) newResult(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// requireFloat panics unless every operand shares one floating point dtype.
func requireFloat(op string, ts ...*tensor.RawTensor) tensor.DataType {
	dt := ts[0].DType()
	if !dt.IsFloat() {
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32/float64 supported)", op, dt))
	}
	for _, t := range ts[1:] {
		if t.DType() != dt {
			panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, dt, t.DType()))
		}
	}
	return dt
}

// Reshape returns a copy of t with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			t.Shape(), newShape))
	}

	result := cpu.newResult("reshape", newShape, t.DType())
	copy(result.Data(), t.Data())
	return result
}

// SumTo reduces a broadcast result back to shape by summing the expanded axes.
// It is the adjoint of broadcasting and is used by the backward passes of the
// element-wise binary operations.
func (cpu *CPUBackend) SumTo(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if x.Shape().Equal(shape) {
		return x.Clone()
	}
	if _, _, err := tensor.BroadcastShapes(shape, x.Shape()); err != nil {
		panic(fmt.Sprintf("sum_to: %v", err))
	}

	dt := requireFloat("sum_to", x)
	result := cpu.newResult("sum_to", shape, dt)
	xStrides := x.Shape().ComputeStrides()
	dstStrides := computeBroadcastStridesForShape(shape, x.Shape())

	switch dt {
	case tensor.Float32:
		sumTo(result.AsFloat32(), x.AsFloat32(), xStrides, dstStrides)
	case tensor.Float64:
		sumTo(result.AsFloat64(), x.AsFloat64(), xStrides, dstStrides)
	}
	return result
}

func sumTo[T tensor.Float](dst, src []T, srcStrides, dstStrides []int) {
	for i, v := range src {
		dst[computeFlatIndex(i, srcStrides, dstStrides)] += v
	}
}
