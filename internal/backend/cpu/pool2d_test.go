package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/tensor"
)

func ramp4x4(t *testing.T) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i + 1)
	}
	x, err := tensor.FromSlice(tensor.Shape{1, 1, 4, 4}, data)
	require.NoError(t, err)
	return x
}

func TestMaxPool2D(t *testing.T) {
	backend := New()
	win := tensor.Window2D{Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}}

	out := backend.MaxPool2D(ramp4x4(t), win)

	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, out.AsFloat32())
}

func TestMaxPool2DBackward(t *testing.T) {
	backend := New()
	win := tensor.Window2D{Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}}
	x := ramp4x4(t)

	g := backend.MaxPool2DBackward(x, tensor.Ones(tensor.Shape{1, 1, 2, 2}, tensor.Float32), win)

	want := make([]float32, 16)
	for _, idx := range []int{5, 7, 13, 15} {
		want[idx] = 1
	}
	assert.Equal(t, want, g.AsFloat32())
}

func TestAvgPool2D(t *testing.T) {
	backend := New()
	win := tensor.Window2D{Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}}

	out := backend.AvgPool2D(ramp4x4(t), win, true)

	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, out.AsFloat32())
}

func TestAvgPool2D_Padding(t *testing.T) {
	backend := New()
	x, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	win := tensor.Window2D{Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}, Pad: [2]int{1, 1}}

	withPad := backend.AvgPool2D(x, win, true)
	withoutPad := backend.AvgPool2D(x, win, false)

	// Every window holds exactly one real tap.
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, withPad.AsFloat64())
	assert.Equal(t, []float64{1, 2, 3, 4}, withoutPad.AsFloat64())
}

func TestAvgPool2DBackward(t *testing.T) {
	backend := New()
	win := tensor.Window2D{Kernel: [2]int{2, 2}, Stride: [2]int{2, 2}}

	g := backend.AvgPool2DBackward(tensor.Ones(tensor.Shape{1, 1, 2, 2}, tensor.Float32), tensor.Shape{1, 1, 4, 4}, win, true)

	for _, v := range g.AsFloat32() {
		assert.InDelta(t, 0.25, v, 1e-7)
	}
}

func TestPool2D_KernelTooLargePanics(t *testing.T) {
	backend := New()
	win := tensor.Window2D{Kernel: [2]int{5, 5}, Stride: [2]int{1, 1}}

	assert.Panics(t, func() { backend.MaxPool2D(ramp4x4(t), win) })
}
