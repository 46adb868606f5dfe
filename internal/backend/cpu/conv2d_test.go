package cpu

import (
	"math/rand"
	"testing"

	"github.com/born-ml/onnxport/internal/parallel"
	"github.com/born-ml/onnxport/internal/tensor"
)

// diagonalCase returns the 3x3 ramp image and the 2x2 diagonal kernel used by
// several tests:
//
//	1 2 3      1 0
//	4 5 6      0 1
//	7 8 9
func diagonalCase(t *testing.T) (input, kernel *tensor.RawTensor) {
	t.Helper()
	input, err := tensor.FromSlice(tensor.Shape{1, 1, 3, 3}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if err != nil {
		t.Fatal(err)
	}
	kernel, err = tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{1, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	return input, kernel
}

func TestConv2D_BasicForward(t *testing.T) {
	backend := New()
	input, kernel := diagonalCase(t)

	output := backend.Conv2D(input, kernel, nil, [2]int{1, 1}, [2]int{0, 0})

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Diagonal sums of each 2x2 patch.
	expected := []float32{6, 8, 12, 14}
	for i, exp := range expected {
		if got := output.AsFloat32()[i]; got != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}
}

func TestConv2D_Bias(t *testing.T) {
	backend := New()
	input, kernel := diagonalCase(t)
	bias, _ := tensor.FromSlice(tensor.Shape{1}, []float32{10})

	output := backend.Conv2D(input, kernel, bias, [2]int{1, 1}, [2]int{0, 0})

	expected := []float32{16, 18, 22, 24}
	for i, exp := range expected {
		if got := output.AsFloat32()[i]; got != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}
}

func TestConv2D_StrideAndPadding(t *testing.T) {
	backend := New()
	input, _ := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float64{1, 2, 3, 4})
	kernel, _ := tensor.FromSlice(tensor.Shape{1, 1, 1, 1}, []float64{1})

	// Padded plane is 4x4; a stride of 2 samples rows/cols 0 and 2.
	output := backend.Conv2D(input, kernel, nil, [2]int{2, 2}, [2]int{1, 1})

	if !output.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("Expected shape [1 1 2 2], got %v", output.Shape())
	}
	expected := []float64{0, 0, 0, 4}
	for i, exp := range expected {
		if got := output.AsFloat64()[i]; got != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}
}

func TestConv2D_Backward(t *testing.T) {
	backend := New()
	input, kernel := diagonalCase(t)
	grad := tensor.Ones(tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	gInput, gKernel := backend.Conv2DBackward(input, kernel, grad, [2]int{1, 1}, [2]int{0, 0})

	// d(sum)/dW is the sum of the patches under each tap.
	wantKernel := []float32{12, 16, 24, 28}
	for i, exp := range wantKernel {
		if got := gKernel.AsFloat32()[i]; got != exp {
			t.Errorf("gKernel[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}

	// d(sum)/dx counts the windows in which x meets a non-zero tap.
	wantInput := []float32{1, 1, 0, 1, 2, 1, 0, 1, 1}
	for i, exp := range wantInput {
		if got := gInput.AsFloat32()[i]; got != exp {
			t.Errorf("gInput[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	input := tensor.Zeros(tensor.Shape{1, 2, 3, 3}, tensor.Float32)
	kernel := tensor.Zeros(tensor.Shape{1, 3, 2, 2}, tensor.Float32)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for channel mismatch")
		}
	}()
	backend.Conv2D(input, kernel, nil, [2]int{1, 1}, [2]int{0, 0})
}

func TestConv2D_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // G404: test data.
	input := tensor.RandUniform(tensor.Shape{3, 2, 6, 6}, tensor.Float32, -1, 1, rng)
	kernel := tensor.RandUniform(tensor.Shape{5, 2, 3, 3}, tensor.Float32, -1, 1, rng)
	bias := tensor.RandUniform(tensor.Shape{5}, tensor.Float32, -1, 1, rng)

	seq := NewWithConfig(parallel.Config{})
	par := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	want := seq.Conv2D(input, kernel, bias, [2]int{1, 1}, [2]int{1, 1})
	got := par.Conv2D(input, kernel, bias, [2]int{1, 1}, [2]int{1, 1})

	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("shape %v, want %v", got.Shape(), want.Shape())
	}
	for i, w := range want.AsFloat32() {
		if g := got.AsFloat32()[i]; g != w {
			t.Fatalf("output[%d] = %v, want %v", i, g, w)
		}
	}
}
