package cpu

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/tensor"
)

// MatMul performs 2D matrix multiplication op(a) @ op(b), where op transposes
// its operand when the matching flag is set.
// Uses a naive O(n³) loop; shapes here are small.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor, transA, transB bool) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	if transA {
		m, k = k, m
	}
	kAlt, n := bShape[0], bShape[1]
	if transB {
		kAlt, n = n, kAlt
	}
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch %v (transA=%t) @ %v (transB=%t)", aShape, transA, bShape, transB))
	}

	dt := requireFloat("matmul", a, b)
	result := cpu.newResult("matmul", tensor.Shape{m, n}, dt)

	switch dt {
	case tensor.Float32:
		matmul(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n, transA, transB)
	case tensor.Float64:
		matmul(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n, transA, transB)
	}
	return result
}

func matmul[T tensor.Float](c, a, b []T, m, k, n int, transA, transB bool) {
	at := func(i, p int) T {
		if transA {
			return a[p*m+i]
		}
		return a[i*k+p]
	}
	bt := func(p, j int) T {
		if transB {
			return b[j*k+p]
		}
		return b[p*n+j]
	}

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for p := 0; p < k; p++ {
				sum += at(i, p) * bt(p, j)
			}
			c[i*n+j] = sum
		}
	}
}
