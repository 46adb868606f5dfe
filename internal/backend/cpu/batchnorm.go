package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxport/internal/tensor"
)

// channelLayout views x as [N, C, inner] with channels on axis 1.
func channelLayout(op string, shape tensor.Shape) (n, c, inner int) {
	if len(shape) < 2 {
		panic(fmt.Sprintf("%s: expected at least 2D input [N,C,...], got %dD", op, len(shape)))
	}
	inner = 1
	for _, d := range shape[2:] {
		inner *= d
	}
	return shape[0], shape[1], inner
}

// ChannelMoments returns the per-channel mean and biased variance of x,
// reduced over every axis except 1.
func (cpu *CPUBackend) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	n, c, inner := channelLayout("channel_moments", x.Shape())
	dt := requireFloat("channel_moments", x)
	mean = cpu.newResult("channel_moments", tensor.Shape{c}, dt)
	variance = cpu.newResult("channel_moments", tensor.Shape{c}, dt)

	switch dt {
	case tensor.Float32:
		channelMoments(mean.AsFloat32(), variance.AsFloat32(), x.AsFloat32(), n, c, inner)
	case tensor.Float64:
		channelMoments(mean.AsFloat64(), variance.AsFloat64(), x.AsFloat64(), n, c, inner)
	}
	return mean, variance
}

// BatchNorm computes gamma * (x - mean) / sqrt(variance + eps) + beta per channel.
func (cpu *CPUBackend) BatchNorm(x, gamma, beta, mean, variance *tensor.RawTensor, eps float64) *tensor.RawTensor {
	n, c, inner := channelLayout("batchnorm", x.Shape())
	dt := requireFloat("batchnorm", x, gamma, beta, mean, variance)
	for _, p := range []*tensor.RawTensor{gamma, beta, mean, variance} {
		if p.NumElements() != c {
			panic(fmt.Sprintf("batchnorm: per-channel tensor has %d elements, want %d", p.NumElements(), c))
		}
	}
	result := cpu.newResult("batchnorm", x.Shape(), dt)

	switch dt {
	case tensor.Float32:
		batchNorm(result.AsFloat32(), x.AsFloat32(), gamma.AsFloat32(), beta.AsFloat32(),
			mean.AsFloat32(), variance.AsFloat32(), eps, n, c, inner)
	case tensor.Float64:
		batchNorm(result.AsFloat64(), x.AsFloat64(), gamma.AsFloat64(), beta.AsFloat64(),
			mean.AsFloat64(), variance.AsFloat64(), eps, n, c, inner)
	}
	return result
}

// BatchNormBackward returns the gradients with respect to x, gamma and beta.
// With batchStats the statistics are treated as functions of x (training
// mode); otherwise they are constants.
func (cpu *CPUBackend) BatchNormBackward(x, gamma, mean, variance, grad *tensor.RawTensor, eps float64, batchStats bool) (gx, ggamma, gbeta *tensor.RawTensor) {
	n, c, inner := channelLayout("batchnorm_backward", x.Shape())
	dt := requireFloat("batchnorm_backward", x, gamma, mean, variance, grad)
	gx = cpu.newResult("batchnorm_backward", x.Shape(), dt)
	ggamma = cpu.newResult("batchnorm_backward", gamma.Shape(), dt)
	gbeta = cpu.newResult("batchnorm_backward", gamma.Shape(), dt)

	switch dt {
	case tensor.Float32:
		batchNormBackward(gx.AsFloat32(), ggamma.AsFloat32(), gbeta.AsFloat32(), x.AsFloat32(), gamma.AsFloat32(),
			mean.AsFloat32(), variance.AsFloat32(), grad.AsFloat32(), eps, batchStats, n, c, inner)
	case tensor.Float64:
		batchNormBackward(gx.AsFloat64(), ggamma.AsFloat64(), gbeta.AsFloat64(), x.AsFloat64(), gamma.AsFloat64(),
			mean.AsFloat64(), variance.AsFloat64(), grad.AsFloat64(), eps, batchStats, n, c, inner)
	}
	return gx, ggamma, gbeta
}

func channelMoments[T tensor.Float](mean, variance, x []T, n, c, inner int) {
	m := float64(n * inner)
	for ch := 0; ch < c; ch++ {
		sum, sq := 0.0, 0.0
		for b := 0; b < n; b++ {
			for _, v := range x[(b*c+ch)*inner : (b*c+ch+1)*inner] {
				sum += float64(v)
				sq += float64(v) * float64(v)
			}
		}
		mu := sum / m
		mean[ch] = T(mu)
		variance[ch] = T(math.Max(sq/m-mu*mu, 0))
	}
}

func batchNorm[T tensor.Float](out, x, gamma, beta, mean, variance []T, eps float64, n, c, inner int) {
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			scale := float64(gamma[ch]) / math.Sqrt(float64(variance[ch])+eps)
			shift := float64(beta[ch]) - float64(mean[ch])*scale
			base := (b*c + ch) * inner
			for i := base; i < base+inner; i++ {
				out[i] = T(float64(x[i])*scale + shift)
			}
		}
	}
}

func batchNormBackward[T tensor.Float](gx, ggamma, gbeta, x, gamma, mean, variance, grad []T,
	eps float64, batchStats bool, n, c, inner int) {
	m := float64(n * inner)
	for ch := 0; ch < c; ch++ {
		invStd := 1 / math.Sqrt(float64(variance[ch])+eps)
		mu := float64(mean[ch])

		sumG, sumGX := 0.0, 0.0
		for b := 0; b < n; b++ {
			base := (b*c + ch) * inner
			for i := base; i < base+inner; i++ {
				sumG += float64(grad[i])
				sumGX += float64(grad[i]) * (float64(x[i]) - mu) * invStd
			}
		}
		gbeta[ch] = T(sumG)
		ggamma[ch] = T(sumGX)

		g := float64(gamma[ch]) * invStd
		for b := 0; b < n; b++ {
			base := (b*c + ch) * inner
			for i := base; i < base+inner; i++ {
				if !batchStats {
					gx[i] = T(g * float64(grad[i]))
					continue
				}
				xhat := (float64(x[i]) - mu) * invStd
				gx[i] = T(g * (float64(grad[i]) - sumG/m - xhat*sumGX/m))
			}
		}
	}
}
