package ops

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/internal/tensor"
)

// BatchNormalizationFunction normalizes x per channel (axis 1) and applies the
// learned scale gamma and shift beta.
//
// In ModeTrain the batch statistics are used and the running statistics are
// updated in place:
//
//	running_mean = decay*running_mean + (1-decay)*mean
//	running_var  = decay*running_var  + (1-decay)*var*m/(m-1)
//
// In ModeTest the running statistics are used unchanged.
type BatchNormalizationFunction struct {
	Eps         float64
	Decay       float64
	RunningMean *tensor.RawTensor
	RunningVar  *tensor.RawTensor

	// statistics used by the forward pass
	mean, variance *tensor.RawTensor
	batchStats     bool
}

// Kind implements autodiff.Function.
func (*BatchNormalizationFunction) Kind() autodiff.Kind { return autodiff.KindBatchNormalization }

// Forward implements autodiff.Function.
func (f *BatchNormalizationFunction) Forward(ctx autodiff.Context, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := checkArity(f.Kind(), in, 3, 3); err != nil {
		return nil, err
	}
	if f.RunningMean == nil || f.RunningVar == nil {
		return nil, fmt.Errorf("%s: running statistics not set", f.Kind())
	}
	b := ctx.Backend
	x, gamma, beta := in[0], in[1], in[2]

	f.batchStats = ctx.Mode == autodiff.ModeTrain
	if f.batchStats {
		f.mean, f.variance = b.ChannelMoments(x)
		f.updateRunning(b, x)
	} else {
		f.mean, f.variance = f.RunningMean, f.RunningVar
	}
	return one(b.BatchNorm(x, gamma, beta, f.mean, f.variance, f.Eps)), nil
}

func (f *BatchNormalizationFunction) updateRunning(b tensor.Backend, x *tensor.RawTensor) {
	m := x.NumElements() / x.Shape()[1]
	adjust := float64(m) / float64(max(m-1, 1))

	mean := b.Add(b.Scale(f.RunningMean, f.Decay), b.Scale(f.mean, 1-f.Decay))
	variance := b.Add(b.Scale(f.RunningVar, f.Decay), b.Scale(f.variance, (1-f.Decay)*adjust))
	copy(f.RunningMean.Data(), mean.Data())
	copy(f.RunningVar.Data(), variance.Data())
}

// Backward implements autodiff.Function.
func (f *BatchNormalizationFunction) Backward(ctx autodiff.Context, in, _, g []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	gx, ggamma, gbeta := ctx.Backend.BatchNormBackward(in[0], in[1], f.mean, f.variance, g[0], f.Eps, f.batchStats)
	return []*tensor.RawTensor{gx, ggamma, gbeta}, nil
}

// BatchNorm normalizes x with the given parameters and running statistics.
func BatchNorm(x, gamma, beta *autodiff.Variable, runningMean, runningVar *tensor.RawTensor, eps, decay float64) (*autodiff.Variable, error) {
	fn := &BatchNormalizationFunction{Eps: eps, Decay: decay, RunningMean: runningMean, RunningVar: runningVar}
	return apply(fn, x, gamma, beta)
}
