package loader

import (
	"errors"
	"fmt"

	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/tensor"
)

// ErrMissingWeights is returned by strict loads when a parameter or buffer
// has no tensor in the weights file.
var ErrMissingWeights = errors.New("loader: missing weights")

// Report lists what a Load matched. Names are module names for Loaded and
// Missing, and file keys for Unused.
type Report struct {
	Loaded  []string
	Missing []string
	Unused  []string
}

// LoadOptions configure Load.
type LoadOptions struct {
	// AllowMissing keeps the current value of parameters and buffers absent
	// from the file instead of failing.
	AllowMissing bool
}

// Load copies weights into the given parameters and buffers in place. Every
// tensor must match the dtype and shape of its destination.
func Load(w *Weights, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, opts ...LoadOptions) (*Report, error) {
	var opt LoadOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	report := &Report{}
	used := make(map[string]bool)
	load := func(name string, dst *tensor.RawTensor) error {
		key, err := mapper.MapName(name)
		if err != nil {
			return fmt.Errorf("loader: %s: %w", name, err)
		}
		src, err := w.Tensor(key)
		if errors.Is(err, ErrTensorNotFound) {
			report.Missing = append(report.Missing, name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loader: %s: %w", name, err)
		}
		if src.DType() != dst.DType() {
			return fmt.Errorf("loader: %s: file has %s, module has %s", name, src.DType(), dst.DType())
		}
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("loader: %s: file has shape %v, module has %v", name, src.Shape(), dst.Shape())
		}
		copy(dst.Data(), src.Data())
		used[key] = true
		report.Loaded = append(report.Loaded, name)
		return nil
	}

	for _, p := range params {
		if err := load(p.Name, p.Param.Data); err != nil {
			return nil, err
		}
	}
	for _, b := range buffers {
		if err := load(b.Name, b.Data); err != nil {
			return nil, err
		}
	}
	for _, key := range w.Names() {
		if !used[key] {
			report.Unused = append(report.Unused, key)
		}
	}

	if len(report.Missing) > 0 && !opt.AllowMissing {
		return report, fmt.Errorf("%w: %v", ErrMissingWeights, report.Missing)
	}
	return report, nil
}
