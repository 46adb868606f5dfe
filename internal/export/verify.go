package export

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Mismatch is one output that differs from its stored value.
type Mismatch struct {
	Output   int
	Name     string
	Index    int
	Got      float64
	Want     float64
	MaxError float64
}

// VerifyReport is the outcome of VerifyTestcase.
type VerifyReport struct {
	Inputs     int
	Outputs    int
	Mismatches []Mismatch
}

// Passed reports whether every output matched.
func (r *VerifyReport) Passed() bool { return len(r.Mismatches) == 0 }

// VerifyTestcase loads dir/model.onnx, feeds it the stored inputs and
// compares the results with the stored outputs: |got-want| <= atol +
// rtol*|want| for every element. Only local directories are supported.
func VerifyTestcase(dir string, rtol, atol float64, opts ...Option) (*VerifyReport, error) {
	o := buildOptions(opts)
	report, err := verifyTestcase(dir, rtol, atol, &o)
	if o.Metrics != nil && err == nil {
		o.Metrics.RecordVerification(report.Passed())
	}
	return report, err
}

func verifyTestcase(dir string, rtol, atol float64, o *Options) (*VerifyReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelFile)) //nolint:gosec // G304: test case directory is supplied by the user.
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	model, err := onnx.LoadFromBytes(data, o.Backend)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	inputs, err := readTensors(dir, InputFile)
	if err != nil {
		return nil, err
	}
	want, err := readTensors(dir, OutputFile)
	if err != nil {
		return nil, err
	}
	names := model.InputNames()
	if len(inputs) != len(names) {
		return nil, fmt.Errorf("verify: %d stored inputs for graph inputs %v", len(inputs), names)
	}
	if len(want) != len(model.OutputNames()) {
		return nil, fmt.Errorf("verify: %d stored outputs for graph outputs %v", len(want), model.OutputNames())
	}

	feed := make(map[string]*tensor.RawTensor, len(inputs))
	for i, name := range names {
		feed[name] = inputs[i]
	}
	got, err := model.ForwardNamed(feed)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	report := &VerifyReport{Inputs: len(inputs), Outputs: len(want)}
	for i, name := range model.OutputNames() {
		g, ok := got[name]
		if !ok {
			return nil, fmt.Errorf("verify: output %q not computed", name)
		}
		if !g.Shape().Equal(want[i].Shape()) {
			return nil, fmt.Errorf("verify: output %q has shape %v, stored %v", name, g.Shape(), want[i].Shape())
		}
		if m, ok := compare(g.Float64s(), want[i].Float64s(), rtol, atol); !ok {
			m.Output, m.Name = i, name
			report.Mismatches = append(report.Mismatches, m)
			o.Logger.Warnw("output mismatch", "output", name, "index", m.Index,
				"got", m.Got, "want", m.Want, "max_error", m.MaxError)
		}
	}
	o.Logger.Infow("verified test case", "dir", dir, "outputs", report.Outputs, "passed", report.Passed())
	return report, nil
}

// compare returns the first element out of tolerance and the largest
// absolute error.
func compare(got, want []float64, rtol, atol float64) (Mismatch, bool) {
	var m Mismatch
	ok := true
	for i := range want {
		diff := math.Abs(got[i] - want[i])
		m.MaxError = max(m.MaxError, diff)
		if ok && !(diff <= atol+rtol*math.Abs(want[i])) {
			ok = false
			m.Index, m.Got, m.Want = i, got[i], want[i]
		}
	}
	return m, ok
}

// readTensors reads the numbered tensors of a test case until the first
// missing index.
func readTensors(dir string, file func(int) string) ([]*tensor.RawTensor, error) {
	var out []*tensor.RawTensor
	for i := 0; ; i++ {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(file(i)))) //nolint:gosec // G304: see verifyTestcase.
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		p, err := onnx.ParseTensor(data)
		if err != nil {
			return nil, fmt.Errorf("verify: %s: %w", file(i), err)
		}
		t, err := onnx.ToRaw(p)
		if err != nil {
			return nil, fmt.Errorf("verify: %s: %w", file(i), err)
		}
		out = append(out, t)
	}
}
