package loader

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/nlpodyssey/safetensors"

	"github.com/born-ml/onnxport/internal/tensor"
)

// ErrTensorNotFound is returned when a weights file has no tensor of the
// requested name.
var ErrTensorNotFound = errors.New("loader: tensor not found")

// Weights is a parsed SafeTensors file. Tensor data stays in the file buffer
// until it is requested.
type Weights struct {
	st       safetensors.SafeTensors
	metadata map[string]string
}

// Open reads and parses a SafeTensors file.
func Open(path string) (*Weights, error) {
	//nolint:gosec // G304: weights path is supplied by the user.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse parses SafeTensors bytes. The returned Weights reference data.
func Parse(data []byte) (*Weights, error) {
	st, err := safetensors.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse safetensors: %w", err)
	}
	_, meta, err := safetensors.ReadMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse safetensors metadata: %w", err)
	}
	return &Weights{st: st, metadata: meta.Metadata()}, nil
}

// Names returns the tensor names in sorted order.
func (w *Weights) Names() []string {
	names := w.st.Names()
	sort.Strings(names)
	return names
}

// Metadata returns the free-form __metadata__ entries of the header.
func (w *Weights) Metadata() map[string]string { return w.metadata }

// Len returns the number of tensors.
func (w *Weights) Len() int { return w.st.Len() }

// Tensor copies the named tensor into a new CPU buffer.
func (w *Weights) Tensor(name string) (*tensor.RawTensor, error) {
	view, ok := w.st.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	dtype, err := dataTypeOf(view.DType())
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	shape := make(tensor.Shape, len(view.Shape()))
	for i, d := range view.Shape() {
		shape[i] = int(d) //nolint:gosec // G115: dimensions were validated by the parser.
	}
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	if len(view.Data()) != len(raw.Data()) {
		return nil, fmt.Errorf("tensor %q: %d bytes for shape %v, want %d", name, len(view.Data()), shape, len(raw.Data()))
	}
	copy(raw.Data(), view.Data())
	return raw, nil
}

// dataTypeOf maps SafeTensors dtypes onto tensor.DataType. Half precision
// types have no tensor.DataType and are rejected.
func dataTypeOf(dt safetensors.DType) (tensor.DataType, error) {
	switch dt {
	case safetensors.F32:
		return tensor.Float32, nil
	case safetensors.F64:
		return tensor.Float64, nil
	case safetensors.I32:
		return tensor.Int32, nil
	case safetensors.I64:
		return tensor.Int64, nil
	case safetensors.U8:
		return tensor.Uint8, nil
	case safetensors.BOOL:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %s", dt)
	}
}
