package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/tensor"
)

// tensorHeader is one entry of the SafeTensors JSON header.
type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Save writes a module's parameters and buffers in SafeTensors format, keyed
// through mapper so that Load with the same mapper reads them back.
//
// Layout:
//
//	[8 bytes: header size, uint64 LE]
//	[header: JSON]
//	[tensor data, in key order]
func Save(out io.Writer, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, metadata map[string]string) error {
	tensors := make(map[string]*tensor.RawTensor, len(params)+len(buffers))
	add := func(name string, t *tensor.RawTensor) error {
		key, err := mapper.MapName(name)
		if err != nil {
			return fmt.Errorf("loader: %s: %w", name, err)
		}
		if _, dup := tensors[key]; dup {
			return fmt.Errorf("loader: %s: key %q already written", name, key)
		}
		tensors[key] = t
		return nil
	}
	for _, p := range params {
		if err := add(p.Name, p.Param.Data); err != nil {
			return err
		}
	}
	for _, b := range buffers {
		if err := add(b.Name, b.Data); err != nil {
			return err
		}
	}
	return writeSafeTensors(out, tensors, metadata)
}

// SaveFile writes Save's output to path.
func SaveFile(path string, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, metadata map[string]string) (err error) {
	//nolint:gosec // G304: path is supplied by the user.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("loader: %w", cerr)
		}
	}()
	return Save(f, params, buffers, mapper, metadata)
}

func writeSafeTensors(out io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	keys := make([]string, 0, len(tensors))
	for key := range tensors {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	header := make(map[string]any, len(keys)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, key := range keys {
		t := tensors[key]
		dtype, err := safeTensorsDType(t.DType())
		if err != nil {
			return fmt.Errorf("loader: %s: %w", key, err)
		}
		size := int64(len(t.Data()))
		header[key] = tensorHeader{
			DType:       dtype,
			Shape:       t.Shape().Int64s(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("loader: failed to marshal header: %w", err)
	}
	if err := binary.Write(out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("loader: failed to write header size: %w", err)
	}
	if _, err := out.Write(headerJSON); err != nil {
		return fmt.Errorf("loader: failed to write header: %w", err)
	}
	for _, key := range keys {
		if _, err := out.Write(tensors[key].Data()); err != nil {
			return fmt.Errorf("loader: failed to write tensor %s: %w", key, err)
		}
	}
	return nil
}

func safeTensorsDType(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	case tensor.Uint8:
		return "U8", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", fmt.Errorf("unsupported data type %s", dt)
	}
}
