package loader

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/internal/tensor"
)

type testTensor struct {
	dtype string
	shape []int
	data  []float32
}

// encodeSafeTensors lays tensors out in name order after the JSON header.
func encodeSafeTensors(t *testing.T, tensors map[string]testTensor, metadata map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := map[string]any{}
	if metadata != nil {
		header["__metadata__"] = metadata
	}
	var body []byte
	for _, name := range names {
		tt := tensors[name]
		start := len(body)
		for _, v := range tt.data {
			body = binary.LittleEndian.AppendUint32(body, math.Float32bits(v))
		}
		header[name] = map[string]any{
			"dtype":        tt.dtype,
			"shape":        tt.shape,
			"data_offsets": []int{start, len(body)},
		}
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	out := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	return append(out, body...)
}

func linearModel() *nn.Sequential {
	return nn.NewSequential(nn.NewLinear(3, 2), nn.NewBatchNorm2D(2))
}

func TestParse(t *testing.T) {
	data := encodeSafeTensors(t, map[string]testTensor{
		"weight": {"F32", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		"bias":   {"F32", []int{3}, []float32{7, 8, 9}},
	}, map[string]string{"format": "pt"})

	w, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []string{"bias", "weight"}, w.Names())
	assert.Equal(t, "pt", w.Metadata()["format"])

	weight, err := w.Tensor("weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, weight.Shape())
	assert.Equal(t, tensor.Float32, weight.DType())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, weight.AsFloat32())

	_, err = w.Tensor("missing")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, os.WriteFile(path, encodeSafeTensors(t, map[string]testTensor{
		"x": {"F32", []int{1}, []float32{3}},
	}, nil), 0o600))

	w, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, w.Names())

	_, err = Open(filepath.Join(t.TempDir(), "absent.safetensors"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMappers(t *testing.T) {
	tests := []struct {
		mapper WeightMapper
		in     string
		want   string
	}{
		{IdentityMapper{}, "/0/W", "/0/W"},
		{DottedMapper{}, "/0/W", "0.W"},
		{DottedMapper{}, "/features/1/gamma", "features.1.gamma"},
		{DottedMapper{Prefix: "model."}, "/2/b", "model.2.b"},
	}
	for _, tt := range tests {
		got, err := tt.mapper.MapName(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := DottedMapper{}.MapName("/")
	assert.Error(t, err)
}

func TestGetMapper(t *testing.T) {
	m, err := GetMapper("", "")
	require.NoError(t, err)
	assert.Equal(t, IdentityMapper{}, m)

	m, err = GetMapper(StyleDotted, "model.")
	require.NoError(t, err)
	assert.Equal(t, DottedMapper{Prefix: "model."}, m)

	_, err = GetMapper(StyleIdentity, "model.")
	assert.Error(t, err)
	_, err = GetMapper("gguf", "")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	model := linearModel()
	w, err := Parse(encodeSafeTensors(t, map[string]testTensor{
		"0.W":        {"F32", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		"0.b":        {"F32", []int{2}, []float32{-1, 1}},
		"1.gamma":    {"F32", []int{2}, []float32{2, 2}},
		"1.beta":     {"F32", []int{2}, []float32{0.5, 0.5}},
		"1.avg_mean": {"F32", []int{2}, []float32{0.1, 0.2}},
		"1.avg_var":  {"F32", []int{2}, []float32{1.5, 2.5}},
		"extra":      {"F32", []int{1}, []float32{0}},
	}, nil))
	require.NoError(t, err)

	report, err := Load(w, model.NamedParams(), model.NamedBuffers(), DottedMapper{})
	require.NoError(t, err)

	assert.Equal(t, []string{"/0/W", "/0/b", "/1/gamma", "/1/beta", "/1/avg_mean", "/1/avg_var"}, report.Loaded)
	assert.Empty(t, report.Missing)
	assert.Equal(t, []string{"extra"}, report.Unused)

	params := model.NamedParams()
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, params[0].Param.Data.AsFloat32())
	assert.Equal(t, []float32{-1, 1}, params[1].Param.Data.AsFloat32())
	assert.Equal(t, []float32{1.5, 2.5}, model.NamedBuffers()[1].Data.AsFloat32())
}

func TestLoad_Missing(t *testing.T) {
	w, err := Parse(encodeSafeTensors(t, map[string]testTensor{
		"0.W": {"F32", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
	}, nil))
	require.NoError(t, err)

	model := linearModel()
	report, err := Load(w, model.NamedParams(), nil, DottedMapper{})
	require.ErrorIs(t, err, ErrMissingWeights)
	assert.Equal(t, []string{"/0/b", "/1/gamma", "/1/beta"}, report.Missing)

	report, err = Load(w, model.NamedParams(), nil, DottedMapper{}, LoadOptions{AllowMissing: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"/0/W"}, report.Loaded)
}

func TestLoad_Mismatch(t *testing.T) {
	tests := []struct {
		name   string
		tensor testTensor
	}{
		{"shape", testTensor{"F32", []int{3, 2}, []float32{1, 2, 3, 4, 5, 6}}},
		{"dtype", testTensor{"I32", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Parse(encodeSafeTensors(t, map[string]testTensor{"/0/W": tt.tensor}, nil))
			require.NoError(t, err)

			model := nn.NewSequential(nn.NewLinear(3, 2, nn.WithoutBias()))
			_, err = Load(w, model.NamedParams(), nil, IdentityMapper{})
			assert.ErrorContains(t, err, "/0/W")
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	src := linearModel()
	src.NamedBuffers()[0].Data.AsFloat32()[1] = 0.75

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, src.NamedParams(), src.NamedBuffers(), DottedMapper{Prefix: "model."}, map[string]string{"format": "pt"}))

	w, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"format": "pt"}, w.Metadata())
	assert.Equal(t, []string{
		"model.0.W", "model.0.b", "model.1.avg_mean", "model.1.avg_var", "model.1.beta", "model.1.gamma",
	}, w.Names())

	dst := linearModel()
	report, err := Load(w, dst.NamedParams(), dst.NamedBuffers(), DottedMapper{Prefix: "model."})
	require.NoError(t, err)
	assert.Empty(t, report.Unused)

	for i, p := range src.NamedParams() {
		assert.Equal(t, p.Param.Data.AsFloat32(), dst.NamedParams()[i].Param.Data.AsFloat32(), p.Name)
	}
	assert.Equal(t, float32(0.75), dst.NamedBuffers()[0].Data.AsFloat32()[1])
}

func TestSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.safetensors")
	model := nn.NewSequential(nn.NewLinear(3, 2))
	require.NoError(t, SaveFile(path, model.NamedParams(), nil, IdentityMapper{}, nil))

	w, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/0/W", "/0/b"}, w.Names())
}

func TestSave_DuplicateKey(t *testing.T) {
	model := nn.NewSequential(nn.NewLinear(3, 2))
	params := model.NamedParams()
	params = append(params, params[0])

	err := Save(io.Discard, params, nil, IdentityMapper{}, nil)
	assert.ErrorContains(t, err, "already written")
}
