package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// ParseTensor parses a single serialized TensorProto (a test data .pb file).
func ParseTensor(data []byte) (*TensorProto, error) {
	t := &TensorProto{}
	if err := readTensorProto(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tensor: %w", err)
	}
	return t, nil
}

// field is one decoded tag plus the input positioned at its value. Accessors
// consume the value and record the first error.
type field struct {
	num protowire.Number
	typ protowire.Type
	buf []byte
	n   int
	err error
}

// eachField calls fn for every field of a message. Fields fn does not
// consume are skipped.
func eachField(b []byte, fn func(f *field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		f := field{num: num, typ: typ, buf: b[n:]}
		fn(&f)
		if f.err == nil && f.n == 0 {
			f.skip()
		}
		if f.err != nil {
			return fmt.Errorf("field %d: %w", num, f.err)
		}
		b = f.buf[f.n:]
	}
	return nil
}

func (f *field) consumed(n int) {
	if n < 0 {
		f.err = protowire.ParseError(n)
		return
	}
	f.n = n
}

func (f *field) expect(typ protowire.Type) bool {
	if f.typ != typ {
		f.err = fmt.Errorf("unexpected wire type %d", f.typ)
		return false
	}
	return true
}

func (f *field) skip() {
	f.consumed(protowire.ConsumeFieldValue(f.num, f.typ, f.buf))
}

func (f *field) bytes() []byte {
	if !f.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.buf)
	f.consumed(n)
	return v
}

func (f *field) string() string {
	return string(f.bytes())
}

func (f *field) varint() int64 {
	if !f.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.buf)
	f.consumed(n)
	return int64(v) //nolint:gosec // G115: Protobuf varint fits in int64.
}

func (f *field) float32() float32 {
	if !f.expect(protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(f.buf)
	f.consumed(n)
	return math.Float32frombits(v)
}

// message decodes a length-delimited submessage with read.
func (f *field) message(read func([]byte) error) {
	if b := f.bytes(); f.err == nil {
		f.err = read(b)
	}
}

// varints reads a repeated varint field in either packed or unpacked form.
func (f *field) varints() []int64 {
	if f.typ != protowire.BytesType {
		return []int64{f.varint()}
	}
	b := f.bytes()
	var out []int64
	for len(b) > 0 && f.err == nil {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			f.err = protowire.ParseError(n)
			break
		}
		out = append(out, int64(v)) //nolint:gosec // G115: Protobuf varint fits in int64.
		b = b[n:]
	}
	return out
}

// float32s reads a repeated float field in either packed or unpacked form.
func (f *field) float32s() []float32 {
	if f.typ != protowire.BytesType {
		return []float32{f.float32()}
	}
	b := f.bytes()
	if len(b)%4 != 0 {
		f.err = fmt.Errorf("packed float length %d", len(b))
		return nil
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		out = append(out, math.Float32frombits(v))
		b = b[n:]
	}
	return out
}

// float64s reads a repeated double field in either packed or unpacked form.
func (f *field) float64s() []float64 {
	if f.typ != protowire.BytesType {
		if !f.expect(protowire.Fixed64Type) {
			return nil
		}
		v, n := protowire.ConsumeFixed64(f.buf)
		f.consumed(n)
		return []float64{math.Float64frombits(v)}
	}
	b := f.bytes()
	if len(b)%8 != 0 {
		f.err = fmt.Errorf("packed double length %d", len(b))
		return nil
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out
}

// readModelProto reads ModelProto message.
func readModelProto(b []byte, m *ModelProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // ir_version
			m.IRVersion = f.varint()
		case 2: // producer_name
			m.ProducerName = f.string()
		case 3: // producer_version
			m.ProducerVersion = f.string()
		case 4: // domain
			m.Domain = f.string()
		case 5: // model_version
			m.ModelVersion = f.varint()
		case 6: // doc_string
			m.DocString = f.string()
		case 7: // graph
			m.Graph = &GraphProto{}
			f.message(func(b []byte) error { return readGraphProto(b, m.Graph) })
		case 8: // opset_import
			var op OperatorSetID
			f.message(func(b []byte) error { return readOperatorSetID(b, &op) })
			m.OpsetImport = append(m.OpsetImport, op)
		case 14: // metadata_props
			var kv StringStringEntry
			f.message(func(b []byte) error { return readStringStringEntry(b, &kv) })
			m.MetadataProps = append(m.MetadataProps, kv)
		}
	})
}

// readGraphProto reads GraphProto message.
func readGraphProto(b []byte, m *GraphProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // node
			var node NodeProto
			f.message(func(b []byte) error { return readNodeProto(b, &node) })
			m.Nodes = append(m.Nodes, node)
		case 2: // name
			m.Name = f.string()
		case 5: // initializer
			var t TensorProto
			f.message(func(b []byte) error { return readTensorProto(b, &t) })
			m.Initializers = append(m.Initializers, t)
		case 10: // doc_string
			m.DocString = f.string()
		case 11: // input
			m.Inputs = append(m.Inputs, f.valueInfo())
		case 12: // output
			m.Outputs = append(m.Outputs, f.valueInfo())
		case 13: // value_info
			m.ValueInfo = append(m.ValueInfo, f.valueInfo())
		}
	})
}

func (f *field) valueInfo() ValueInfoProto {
	var vi ValueInfoProto
	f.message(func(b []byte) error { return readValueInfoProto(b, &vi) })
	return vi
}

// readNodeProto reads NodeProto message.
func readNodeProto(b []byte, m *NodeProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // input
			m.Inputs = append(m.Inputs, f.string())
		case 2: // output
			m.Outputs = append(m.Outputs, f.string())
		case 3: // name
			m.Name = f.string()
		case 4: // op_type
			m.OpType = f.string()
		case 5: // attribute
			var attr AttributeProto
			f.message(func(b []byte) error { return readAttributeProto(b, &attr) })
			m.Attributes = append(m.Attributes, attr)
		case 6: // doc_string
			m.DocString = f.string()
		case 7: // domain
			m.Domain = f.string()
		}
	})
}

// readTensorProto reads TensorProto message.
func readTensorProto(b []byte, m *TensorProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // dims
			m.Dims = append(m.Dims, f.varints()...)
		case 2: // data_type
			m.DataType = int32(f.varint()) //nolint:gosec // G115: ONNX enum fits in int32.
		case 4: // float_data
			m.FloatData = append(m.FloatData, f.float32s()...)
		case 5: // int32_data
			for _, v := range f.varints() {
				m.Int32Data = append(m.Int32Data, int32(v)) //nolint:gosec // G115: ONNX protobuf varint fits in int32.
			}
		case 7: // int64_data
			m.Int64Data = append(m.Int64Data, f.varints()...)
		case 8: // name
			m.Name = f.string()
		case 9: // raw_data
			m.RawData = append([]byte(nil), f.bytes()...)
		case 10: // double_data
			m.DoubleData = append(m.DoubleData, f.float64s()...)
		case 12: // doc_string
			m.DocString = f.string()
		}
	})
}

// readValueInfoProto reads ValueInfoProto message.
func readValueInfoProto(b []byte, m *ValueInfoProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // name
			m.Name = f.string()
		case 2: // type
			m.Type = &TypeProto{}
			f.message(func(b []byte) error { return readTypeProto(b, m.Type) })
		case 3: // doc_string
			m.DocString = f.string()
		}
	})
}

// readTypeProto reads TypeProto message.
func readTypeProto(b []byte, m *TypeProto) error {
	return eachField(b, func(f *field) {
		if f.num == 1 { // tensor_type
			m.TensorType = &TensorTypeProto{}
			f.message(func(b []byte) error { return readTensorTypeProto(b, m.TensorType) })
		}
	})
}

// readTensorTypeProto reads TensorTypeProto message.
func readTensorTypeProto(b []byte, m *TensorTypeProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // elem_type
			m.ElemType = int32(f.varint()) //nolint:gosec // G115: ONNX enum fits in int32.
		case 2: // shape
			m.Shape = &TensorShapeProto{}
			f.message(func(b []byte) error { return readTensorShapeProto(b, m.Shape) })
		}
	})
}

// readTensorShapeProto reads TensorShapeProto message.
func readTensorShapeProto(b []byte, m *TensorShapeProto) error {
	return eachField(b, func(f *field) {
		if f.num == 1 { // dim
			var dim DimensionProto
			f.message(func(b []byte) error { return readDimensionProto(b, &dim) })
			m.Dims = append(m.Dims, dim)
		}
	})
}

// readDimensionProto reads DimensionProto message.
func readDimensionProto(b []byte, m *DimensionProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // dim_value
			m.DimValue = f.varint()
		case 2: // dim_param
			m.DimParam = f.string()
		}
	})
}

// readAttributeProto reads AttributeProto message.
func readAttributeProto(b []byte, m *AttributeProto) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // name
			m.Name = f.string()
		case 2: // f
			m.F = f.float32()
		case 3: // i
			m.I = f.varint()
		case 4: // s
			m.S = append([]byte(nil), f.bytes()...)
		case 5: // t
			m.T = &TensorProto{}
			f.message(func(b []byte) error { return readTensorProto(b, m.T) })
		case 6: // g
			m.G = &GraphProto{}
			f.message(func(b []byte) error { return readGraphProto(b, m.G) })
		case 7: // floats
			m.Floats = append(m.Floats, f.float32s()...)
		case 8: // ints
			m.Ints = append(m.Ints, f.varints()...)
		case 9: // strings
			m.Strings = append(m.Strings, append([]byte(nil), f.bytes()...))
		case 10: // tensors
			var t TensorProto
			f.message(func(b []byte) error { return readTensorProto(b, &t) })
			m.Tensors = append(m.Tensors, t)
		case 11: // graphs
			var g GraphProto
			f.message(func(b []byte) error { return readGraphProto(b, &g) })
			m.Graphs = append(m.Graphs, g)
		case 13: // doc_string
			m.DocString = f.string()
		case 20: // type
			m.Type = int32(f.varint()) //nolint:gosec // G115: ONNX enum fits in int32.
		}
	})
}

// readOperatorSetID reads OperatorSetID message.
func readOperatorSetID(b []byte, m *OperatorSetID) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // domain
			m.Domain = f.string()
		case 2: // version
			m.Version = f.varint()
		}
	})
}

// readStringStringEntry reads StringStringEntry message.
func readStringStringEntry(b []byte, m *StringStringEntry) error {
	return eachField(b, func(f *field) {
		switch f.num {
		case 1: // key
			m.Key = f.string()
		case 2: // value
			m.Value = f.string()
		}
	})
}
