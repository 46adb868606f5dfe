package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/onnxport/internal/tensor"
)

// MakeNode builds a NodeProto in the default domain.
func MakeNode(opType string, inputs, outputs []string, attrs ...AttributeProto) NodeProto {
	return NodeProto{
		OpType:     opType,
		Inputs:     append([]string(nil), inputs...),
		Outputs:    append([]string(nil), outputs...),
		Attributes: attrs,
	}
}

// AttrFloat builds a FLOAT attribute.
func AttrFloat(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// AttrInt builds an INT attribute.
func AttrInt(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// AttrInts builds an INTS attribute.
func AttrInts(name string, v ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: v}
}

// AttrFloats builds a FLOATS attribute.
func AttrFloats(name string, v ...float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloats, Floats: v}
}

// AttrString builds a STRING attribute.
func AttrString(name, v string) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoString, S: []byte(v)}
}

// Attr returns the attribute called name, or nil.
func (n *NodeProto) Attr(name string) *AttributeProto {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// MakeTensorValueInfo builds a typed, shaped tensor descriptor.
func MakeTensorValueInfo(name string, elemType int32, dims []int64) ValueInfoProto {
	shape := &TensorShapeProto{Dims: make([]DimensionProto, len(dims))}
	for i, d := range dims {
		shape.Dims[i] = DimensionProto{DimValue: d}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// Dims returns the static dimensions of a tensor descriptor. Symbolic
// dimensions are reported as -1.
func (v *ValueInfoProto) Dims() []int64 {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil
	}
	dims := make([]int64, len(v.Type.TensorType.Shape.Dims))
	for i, d := range v.Type.TensorType.Shape.Dims {
		if d.DimParam != "" {
			dims[i] = -1
			continue
		}
		dims[i] = d.DimValue
	}
	return dims
}

// ElemTypeOf maps a tensor.DataType to the ONNX element type.
func ElemTypeOf(dt tensor.DataType) (int32, error) {
	switch dt {
	case tensor.Float32:
		return TensorProtoFloat, nil
	case tensor.Float64:
		return TensorProtoDouble, nil
	case tensor.Int32:
		return TensorProtoInt32, nil
	case tensor.Int64:
		return TensorProtoInt64, nil
	case tensor.Uint8:
		return TensorProtoUint8, nil
	case tensor.Bool:
		return TensorProtoBool, nil
	default:
		return TensorProtoUndefined, fmt.Errorf("unsupported data type %s", dt)
	}
}

// DataTypeOf maps an ONNX element type to a tensor.DataType.
func DataTypeOf(elemType int32) (tensor.DataType, error) {
	switch elemType {
	case TensorProtoFloat:
		return tensor.Float32, nil
	case TensorProtoDouble:
		return tensor.Float64, nil
	case TensorProtoInt32:
		return tensor.Int32, nil
	case TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("unsupported ONNX element type %d", elemType)
	}
}

// TensorFromRaw serializes a tensor buffer into a named TensorProto. The
// buffer is copied into raw_data.
func TensorFromRaw(name string, t *tensor.RawTensor) (TensorProto, error) {
	elemType, err := ElemTypeOf(t.DType())
	if err != nil {
		return TensorProto{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	return TensorProto{
		Name:     name,
		DataType: elemType,
		Dims:     t.Shape().Int64s(),
		RawData:  append([]byte(nil), t.Data()...),
	}, nil
}

// ToRaw decodes a TensorProto into a tensor buffer, reading whichever data
// field is populated.
func ToRaw(p *TensorProto) (*tensor.RawTensor, error) {
	dtype, err := DataTypeOf(p.DataType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}
	shape := tensor.ShapeOf(p.Dims)
	t, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}

	n := shape.NumElements()
	buf := t.Data()
	switch {
	case len(p.RawData) > 0:
		if len(p.RawData) != len(buf) {
			return nil, fmt.Errorf("tensor %q: raw_data has %d bytes, want %d", p.Name, len(p.RawData), len(buf))
		}
		copy(buf, p.RawData)
	case len(p.FloatData) > 0 && dtype == tensor.Float32:
		if len(p.FloatData) != n {
			return nil, fmt.Errorf("tensor %q: float_data has %d values, want %d", p.Name, len(p.FloatData), n)
		}
		for i, v := range p.FloatData {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
	case len(p.DoubleData) > 0 && dtype == tensor.Float64:
		if len(p.DoubleData) != n {
			return nil, fmt.Errorf("tensor %q: double_data has %d values, want %d", p.Name, len(p.DoubleData), n)
		}
		for i, v := range p.DoubleData {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
	case len(p.Int64Data) > 0 && dtype == tensor.Int64:
		if len(p.Int64Data) != n {
			return nil, fmt.Errorf("tensor %q: int64_data has %d values, want %d", p.Name, len(p.Int64Data), n)
		}
		for i, v := range p.Int64Data {
			binary.LittleEndian.PutUint64(buf[8*i:], uint64(v)) //nolint:gosec // G115: bit pattern copy.
		}
	case len(p.Int32Data) > 0:
		if len(p.Int32Data) != n {
			return nil, fmt.Errorf("tensor %q: int32_data has %d values, want %d", p.Name, len(p.Int32Data), n)
		}
		for i, v := range p.Int32Data {
			switch dtype {
			case tensor.Int32:
				binary.LittleEndian.PutUint32(buf[4*i:], uint32(v)) //nolint:gosec // G115: bit pattern copy.
			case tensor.Uint8, tensor.Bool:
				buf[i] = byte(v)
			default:
				return nil, fmt.Errorf("tensor %q: int32_data cannot hold %s", p.Name, dtype)
			}
		}
	case n > 0:
		return nil, fmt.Errorf("tensor %q: no data", p.Name)
	}
	return t, nil
}
