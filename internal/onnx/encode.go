package onnx

import (
	"errors"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes a model in the ONNX protobuf wire format.
func Marshal(m *ModelProto) ([]byte, error) {
	if m == nil {
		return nil, errors.New("onnx: nil model")
	}
	var e encoder
	e.model(m)
	return e.buf, nil
}

// MarshalTensor encodes a single TensorProto, the format of the .pb files of
// an ONNX test data set.
func MarshalTensor(t *TensorProto) []byte {
	var e encoder
	e.tensor(t)
	return e.buf
}

// encoder appends protobuf fields to buf. Scalar fields are written only
// when set, except where the zero value is meaningful (attribute values).
type encoder struct {
	buf []byte
}

func (e *encoder) varint(num protowire.Number, v int64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(v)) //nolint:gosec // G115: two's complement encoding of int64.
}

func (e *encoder) optVarint(num protowire.Number, v int64) {
	if v != 0 {
		e.varint(num, v)
	}
}

func (e *encoder) bytes(num protowire.Number, b []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

func (e *encoder) str(num protowire.Number, s string) {
	if s != "" {
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendString(e.buf, s)
	}
}

func (e *encoder) float32(num protowire.Number, v float32) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed32Type)
	e.buf = protowire.AppendFixed32(e.buf, math.Float32bits(v))
}

// message writes a length-delimited submessage produced by fn.
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var sub encoder
	fn(&sub)
	e.bytes(num, sub.buf)
}

func (e *encoder) model(m *ModelProto) {
	e.optVarint(1, m.IRVersion)
	e.str(2, m.ProducerName)
	e.str(3, m.ProducerVersion)
	e.str(4, m.Domain)
	e.optVarint(5, m.ModelVersion)
	e.str(6, m.DocString)
	if m.Graph != nil {
		e.message(7, func(s *encoder) { s.graph(m.Graph) })
	}
	for _, op := range m.OpsetImport {
		e.message(8, func(s *encoder) {
			s.str(1, op.Domain)
			s.varint(2, op.Version)
		})
	}
	for _, kv := range m.MetadataProps {
		e.message(14, func(s *encoder) {
			s.str(1, kv.Key)
			s.str(2, kv.Value)
		})
	}
}

func (e *encoder) graph(g *GraphProto) {
	for i := range g.Nodes {
		e.message(1, func(s *encoder) { s.node(&g.Nodes[i]) })
	}
	e.str(2, g.Name)
	for i := range g.Initializers {
		e.message(5, func(s *encoder) { s.tensor(&g.Initializers[i]) })
	}
	e.str(10, g.DocString)
	for i := range g.Inputs {
		e.message(11, func(s *encoder) { s.valueInfo(&g.Inputs[i]) })
	}
	for i := range g.Outputs {
		e.message(12, func(s *encoder) { s.valueInfo(&g.Outputs[i]) })
	}
	for i := range g.ValueInfo {
		e.message(13, func(s *encoder) { s.valueInfo(&g.ValueInfo[i]) })
	}
}

func (e *encoder) node(n *NodeProto) {
	// Repeated strings keep empty entries: "" marks an omitted optional input.
	for _, in := range n.Inputs {
		e.bytes(1, []byte(in))
	}
	for _, out := range n.Outputs {
		e.bytes(2, []byte(out))
	}
	e.str(3, n.Name)
	e.str(4, n.OpType)
	for i := range n.Attributes {
		e.message(5, func(s *encoder) { s.attribute(&n.Attributes[i]) })
	}
	e.str(6, n.DocString)
	e.str(7, n.Domain)
}

func (e *encoder) attribute(a *AttributeProto) {
	e.str(1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		e.float32(2, a.F)
	case AttributeProtoInt:
		e.varint(3, a.I)
	case AttributeProtoString:
		e.bytes(4, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			e.message(5, func(s *encoder) { s.tensor(a.T) })
		}
	case AttributeProtoGraph:
		if a.G != nil {
			e.message(6, func(s *encoder) { s.graph(a.G) })
		}
	case AttributeProtoFloats:
		for _, f := range a.Floats {
			e.float32(7, f)
		}
	case AttributeProtoInts:
		for _, i := range a.Ints {
			e.varint(8, i)
		}
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			e.bytes(9, s)
		}
	case AttributeProtoTensors:
		for i := range a.Tensors {
			e.message(10, func(s *encoder) { s.tensor(&a.Tensors[i]) })
		}
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			e.message(11, func(s *encoder) { s.graph(&a.Graphs[i]) })
		}
	}
	e.str(13, a.DocString)
	e.varint(20, int64(a.Type))
}

func (e *encoder) tensor(t *TensorProto) {
	for _, d := range t.Dims {
		e.varint(1, d)
	}
	e.optVarint(2, int64(t.DataType))
	if len(t.FloatData) > 0 {
		packed := make([]byte, 0, 4*len(t.FloatData))
		for _, f := range t.FloatData {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		e.bytes(4, packed)
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(int64(v))) //nolint:gosec // G115: sign-extended like protoc.
		}
		e.bytes(5, packed)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement encoding of int64.
		}
		e.bytes(7, packed)
	}
	e.str(8, t.Name)
	if len(t.RawData) > 0 {
		e.bytes(9, t.RawData)
	}
	if len(t.DoubleData) > 0 {
		packed := make([]byte, 0, 8*len(t.DoubleData))
		for _, f := range t.DoubleData {
			packed = protowire.AppendFixed64(packed, math.Float64bits(f))
		}
		e.bytes(10, packed)
	}
	e.str(12, t.DocString)
}

func (e *encoder) valueInfo(v *ValueInfoProto) {
	e.str(1, v.Name)
	if v.Type != nil && v.Type.TensorType != nil {
		tt := v.Type.TensorType
		e.message(2, func(typ *encoder) {
			typ.message(1, func(s *encoder) {
				s.optVarint(1, int64(tt.ElemType))
				if tt.Shape != nil {
					s.message(2, func(shape *encoder) {
						for _, d := range tt.Shape.Dims {
							shape.message(1, func(dim *encoder) {
								if d.DimParam != "" {
									dim.str(2, d.DimParam)
								} else {
									dim.varint(1, d.DimValue)
								}
							})
						}
					})
				}
			})
		})
	}
	e.str(3, v.DocString)
}
