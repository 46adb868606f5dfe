package onnx

// ONNX protobuf data structures (hand-written).
//
// Field order follows the onnx.proto field numbers. The validate tags are the
// structural rules enforced by the checker.

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64 `validate:"gt=0"`
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto         `validate:"required"`
	OpsetImport     []OperatorSetID     `validate:"min=1,dive"`
	MetadataProps   []StringStringEntry `validate:"dive"`
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Nodes        []NodeProto   `validate:"dive"`
	Name         string        `validate:"required"`
	Initializers []TensorProto `validate:"dive"`
	DocString    string
	Inputs       []ValueInfoProto `validate:"dive"`
	Outputs      []ValueInfoProto `validate:"min=1,dive"`
	ValueInfo    []ValueInfoProto `validate:"dive"`
}

// NodeProto represents a single operation.
type NodeProto struct {
	Inputs     []string
	Outputs    []string `validate:"min=1,dive,required"`
	Name       string
	OpType     string           `validate:"required"`
	Attributes []AttributeProto `validate:"dive"`
	DocString  string
	Domain     string
}

// TensorProto represents a tensor (weights/initializers).
type TensorProto struct {
	Dims       []int64 `validate:"dive,gte=0"`
	DataType   int32   `validate:"gt=0"`
	FloatData  []float32
	Int32Data  []int32
	Int64Data  []int64
	Name       string
	RawData    []byte
	DoubleData []float64
	DocString  string
}

// ValueInfoProto describes input/output tensor specifications.
type ValueInfoProto struct {
	Name      string     `validate:"required"`
	Type      *TypeProto `validate:"required"`
	DocString string
}

// TypeProto describes tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto `validate:"required"`
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32 `validate:"gt=0"`
	Shape    *TensorShapeProto
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto describes a single dimension.
type DimensionProto struct {
	DimValue int64  // Static dimension value (e.g., 224 for image size)
	DimParam string // Dynamic dimension name (e.g., "batch_size")
}

// AttributeProto represents node attributes.
type AttributeProto struct {
	Name      string `validate:"required"`
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	G         *GraphProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	Tensors   []TensorProto
	Graphs    []GraphProto
	DocString string
	Type      int32 `validate:"gte=1,lte=10"`
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string
	Version int64 `validate:"gt=0"`
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key   string `validate:"required"`
	Value string
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1  // FLOAT
	AttributeProtoInt       = 2  // INT
	AttributeProtoString    = 3  // STRING
	AttributeProtoTensor    = 4  // TENSOR
	AttributeProtoGraph     = 5  // GRAPH
	AttributeProtoFloats    = 6  // FLOATS
	AttributeProtoInts      = 7  // INTS
	AttributeProtoStrings   = 8  // STRINGS
	AttributeProtoTensors   = 9  // TENSORS
	AttributeProtoGraphs    = 10 // GRAPHS
)
