package autodiff

// Kind identifies the type of a recorded function. The set is closed: every
// Function the runtime can record reports one of these values.
type Kind int

// Recorded function kinds.
const (
	KindUnknown Kind = iota
	KindLinear
	KindConvolution2D
	KindReshape
	KindAveragePooling2D
	KindMaxPooling2D
	KindBatchNormalization
	KindReLU
	KindSoftmax
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindNeg
	KindAbsolute
	KindPReLU
	KindSigmoid
	KindTanh
)

var kindNames = map[Kind]string{
	KindLinear:             "LinearFunction",
	KindConvolution2D:      "Convolution2DFunction",
	KindReshape:            "Reshape",
	KindAveragePooling2D:   "AveragePooling2D",
	KindMaxPooling2D:       "MaxPooling2D",
	KindBatchNormalization: "BatchNormalization",
	KindReLU:               "ReLU",
	KindSoftmax:            "Softmax",
	KindAdd:                "Add",
	KindSub:                "Sub",
	KindMul:                "Mul",
	KindDiv:                "Div",
	KindNeg:                "Neg",
	KindAbsolute:           "Absolute",
	KindPReLU:              "PReLUFunction",
	KindSigmoid:            "Sigmoid",
	KindTanh:               "Tanh",
}

// String returns the runtime tag of the kind, e.g. "Convolution2DFunction".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindLinear; k <= KindTanh; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
