package onnx

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Versions stamped on exported models and accepted by the checker.
const (
	// IRVersion is the ONNX IR version written by the exporter.
	IRVersion = 3

	// DefaultOpset is the default-domain opset the exporter targets.
	DefaultOpset = 4

	// MinOpset and MaxOpset bound the opsets whose operator signatures the
	// schema table below describes.
	MinOpset = 1
	MaxOpset = 4
)

// ErrInvalidModel is returned (wrapped) by every checker failure.
var ErrInvalidModel = errors.New("invalid ONNX model")

// validate is a singleton validator instance.
var validate = validator.New()

// opSchema describes one operator signature of the default domain.
type opSchema struct {
	since          int64
	minIn, maxIn   int
	minOut, maxOut int
	attrs          map[string]int32
	required       []string
}

var (
	poolAttrs = map[string]int32{
		"auto_pad":     AttributeProtoString,
		"kernel_shape": AttributeProtoInts,
		"pads":         AttributeProtoInts,
		"strides":      AttributeProtoInts,
	}
	binaryAttrs = map[string]int32{
		"axis":            AttributeProtoInt,
		"broadcast":       AttributeProtoInt,
		"consumed_inputs": AttributeProtoInts,
	}
	unaryAttrs = map[string]int32{
		"consumed_inputs": AttributeProtoInts,
	}
)

// schemas lists the operators that exported graphs may contain, with their
// opset 1-4 signatures.
var schemas = map[string]opSchema{
	"Gemm": {since: 1, minIn: 3, maxIn: 3, minOut: 1, maxOut: 1, attrs: map[string]int32{
		"alpha":     AttributeProtoFloat,
		"beta":      AttributeProtoFloat,
		"broadcast": AttributeProtoInt,
		"transA":    AttributeProtoInt,
		"transB":    AttributeProtoInt,
	}},
	"Conv": {since: 1, minIn: 2, maxIn: 3, minOut: 1, maxOut: 1, attrs: map[string]int32{
		"auto_pad":     AttributeProtoString,
		"dilations":    AttributeProtoInts,
		"group":        AttributeProtoInt,
		"kernel_shape": AttributeProtoInts,
		"pads":         AttributeProtoInts,
		"strides":      AttributeProtoInts,
	}},
	"Reshape": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: map[string]int32{
		"shape":           AttributeProtoInts,
		"consumed_inputs": AttributeProtoInts,
	}, required: []string{"shape"}},
	"AveragePool":       {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: poolAttrs, required: []string{"kernel_shape"}},
	"MaxPool":           {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: poolAttrs, required: []string{"kernel_shape"}},
	"GlobalAveragePool": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1},
	"GlobalMaxPool":     {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1},
	"BatchNormalization": {since: 1, minIn: 5, maxIn: 5, minOut: 1, maxOut: 5, attrs: map[string]int32{
		"consumed_inputs": AttributeProtoInts,
		"epsilon":         AttributeProtoFloat,
		"is_test":         AttributeProtoInt,
		"momentum":        AttributeProtoFloat,
		"spatial":         AttributeProtoInt,
	}, required: []string{"consumed_inputs"}},
	"Relu": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: unaryAttrs},
	"Neg":  {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: unaryAttrs},
	"Abs":  {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: unaryAttrs},
	"Softmax": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: map[string]int32{
		"axis": AttributeProtoInt,
	}},
	"Add":   {since: 1, minIn: 2, maxIn: 2, minOut: 1, maxOut: 1, attrs: binaryAttrs},
	"Sub":   {since: 1, minIn: 2, maxIn: 2, minOut: 1, maxOut: 1, attrs: binaryAttrs},
	"Mul":   {since: 1, minIn: 2, maxIn: 2, minOut: 1, maxOut: 1, attrs: binaryAttrs},
	"Div":   {since: 1, minIn: 2, maxIn: 2, minOut: 1, maxOut: 1, attrs: binaryAttrs},
	"PRelu": {since: 1, minIn: 2, maxIn: 2, minOut: 1, maxOut: 1, attrs: unaryAttrs},
}

// SupportedOpset reports whether the checker can validate the given
// default-domain opset.
func SupportedOpset(v int64) bool {
	return v >= MinOpset && v <= MaxOpset
}

// CheckNode validates a single node against its operator schema.
func CheckNode(n *NodeProto, opset int64) error {
	if err := validate.Struct(n); err != nil {
		return invalid("node %q: %v", n.OpType, formatValidationError(err))
	}
	if n.Domain != "" && n.Domain != "ai.onnx" {
		return invalid("node %s: unknown domain %q", n.OpType, n.Domain)
	}
	s, ok := schemas[n.OpType]
	if !ok {
		return invalid("node %s: no schema for operator", n.OpType)
	}
	if s.since > opset {
		return invalid("node %s: operator requires opset %d, model uses %d", n.OpType, s.since, opset)
	}
	if len(n.Inputs) < s.minIn || len(n.Inputs) > s.maxIn {
		return invalid("node %s: %d inputs, want %d..%d", n.OpType, len(n.Inputs), s.minIn, s.maxIn)
	}
	if len(n.Outputs) < s.minOut || len(n.Outputs) > s.maxOut {
		return invalid("node %s: %d outputs, want %d..%d", n.OpType, len(n.Outputs), s.minOut, s.maxOut)
	}

	seen := make(map[string]bool, len(n.Attributes))
	for i := range n.Attributes {
		a := &n.Attributes[i]
		if seen[a.Name] {
			return invalid("node %s: duplicate attribute %q", n.OpType, a.Name)
		}
		seen[a.Name] = true
		want, ok := s.attrs[a.Name]
		if !ok {
			return invalid("node %s: unrecognized attribute %q", n.OpType, a.Name)
		}
		if a.Type != want {
			return invalid("node %s: attribute %q has type %d, want %d", n.OpType, a.Name, a.Type, want)
		}
	}
	for _, name := range s.required {
		if !seen[name] {
			return invalid("node %s: required attribute %q missing", n.OpType, name)
		}
	}
	return nil
}

// CheckGraph validates every node and the graph's dataflow: names are
// single-assignment and every node input is an initializer, a graph input or
// the output of an earlier node.
func CheckGraph(g *GraphProto, opset int64) error {
	if g == nil {
		return invalid("graph is nil")
	}
	if err := validate.Struct(g); err != nil {
		return invalid("graph %q: %v", g.Name, formatValidationError(err))
	}

	defined := make(map[string]bool)
	for i := range g.Inputs {
		name := g.Inputs[i].Name
		if defined[name] {
			return invalid("graph %q: duplicate input %q", g.Name, name)
		}
		defined[name] = true
	}
	initialized := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		name := g.Initializers[i].Name
		if name == "" {
			return invalid("graph %q: unnamed initializer", g.Name)
		}
		if initialized[name] {
			return invalid("graph %q: duplicate initializer %q", g.Name, name)
		}
		// IR versions before 4 require every initializer to be a graph input.
		if !defined[name] {
			return invalid("graph %q: initializer %q is not a graph input", g.Name, name)
		}
		initialized[name] = true
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := CheckNode(n, opset); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		for _, in := range n.Inputs {
			if in != "" && !defined[in] {
				return invalid("node %d (%s): input %q is not defined before use", i, n.OpType, in)
			}
		}
		for _, out := range n.Outputs {
			if defined[out] {
				return invalid("node %d (%s): output %q is assigned more than once", i, n.OpType, out)
			}
			defined[out] = true
		}
	}

	outputs := make(map[string]bool, len(g.Outputs))
	for i := range g.Outputs {
		name := g.Outputs[i].Name
		if outputs[name] {
			return invalid("graph %q: duplicate output %q", g.Name, name)
		}
		outputs[name] = true
		if !defined[name] {
			return invalid("graph %q: output %q is never produced", g.Name, name)
		}
	}
	return nil
}

// CheckModel validates the model header and its graph.
func CheckModel(m *ModelProto) error {
	if m == nil {
		return invalid("model is nil")
	}
	if err := validate.Struct(m); err != nil {
		return invalid("model: %v", formatValidationError(err))
	}
	if m.IRVersion < IRVersion {
		return invalid("model: IR version %d is older than %d", m.IRVersion, IRVersion)
	}
	opset := DefaultDomainOpset(m)
	if opset == 0 {
		return invalid("model: no opset imported for the default domain")
	}
	if !SupportedOpset(opset) {
		return invalid("model: opset %d outside supported range %d..%d", opset, MinOpset, MaxOpset)
	}
	return CheckGraph(m.Graph, opset)
}

// DefaultDomainOpset returns the imported default-domain opset, or 0.
func DefaultDomainOpset(m *ModelProto) int64 {
	for _, op := range m.OpsetImport {
		if op.Domain == "" || op.Domain == "ai.onnx" {
			return op.Version
		}
	}
	return 0
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, fmt.Sprintf(format, args...))
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	e := validationErrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", e.Namespace())
	case "min":
		return fmt.Errorf("%s: must have at least %s elements", e.Namespace(), e.Param())
	default:
		return fmt.Errorf("%s: validation failed (%s=%s)", e.Namespace(), e.Tag(), e.Param())
	}
}
