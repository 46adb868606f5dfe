package onnx

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Text rendering of a model. Initializer payloads are summarized by size;
// everything else is printed as-is.

type textModel struct {
	IRVersion       int64             `yaml:"ir_version"`
	ProducerName    string            `yaml:"producer_name,omitempty"`
	ProducerVersion string            `yaml:"producer_version,omitempty"`
	Domain          string            `yaml:"domain,omitempty"`
	ModelVersion    int64             `yaml:"model_version,omitempty"`
	DocString       string            `yaml:"doc_string,omitempty"`
	OpsetImport     []textOpset       `yaml:"opset_import"`
	Metadata        map[string]string `yaml:"metadata_props,omitempty"`
	Graph           *textGraph        `yaml:"graph,omitempty"`
}

type textOpset struct {
	Domain  string `yaml:"domain"`
	Version int64  `yaml:"version"`
}

type textGraph struct {
	Name         string            `yaml:"name"`
	Nodes        []textNode        `yaml:"node"`
	Initializers []textInitializer `yaml:"initializer,omitempty"`
	Inputs       []string          `yaml:"input"`
	Outputs      []string          `yaml:"output"`
}

type textNode struct {
	OpType     string         `yaml:"op_type"`
	Name       string         `yaml:"name,omitempty"`
	Inputs     []string       `yaml:"input,flow"`
	Outputs    []string       `yaml:"output,flow"`
	Attributes map[string]any `yaml:"attribute,omitempty"`
}

type textInitializer struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Bytes int    `yaml:"bytes"`
}

// MarshalText renders a model as human-readable YAML.
func MarshalText(m *ModelProto) ([]byte, error) {
	out := textModel{
		IRVersion:       m.IRVersion,
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		Domain:          m.Domain,
		ModelVersion:    m.ModelVersion,
		DocString:       m.DocString,
	}
	for _, op := range m.OpsetImport {
		out.OpsetImport = append(out.OpsetImport, textOpset{Domain: op.Domain, Version: op.Version})
	}
	if len(m.MetadataProps) > 0 {
		out.Metadata = make(map[string]string, len(m.MetadataProps))
		for _, kv := range m.MetadataProps {
			out.Metadata[kv.Key] = kv.Value
		}
	}
	if g := m.Graph; g != nil {
		tg := &textGraph{Name: g.Name}
		for i := range g.Nodes {
			tg.Nodes = append(tg.Nodes, textNodeOf(&g.Nodes[i]))
		}
		for i := range g.Initializers {
			init := &g.Initializers[i]
			tg.Initializers = append(tg.Initializers, textInitializer{
				Name:  init.Name,
				Type:  typeString(init.DataType, init.Dims),
				Bytes: len(init.RawData),
			})
		}
		for i := range g.Inputs {
			tg.Inputs = append(tg.Inputs, valueInfoString(&g.Inputs[i]))
		}
		for i := range g.Outputs {
			tg.Outputs = append(tg.Outputs, valueInfoString(&g.Outputs[i]))
		}
		out.Graph = tg
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to render model: %w", err)
	}
	return data, nil
}

func textNodeOf(n *NodeProto) textNode {
	tn := textNode{OpType: n.OpType, Name: n.Name, Inputs: n.Inputs, Outputs: n.Outputs}
	if len(n.Attributes) > 0 {
		tn.Attributes = make(map[string]any, len(n.Attributes))
		for i := range n.Attributes {
			a := &n.Attributes[i]
			tn.Attributes[a.Name] = attrValue(a)
		}
	}
	return tn
}

func attrValue(a *AttributeProto) any {
	switch a.Type {
	case AttributeProtoFloat:
		return a.F
	case AttributeProtoInt:
		return a.I
	case AttributeProtoString:
		return string(a.S)
	case AttributeProtoFloats:
		return a.Floats
	case AttributeProtoInts:
		return a.Ints
	case AttributeProtoStrings:
		s := make([]string, len(a.Strings))
		for i, b := range a.Strings {
			s[i] = string(b)
		}
		return s
	case AttributeProtoTensor:
		if a.T != nil {
			return typeString(a.T.DataType, a.T.Dims)
		}
	}
	return fmt.Sprintf("<attribute type %d>", a.Type)
}

// valueInfoString renders a descriptor as "name: float32[1,3,28,28]".
func valueInfoString(v *ValueInfoProto) string {
	if v.Type == nil || v.Type.TensorType == nil {
		return v.Name
	}
	return v.Name + ": " + typeString(v.Type.TensorType.ElemType, v.Dims())
}

func typeString(elemType int32, dims []int64) string {
	name := fmt.Sprintf("type%d", elemType)
	if dt, err := DataTypeOf(elemType); err == nil {
		name = dt.String()
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprint(d)
	}
	return name + "[" + strings.Join(parts, ",") + "]"
}
