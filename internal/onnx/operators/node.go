// Package operators provides the ONNX operator implementations used to
// execute exported graphs.
package operators

import "fmt"

// Node represents an ONNX operation node.
// This is a local copy of the relevant fields from onnx.NodeProto
// to avoid import cycles between onnx and operators packages.
type Node struct {
	Name       string      // Node name (optional)
	OpType     string      // Operation type (e.g., "Conv", "Gemm", "Relu")
	Inputs     []string    // Input tensor names
	Outputs    []string    // Output tensor names
	Attributes []Attribute // Operation attributes
	Domain     string      // Custom domain (empty for default)
}

// Attribute represents a node attribute.
type Attribute struct {
	Name    string    // Attribute name
	Type    int32     // Attribute type
	F       float32   // FLOAT value
	I       int64     // INT value
	S       []byte    // STRING value
	Floats  []float32 // FLOATS array
	Ints    []int64   // INTS array
	Strings [][]byte  // STRINGS array
}

func (n *Node) attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a := node.attr(name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a := node.attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a := node.attr(name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	if a := node.attr(name); a != nil {
		return string(a.S)
	}
	return defaultVal
}

// attrPair reads a 2-element INTS attribute such as strides, or def when absent.
func attrPair(node *Node, name string, def [2]int) ([2]int, error) {
	v := GetAttrInts(node, name)
	if v == nil {
		return def, nil
	}
	if len(v) != 2 {
		return def, fmt.Errorf("%s: want 2 values, got %v", name, v)
	}
	return [2]int{int(v[0]), int(v[1])}, nil
}

// attrPads reads 2D pads [h_begin, w_begin, h_end, w_end]; only symmetric
// padding is supported by the kernels.
func attrPads(node *Node) ([2]int, error) {
	v := GetAttrInts(node, "pads")
	switch len(v) {
	case 0:
		return [2]int{}, nil
	case 4:
		if v[0] != v[2] || v[1] != v[3] {
			return [2]int{}, fmt.Errorf("asymmetric pads %v not supported", v)
		}
		return [2]int{int(v[0]), int(v[1])}, nil
	default:
		return [2]int{}, fmt.Errorf("pads: want 4 values, got %v", v)
	}
}
