package autodiff

import "github.com/born-ml/onnxport/internal/tensor"

// Variable is a tensor taking part in a traced forward pass.
type Variable struct {
	graph *Graph
	id    VarID
	data  *tensor.RawTensor
}

// ID returns the trace handle.
func (v *Variable) ID() VarID { return v.id }

// Graph returns the owning trace.
func (v *Variable) Graph() *Graph { return v.graph }

// Data returns the tensor value.
func (v *Variable) Data() *tensor.RawTensor { return v.data }

// Shape returns the tensor shape.
func (v *Variable) Shape() tensor.Shape { return v.data.Shape() }

// DType returns the tensor element type.
func (v *Variable) DType() tensor.DataType { return v.data.DType() }

// Node returns the trace record.
func (v *Variable) Node() *VariableNode { return v.graph.vars[v.id] }

// Grad returns the gradient computed by the last Backward call, or nil.
func (v *Variable) Grad() *tensor.RawTensor { return v.graph.grads[v.id] }
