package operators

import (
	"fmt"
	"sort"

	"github.com/born-ml/onnxport/internal/tensor"
)

// OpHandler processes an ONNX node and returns output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Context provides backend and other execution context for operators.
type Context struct {
	Backend tensor.Backend
}

// Registry maps ONNX operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerNNOps()

	return r
}

// Register adds a custom operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs. Kernel panics (shape or
// dtype misuse) are returned as errors.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*tensor.RawTensor) (outs []*tensor.RawTensor, err error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", node.OpType)
	}
	defer func() {
		if rec := recover(); rec != nil {
			outs, err = nil, fmt.Errorf("%s: %v", node.OpType, rec)
		}
	}()
	return handler(ctx, node, inputs)
}

// SupportedOps returns the sorted list of all supported operator types.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// requireInputs checks the input count and that no required input is missing.
func requireInputs(op string, inputs []*tensor.RawTensor, lo, hi int) error {
	if len(inputs) < lo || len(inputs) > hi {
		if lo == hi {
			return fmt.Errorf("%s requires %d inputs, got %d", op, lo, len(inputs))
		}
		return fmt.Errorf("%s requires %d to %d inputs, got %d", op, lo, hi, len(inputs))
	}
	for i := 0; i < lo; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: input %d is missing", op, i)
		}
	}
	return nil
}

func single(t *tensor.RawTensor) []*tensor.RawTensor {
	return []*tensor.RawTensor{t}
}
