package autodiff

import (
	"fmt"

	"github.com/born-ml/onnxport/internal/tensor"
)

// Backward runs reverse-mode differentiation from outputs, seeding each with
// the matching tensor in seeds (ones when seeds is nil). Gradients of every
// reachable Variable are then available through Grad.
//
// Functions are visited in reverse creation order, which is a reverse
// topological order of a define-by-run trace. Gradients of tensors used more
// than once are accumulated.
func (g *Graph) Backward(outputs []*Variable, seeds []*tensor.RawTensor) (err error) {
	if seeds != nil && len(seeds) != len(outputs) {
		return fmt.Errorf("backward: %d seeds for %d outputs", len(seeds), len(outputs))
	}

	clear(g.grads)
	for i, out := range outputs {
		seed := tensor.OnesLike(out.data)
		if seeds != nil {
			seed = seeds[i]
		}
		if !seed.Shape().Equal(out.Shape()) {
			return fmt.Errorf("backward: seed %d has shape %v, want %v", i, seed.Shape(), out.Shape())
		}
		g.accumulate(out.id, seed)
	}

	ctx := Context{Backend: g.backend, Mode: g.mode}
	for i := len(g.funcs) - 1; i >= 0; i-- {
		node := g.funcs[i]
		outGrads, ok := g.outputGrads(node)
		if !ok {
			continue
		}

		inGrads, err := g.backwardNode(ctx, node, outGrads)
		if err != nil {
			return err
		}
		for j, grad := range inGrads {
			if j < len(node.inputs) && grad != nil {
				g.accumulate(node.inputs[j], grad)
			}
		}
	}
	return nil
}

func (g *Graph) backwardNode(ctx Context, node *FunctionNode, outGrads []*tensor.RawTensor) (grads []*tensor.RawTensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			grads, err = nil, fmt.Errorf("backward %s: %v", node.Kind(), r)
		}
	}()

	grads, err = node.fn.Backward(ctx, node.inData, node.outData, outGrads)
	if err != nil {
		return nil, fmt.Errorf("backward %s: %w", node.Kind(), err)
	}
	return grads, nil
}

// outputGrads collects the gradients of a function's outputs, filling gaps
// with zeros. It reports false when no gradient reaches the function.
func (g *Graph) outputGrads(node *FunctionNode) ([]*tensor.RawTensor, bool) {
	grads := make([]*tensor.RawTensor, len(node.outputs))
	found := false
	for j, id := range node.outputs {
		if grad, ok := g.grads[id]; ok {
			grads[j] = grad
			found = true
		}
	}
	if !found {
		return nil, false
	}
	for j, grad := range grads {
		if grad == nil {
			grads[j] = tensor.ZerosLike(node.outData[j])
		}
	}
	return grads, true
}

func (g *Graph) accumulate(id VarID, grad *tensor.RawTensor) {
	if existing, ok := g.grads[id]; ok {
		g.grads[id] = g.backend.Add(existing, grad)
		return
	}
	g.grads[id] = grad
}

// Grad returns the gradient of a handle after Backward, or nil.
func (g *Graph) Grad(id VarID) *tensor.RawTensor {
	return g.grads[id]
}

// ParamGrad returns the gradient of a bound parameter after Backward. It
// returns zeros for parameters that did not take part in the pass.
func (g *Graph) ParamGrad(p *Parameter) *tensor.RawTensor {
	if v, ok := g.params[p]; ok {
		if grad := g.grads[v.id]; grad != nil {
			return grad
		}
	}
	return tensor.ZerosLike(p.Data)
}
