package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/onnxport/internal/autodiff"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named
// by their index unless added with AddNamed, and parameter names are
// prefixed with the child name:
//
//	model := nn.NewSequential(nn.NewLinear(784, 128), nn.NewReLU(), nn.NewLinear(128, 10))
//	model.NamedParams() // "/0/W", "/0/b", "/2/W", "/2/b"
type Sequential struct {
	names   []string
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	s := &Sequential{}
	for _, m := range modules {
		s.Add(m)
	}
	return s
}

// Add appends a module named after its index.
func (s *Sequential) Add(module Module) {
	s.AddNamed(strconv.Itoa(len(s.modules)), module)
}

// AddNamed appends a module under an explicit name.
func (s *Sequential) AddNamed(name string, module Module) {
	s.names = append(s.names, name)
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(x *autodiff.Variable) (*autodiff.Variable, error) {
	out := x
	for i, m := range s.modules {
		var err error
		if out, err = m.Forward(out); err != nil {
			return nil, fmt.Errorf("layer %s: %w", s.names[i], err)
		}
	}
	return out, nil
}

// NamedParams returns the parameters of all children, prefixed with the
// child names.
func (s *Sequential) NamedParams() []NamedParam {
	var params []NamedParam
	for i, m := range s.modules {
		params = append(params, Prefix(s.names[i], m.NamedParams())...)
	}
	return params
}

// NamedBuffers returns the buffers of all children that own any.
func (s *Sequential) NamedBuffers() []NamedBuffer {
	var bufs []NamedBuffer
	for i, m := range s.modules {
		if owner, ok := m.(BufferOwner); ok {
			bufs = append(bufs, prefixBuffers(s.names[i], owner.NamedBuffers())...)
		}
	}
	return bufs
}
