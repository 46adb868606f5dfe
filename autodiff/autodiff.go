// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff records define-by-run traces: every operation applied to
// a Variable is appended to its Graph, which can then be differentiated or
// exported.
//
//	g := autodiff.NewGraph(cpu.New())
//	x := g.Input(tensor.Ones(tensor.Shape{2, 3}, tensor.Float32))
package autodiff

import (
	"github.com/born-ml/onnxport/internal/autodiff"
	"github.com/born-ml/onnxport/tensor"
)

type (
	// Graph is a recorded trace.
	Graph = autodiff.Graph
	// Variable is a tensor recorded in a Graph.
	Variable = autodiff.Variable
	// Parameter is a learnable tensor shared across traces.
	Parameter = autodiff.Parameter
	// Function is an operation that can be recorded.
	Function = autodiff.Function
	// Kind identifies the operation a Function performs.
	Kind = autodiff.Kind
	// Mode selects training or inference behaviour.
	Mode = autodiff.Mode
	// GraphOption configures NewGraph.
	GraphOption = autodiff.GraphOption
)

// Execution modes.
const (
	ModeTest  = autodiff.ModeTest
	ModeTrain = autodiff.ModeTrain
)

// NewGraph creates an empty trace running on backend.
func NewGraph(backend tensor.Backend, opts ...GraphOption) *Graph {
	return autodiff.NewGraph(backend, opts...)
}

// WithMode sets the execution mode of a Graph.
func WithMode(m Mode) GraphOption { return autodiff.WithMode(m) }

// NewParameter creates a parameter with the given local key.
func NewParameter(key string, data *tensor.RawTensor) *Parameter {
	return autodiff.NewParameter(key, data)
}
