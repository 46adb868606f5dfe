// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx exports traced models to ONNX and runs exported models.
//
// # Export
//
// Export runs a model once, walks the recorded trace back from the outputs
// and writes every reachable operation as an ONNX node. Parameters become
// initializers named after their path in the layer tree.
//
//	model := nn.NewSequential(
//	    nn.NewConv2D(3, 16, [2]int{5, 5}, nn.WithPad(2, 2)),
//	    nn.NewReLU(),
//	    nn.NewLinear(16*28*28, 10),
//	)
//	x := tensor.Zeros(tensor.Shape{1, 3, 28, 28}, tensor.Float32)
//	res, err := onnx.Export(onnx.FromModule(model), x, onnx.WithFilename("model.onnx"))
//
// ExportTestcase additionally writes the traced inputs and outputs in the
// ONNX backend test layout, and VerifyTestcase runs such a directory through
// the executor below.
//
// # Execution
//
// Load and LoadFromBytes compile a model for the CPU backend:
//
//	m, err := onnx.Load("model.onnx", cpu.New())
//	y, err := m.Forward(x)
package onnx

import (
	"github.com/born-ml/onnxport/internal/export"
	internalonnx "github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/nn"
	"github.com/born-ml/onnxport/tensor"
)

type (
	// Model is anything whose forward pass can be traced and exported.
	Model = export.Model
	// KeywordModel is a Model that also accepts named arguments.
	KeywordModel = export.KeywordModel
	// Options configures an export.
	Options = export.Options
	// Option configures an export.
	Option = export.Option
	// Result is the outcome of an export.
	Result = export.Result
	// VerifyReport is the outcome of VerifyTestcase.
	VerifyReport = export.VerifyReport

	// UnsupportedOperatorError reports an operation with no ONNX form.
	UnsupportedOperatorError = export.UnsupportedOperatorError
	// InvalidArgumentError reports model arguments of an unsupported form.
	InvalidArgumentError = export.InvalidArgumentError
	// SchemaValidationError reports a node, graph or model rejected by the
	// checker.
	SchemaValidationError = export.SchemaValidationError

	// ModelProto is an in-memory ONNX model.
	ModelProto = internalonnx.ModelProto
	// Executor is a compiled model ready for inference.
	Executor = internalonnx.Model
)

// Errors.
var (
	ErrConfiguration = export.ErrConfiguration
	ErrInvalidModel  = internalonnx.ErrInvalidModel
)

// Versions written into exported models.
const (
	IRVersion    = internalonnx.IRVersion
	DefaultOpset = internalonnx.DefaultOpset
)

// Export traces model on args and converts the trace into an ONNX model.
func Export(model Model, args any, opts ...Option) (*Result, error) {
	return export.Export(model, args, opts...)
}

// ExportTestcase exports model to outDir/model.onnx together with the
// tensors of the traced run.
func ExportTestcase(model Model, args any, outDir string, opts ...Option) (*Result, error) {
	return export.ExportTestcase(model, args, outDir, opts...)
}

// VerifyTestcase runs a local test case directory through the executor and
// compares the outputs.
func VerifyTestcase(dir string, rtol, atol float64, opts ...Option) (*VerifyReport, error) {
	return export.VerifyTestcase(dir, rtol, atol, opts...)
}

// FromModule adapts a single-input layer to Model.
func FromModule(m nn.Module) Model { return export.FromModule(m) }

// Export options.
var (
	WithFilename     = export.WithFilename
	WithExportParams = export.WithExportParams
	WithGraphName    = export.WithGraphName
	WithSaveText     = export.WithSaveText
	WithTrain        = export.WithTrain
	WithOpset        = export.WithOpset
	WithInputNames   = export.WithInputNames
	WithOutputNames  = export.WithOutputNames
	WithOutputGrad   = export.WithOutputGrad
	WithSink         = export.WithSink
	WithBackend      = export.WithBackend
	WithLogger       = export.WithLogger
	WithMetrics      = export.WithMetrics
)

// Marshal encodes a model in the ONNX binary format.
func Marshal(m *ModelProto) ([]byte, error) { return internalonnx.Marshal(m) }

// MarshalText renders a model as readable YAML.
func MarshalText(m *ModelProto) ([]byte, error) { return internalonnx.MarshalText(m) }

// Parse decodes an ONNX binary model.
func Parse(data []byte) (*ModelProto, error) { return internalonnx.Parse(data) }

// ParseFile reads and decodes an ONNX file.
func ParseFile(path string) (*ModelProto, error) { return internalonnx.ParseFile(path) }

// Check validates a model against the operator schemas it imports.
func Check(m *ModelProto) error { return internalonnx.CheckModel(m) }

// Load parses and compiles an ONNX file.
func Load(path string, backend tensor.Backend) (*Executor, error) {
	return internalonnx.Load(path, backend)
}

// LoadFromBytes parses and compiles an ONNX model.
func LoadFromBytes(data []byte, backend tensor.Backend) (*Executor, error) {
	return internalonnx.LoadFromBytes(data, backend)
}
