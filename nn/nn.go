// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers whose forward passes are traced and
// exported to ONNX.
//
//	model := nn.NewSequential(
//	    nn.NewConv2D(3, 16, [2]int{5, 5}, nn.WithPad(2, 2)),
//	    nn.NewReLU(),
//	    nn.NewLinear(16*28*28, 10),
//	)
//
// Parameters are named by their path in the layer tree, "/0/W" for the
// weight of the first layer above. Those names become the ONNX initializer
// names.
package nn

import (
	"github.com/born-ml/onnxport/internal/nn"
	"github.com/born-ml/onnxport/tensor"
)

type (
	// Module is the interface implemented by every layer.
	Module = nn.Module
	// BufferOwner is implemented by layers with non-learned state.
	BufferOwner = nn.BufferOwner
	// NamedParam pairs a parameter with its hierarchical name.
	NamedParam = nn.NamedParam
	// NamedBuffer pairs a state tensor with its hierarchical name.
	NamedBuffer = nn.NamedBuffer
	// Option configures a layer constructor.
	Option = nn.Option

	Linear      = nn.Linear
	Conv2D      = nn.Conv2D
	BatchNorm2D = nn.BatchNorm2D
	PReLU       = nn.PReLU
	ReLU        = nn.ReLU
	Sigmoid     = nn.Sigmoid
	Tanh        = nn.Tanh
	Softmax     = nn.Softmax
	MaxPool2D   = nn.MaxPool2D
	AvgPool2D   = nn.AvgPool2D
	Reshape     = nn.Reshape
	Flatten     = nn.Flatten
	Sequential  = nn.Sequential
)

// NewLinear creates a fully connected layer computing x @ W^T + b.
func NewLinear(in, out int, opts ...Option) *Linear { return nn.NewLinear(in, out, opts...) }

// NewConv2D creates a 2-D convolution over NCHW input.
func NewConv2D(in, out int, kernel [2]int, opts ...Option) *Conv2D {
	return nn.NewConv2D(in, out, kernel, opts...)
}

// NewBatchNorm2D creates a per-channel batch normalization.
func NewBatchNorm2D(size int, opts ...Option) *BatchNorm2D { return nn.NewBatchNorm2D(size, opts...) }

// NewPReLU creates a parametric ReLU with a slope of the given shape; nil
// means a single shared slope.
func NewPReLU(shape tensor.Shape, opts ...Option) *PReLU { return nn.NewPReLU(shape, opts...) }

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return nn.NewReLU() }

// NewSigmoid creates a sigmoid activation.
func NewSigmoid() *Sigmoid { return nn.NewSigmoid() }

// NewTanh creates a tanh activation.
func NewTanh() *Tanh { return nn.NewTanh() }

// NewSoftmax creates a softmax over axis.
func NewSoftmax(axis int) *Softmax { return nn.NewSoftmax(axis) }

// NewMaxPool2D creates a max pooling layer; the stride defaults to the
// kernel.
func NewMaxPool2D(kernel [2]int, opts ...Option) *MaxPool2D { return nn.NewMaxPool2D(kernel, opts...) }

// NewAvgPool2D creates an average pooling layer; the stride defaults to the
// kernel.
func NewAvgPool2D(kernel [2]int, opts ...Option) *AvgPool2D { return nn.NewAvgPool2D(kernel, opts...) }

// NewReshape creates a layer reshaping its input to shape.
func NewReshape(shape ...int) *Reshape { return nn.NewReshape(shape...) }

// NewFlatten creates a layer collapsing all but the batch dimension.
func NewFlatten() *Flatten { return nn.NewFlatten() }

// NewSequential chains modules, naming the i-th child "/<i>".
func NewSequential(modules ...Module) *Sequential { return nn.NewSequential(modules...) }

// Layer options.
var (
	WithRand    = nn.WithRand
	WithDType   = nn.WithDType
	WithoutBias = nn.WithoutBias
	WithStride  = nn.WithStride
	WithPad     = nn.WithPad
)
