// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader reads pretrained SafeTensors weights into a module before
// export.
//
//	w, err := loader.Open("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = loader.Load(w, model.NamedParams(), model.NamedBuffers(), loader.DottedMapper{})
package loader

import (
	"io"

	"github.com/born-ml/onnxport/internal/loader"
	"github.com/born-ml/onnxport/nn"
)

type (
	// Weights is a parsed SafeTensors file.
	Weights = loader.Weights
	// WeightMapper maps parameter names to file keys.
	WeightMapper = loader.WeightMapper
	// IdentityMapper looks parameters up under their own names.
	IdentityMapper = loader.IdentityMapper
	// DottedMapper uses PyTorch-style dotted keys.
	DottedMapper = loader.DottedMapper
	// Report lists what a Load matched.
	Report = loader.Report
	// LoadOptions configure Load.
	LoadOptions = loader.LoadOptions
)

// Errors returned by Load and Weights.Tensor.
var (
	ErrTensorNotFound = loader.ErrTensorNotFound
	ErrMissingWeights = loader.ErrMissingWeights
)

// Open reads and parses a SafeTensors file.
func Open(path string) (*Weights, error) { return loader.Open(path) }

// Parse parses SafeTensors bytes.
func Parse(data []byte) (*Weights, error) { return loader.Parse(data) }

// Load copies weights into params and buffers in place.
func Load(w *Weights, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, opts ...LoadOptions) (*Report, error) {
	return loader.Load(w, params, buffers, mapper, opts...)
}

// Save writes params and buffers in SafeTensors format under mapper's keys.
func Save(out io.Writer, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, metadata map[string]string) error {
	return loader.Save(out, params, buffers, mapper, metadata)
}

// SaveFile writes Save's output to path.
func SaveFile(path string, params []nn.NamedParam, buffers []nn.NamedBuffer, mapper WeightMapper, metadata map[string]string) error {
	return loader.SaveFile(path, params, buffers, mapper, metadata)
}
