package onnx

import (
	"fmt"
	"sort"

	"github.com/born-ml/onnxport/internal/onnx/operators"
	"github.com/born-ml/onnxport/internal/tensor"
)

// LoadOptions configures how a model is compiled for execution.
type LoadOptions struct {
	// StrictMode rejects, at load time, graphs containing operators the
	// registry cannot run. Otherwise the failure surfaces when the node runs.
	StrictMode bool

	// Check runs CheckModel before compiling.
	Check bool

	// CustomOps registers extra operator handlers, replacing built-ins of
	// the same name.
	CustomOps map[string]operators.OpHandler
}

// DefaultLoadOptions checks the model and requires every operator to be
// supported.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{StrictMode: true, Check: true}
}

// Load parses an ONNX file and compiles it for backend.
//
//	model, err := onnx.Load("out/model.onnx", cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	y, err := model.Forward(x)
func Load(path string, backend tensor.Backend, opts ...LoadOptions) (*Model, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return LoadFromProto(proto, backend, loadOptions(opts))
}

// LoadFromBytes parses serialized model bytes and compiles them for backend.
func LoadFromBytes(data []byte, backend tensor.Backend, opts ...LoadOptions) (*Model, error) {
	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}
	return LoadFromProto(proto, backend, loadOptions(opts))
}

func loadOptions(opts []LoadOptions) LoadOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return DefaultLoadOptions()
}

// LoadFromProto compiles an already parsed model.
func LoadFromProto(proto *ModelProto, backend tensor.Backend, opt LoadOptions) (*Model, error) {
	registry := operators.NewRegistry()
	for opType, handler := range opt.CustomOps {
		registry.Register(opType, handler)
	}

	if opt.Check {
		if err := CheckModel(proto); err != nil {
			return nil, err
		}
	}
	if opt.StrictMode {
		if err := requireOperators(proto.Graph, registry); err != nil {
			return nil, err
		}
	}

	m := &Model{proto: proto, registry: registry, backend: backend}
	if err := m.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}
	return m, nil
}

// requireOperators lists, sorted and once each, the node types the registry
// cannot run.
func requireOperators(g *GraphProto, registry *operators.Registry) error {
	if g == nil {
		return fmt.Errorf("model has no graph")
	}
	missing := make(map[string]bool)
	for i := range g.Nodes {
		if _, ok := registry.Get(g.Nodes[i].OpType); !ok {
			missing[g.Nodes[i].OpType] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("unsupported operators: %v", names)
}

// ModelInfo summarizes a model without compiling it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	GraphName       string
	InputNames      []string
	OutputNames     []string
	NodeCount       int
	WeightCount     int
	// OpCounts maps each operator type to the number of nodes using it.
	OpCounts map[string]int
}

// InfoOf summarizes a parsed model. Initializers are not counted as inputs.
func InfoOf(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		OpsetVersion:    DefaultDomainOpset(proto),
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
	}
	g := proto.Graph
	if g == nil {
		return info
	}

	info.GraphName = g.Name
	info.NodeCount = len(g.Nodes)
	info.WeightCount = len(g.Initializers)
	weights := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		weights[g.Initializers[i].Name] = true
	}
	for i := range g.Inputs {
		if !weights[g.Inputs[i].Name] {
			info.InputNames = append(info.InputNames, g.Inputs[i].Name)
		}
	}
	for i := range g.Outputs {
		info.OutputNames = append(info.OutputNames, g.Outputs[i].Name)
	}
	info.OpCounts = make(map[string]int)
	for i := range g.Nodes {
		info.OpCounts[g.Nodes[i].OpType]++
	}
	return info
}

// ListSupportedOps returns the operator types the executor can run.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
