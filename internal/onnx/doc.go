// Package onnx holds the ONNX records written by the exporter and the tools
// that work on them:
//
//   - proto.go: ModelProto, GraphProto, NodeProto and friends, field for
//     field with onnx.proto.
//   - encode.go, parser.go: wire encoding on
//     google.golang.org/protobuf/encoding/protowire, no generated code.
//   - text.go: a YAML rendering for humans.
//   - checker.go: structural and per-operator validation for opsets 1 to 4.
//   - model.go, loader.go: an executor that runs exported graphs on a
//     tensor.Backend so exports can be compared against the runtime.
//
// Building and checking a node:
//
//	node := onnx.MakeNode("Relu", []string{"x"}, []string{"y"})
//	if err := onnx.CheckNode(&node, onnx.DefaultOpset); err != nil {
//	    log.Fatal(err)
//	}
package onnx
