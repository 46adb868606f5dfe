// Package export converts the trace of one forward pass into an ONNX model.
//
// Export runs the model once on a fresh autodiff.Graph, then:
//   - names every parameter after its place in the layer tree
//   - walks the trace backwards from the outputs, consumers before producers
//   - translates each recorded function into ONNX nodes
//   - assembles the graph in producer-before-consumer order and validates it
//
// The result can be written through a storage.Sink as model.onnx, optionally
// with a text rendering and an ONNX test data set (see ExportTestcase).
//
//	model := nn.NewSequential(nn.NewLinear(784, 10), nn.NewReLU())
//	x := tensor.Zeros(tensor.Shape{1, 784}, tensor.Float32)
//	res, err := export.Export(export.FromModule(model), x, export.WithFilename("mlp.onnx"))
package export
