package export

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/born-ml/onnxport/internal/onnx"
	"github.com/born-ml/onnxport/internal/storage"
	"github.com/born-ml/onnxport/internal/tensor"
)

// Layout of an ONNX test case directory.
const (
	ModelFile  = "model.onnx"
	TestDataID = "test_data_set_0"
)

// InputFile returns the path of the i-th input tensor within a test case.
func InputFile(i int) string { return path.Join(TestDataID, fmt.Sprintf("input_%d.pb", i)) }

// OutputFile returns the path of the i-th output tensor within a test case.
func OutputFile(i int) string { return path.Join(TestDataID, fmt.Sprintf("output_%d.pb", i)) }

// GradientFile returns the path of the i-th parameter gradient within a test
// case.
func GradientFile(i int) string { return path.Join(TestDataID, fmt.Sprintf("gradient_%d.pb", i)) }

// ExportTestcase exports model to outDir/model.onnx together with the
// tensors of the traced run:
//
//	outDir/test_data_set_0/input_<i>.pb
//	outDir/test_data_set_0/output_<i>.pb
//	outDir/test_data_set_0/gradient_<i>.pb   (with WithOutputGrad)
//
// Input tensors are named after the graph input overrides or Input_<i>;
// output tensors after the output overrides or left unnamed. Gradients come
// from a backward pass seeded with ones and are named after the parameters.
// outDir may be a local directory or an s3:// URI; with WithSink it is a
// prefix within that sink.
func ExportTestcase(model Model, args any, outDir string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	start := time.Now()

	res, err := exportTestcase(context.Background(), model, args, outDir, &o)
	if o.Metrics != nil {
		o.Metrics.RecordExport("testcase", err, time.Since(start))
	}
	return res, err
}

func exportTestcase(ctx context.Context, model Model, args any, outDir string, o *Options) (*Result, error) {
	res, err := trace(model, args, o)
	if err != nil {
		return nil, err
	}

	files, err := modelFiles(o, res.Model, ModelFile)
	if err != nil {
		return nil, err
	}
	for i, v := range res.Inputs {
		name := fmt.Sprintf("Input_%d", i)
		if len(o.InputNames) > 0 {
			name = o.InputNames[i]
		}
		data, err := encodeTensor(name, v.Data())
		if err != nil {
			return nil, err
		}
		files = append(files, file{name: InputFile(i), data: data})
	}
	for i, v := range res.Outputs {
		name := ""
		if len(o.OutputNames) > 0 {
			name = o.OutputNames[i]
		}
		data, err := encodeTensor(name, v.Data())
		if err != nil {
			return nil, err
		}
		files = append(files, file{name: OutputFile(i), data: data})
	}

	if o.OutputGrad {
		if err := res.Graph.Backward(res.Outputs, nil); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		for i, np := range model.NamedParams() {
			data, err := encodeTensor(np.Name, res.Graph.ParamGrad(np.Param))
			if err != nil {
				return nil, err
			}
			files = append(files, file{name: GradientFile(i), data: data})
		}
	}

	sink, prefix := o.Sink, outDir
	if sink == nil {
		if sink, err = storage.Open(ctx, outDir); err != nil {
			return nil, err
		}
		prefix = ""
	}
	for i := range files {
		files[i].name = path.Join(prefix, files[i].name)
	}
	if err := writeFiles(ctx, o, sink, files); err != nil {
		return nil, err
	}
	o.Logger.Infow("exported test case", "location", sink.Location(prefix), "files", len(files))
	return res, nil
}

func encodeTensor(name string, t *tensor.RawTensor) ([]byte, error) {
	p, err := onnx.TensorFromRaw(name, t)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return onnx.MarshalTensor(&p), nil
}
