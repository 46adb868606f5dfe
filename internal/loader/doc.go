// Package loader reads pretrained weights from SafeTensors files into the
// parameters and buffers of an nn.Module before export.
//
// Example:
//
//	w, err := loader.Open("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := loader.Load(w, model.NamedParams(), model.NamedBuffers(), loader.DottedMapper{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Loaded)
//
// Tensors are matched by name through a WeightMapper, checked for dtype and
// shape, and copied into the existing buffers, so the module can be exported
// without being rebuilt. Save writes a module back out in the same format
// under the same keys.
package loader
