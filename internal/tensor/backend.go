package tensor

// Window2D describes a 2D sliding window over the spatial axes of an NCHW
// tensor. Every pair is (height, width).
type Window2D struct {
	Kernel [2]int
	Stride [2]int
	Pad    [2]int
}

// OutputSize returns the spatial output size for an input of height h and width w.
func (w Window2D) OutputSize(h, wd int) (int, int) {
	return (h+2*w.Pad[0]-w.Kernel[0])/w.Stride[0] + 1, (wd+2*w.Pad[1]-w.Kernel[1])/w.Stride[1] + 1
}

// Backend defines the interface that all compute backends must implement.
// Kernels panic on shape or dtype misuse; callers validate user input first.
//
// Implementations:
//   - CPU: pure Go kernels (internal/backend/cpu)
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Element-wise unary operations.
	Neg(x *RawTensor) *RawTensor
	Abs(x *RawTensor) *RawTensor
	Sign(x *RawTensor) *RawTensor
	Scale(x *RawTensor, alpha float64) *RawTensor

	// Activations and their gradients.
	ReLU(x *RawTensor) *RawTensor
	ReLUBackward(x, grad *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	SigmoidBackward(y, grad *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	TanhBackward(y, grad *RawTensor) *RawTensor
	Softmax(x *RawTensor, axis int) *RawTensor
	SoftmaxBackward(y, grad *RawTensor, axis int) *RawTensor
	PReLU(x, slope *RawTensor) *RawTensor
	PReLUBackward(x, slope, grad *RawTensor) (gx, gslope *RawTensor)

	// MatMul multiplies 2D matrices, optionally transposing either operand.
	MatMul(a, b *RawTensor, transA, transB bool) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	SumTo(x *RawTensor, shape Shape) *RawTensor

	// Convolution and pooling over NCHW tensors.
	Conv2D(input, kernel, bias *RawTensor, stride, pad [2]int) *RawTensor
	Conv2DBackward(input, kernel, grad *RawTensor, stride, pad [2]int) (gInput, gKernel *RawTensor)
	MaxPool2D(input *RawTensor, w Window2D) *RawTensor
	MaxPool2DBackward(input, grad *RawTensor, w Window2D) *RawTensor
	AvgPool2D(input *RawTensor, w Window2D, countPad bool) *RawTensor
	AvgPool2DBackward(grad *RawTensor, inputShape Shape, w Window2D, countPad bool) *RawTensor

	// Batch normalization over axis 1.
	ChannelMoments(x *RawTensor) (mean, variance *RawTensor)
	BatchNorm(x, gamma, beta, mean, variance *RawTensor, eps float64) *RawTensor
	BatchNormBackward(x, gamma, mean, variance, grad *RawTensor, eps float64, batchStats bool) (gx, ggamma, gbeta *RawTensor)

	// Metadata
	Name() string
	Device() Device
}
