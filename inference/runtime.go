// Package inference - Tensor runtimes that execute a detection model.
package inference

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

var (
	// ErrNotReady is returned by Run on a runtime that was closed.
	ErrNotReady = errors.New("inference: runtime is not ready")
	// ErrInputSize is returned by Run when the input length does not match
	// the model's input tensor.
	ErrInputSize = errors.New("inference: input tensor size mismatch")
	// ErrUnsupportedInput is returned for input tensors that are not
	// single-image RGB float32 in NHWC or NCHW layout.
	ErrUnsupportedInput = errors.New("inference: unsupported input tensor")
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	// Name is the tensor name in the model graph.
	Name string `json:"name" yaml:"name"`
	// Shape holds the dimensions, batch first.
	Shape []int `json:"shape" yaml:"shape"`
}

// Len is the number of elements in the tensor, or 0 when any dimension is
// dynamic.
func (t TensorInfo) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

func (t TensorInfo) String() string {
	return fmt.Sprintf("%s%v", t.Name, t.Shape)
}

// Runtime runs a single-input, single-output float32 model.
//
// A Runtime is obtained ready from its package's Open function and stays
// ready until Close. Implementations are not safe for concurrent Run calls.
type Runtime interface {
	// Input describes the model input tensor.
	Input() TensorInfo
	// Output describes the model output tensor.
	Output() TensorInfo
	// Run executes the model on input and returns the output tensor data.
	// The returned slice is owned by the runtime and is only valid until the
	// next Run.
	Run(ctx context.Context, input []float32) ([]float32, error)
	// Close releases the runtime. It is safe to call more than once.
	Close() error
}

// InputGeometry reads the image size and layout from an input tensor shape.
//
// [1, 3, H, W] is CHW and [1, H, W, 3] is HWC.
//
// Arguments:
//   - shape: The input tensor dimensions.
//
// Returns:
//   - width, height: The model input size in pixels.
//   - images.ChannelOrder: The tensor layout.
//   - error: ErrUnsupportedInput for any other shape.
func InputGeometry(shape []int) (int, int, images.ChannelOrder, error) {
	if len(shape) != 4 || shape[0] != 1 {
		return 0, 0, 0, errors.Wrapf(ErrUnsupportedInput, "shape %v", shape)
	}
	switch {
	case shape[1] == 3 && shape[3] != 3:
		return shape[3], shape[2], images.ChannelOrderCHW, nil
	case shape[3] == 3 && shape[1] > 0 && shape[2] > 0:
		return shape[2], shape[1], images.ChannelOrderHWC, nil
	default:
		return 0, 0, 0, errors.Wrapf(ErrUnsupportedInput, "shape %v has no 3-channel axis", shape)
	}
}

// NewPreprocessor returns the preprocessor that feeds rt's input tensor.
func NewPreprocessor(rt Runtime) (images.Preprocessor, error) {
	width, height, order, err := InputGeometry(rt.Input().Shape)
	if err != nil {
		return images.Preprocessor{}, err
	}
	return images.NewPreprocessor(width, height, order), nil
}

// CheckInput validates an input buffer against info.
func CheckInput(info TensorInfo, input []float32) error {
	if len(input) != info.Len() {
		return errors.Wrapf(ErrInputSize, "input holds %d floats, %s needs %d", len(input), info, info.Len())
	}
	return nil
}
