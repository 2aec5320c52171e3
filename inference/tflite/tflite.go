// Package tflite - TensorFlow Lite backend for inference.Runtime.
package tflite

import (
	"context"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/inference"
)

// Options configures a TensorFlow Lite interpreter.
type Options struct {
	// ModelPath is the .tflite file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// Threads is the interpreter thread count; 0 keeps the default.
	Threads int `json:"threads" yaml:"threads"`
}

// Runtime is an inference.Runtime backed by a TensorFlow Lite interpreter.
type Runtime struct {
	mu     sync.Mutex
	model  *tflite.Model
	interp *tflite.Interpreter

	inputInfo  inference.TensorInfo
	outputInfo inference.TensorInfo
}

var _ inference.Runtime = (*Runtime)(nil)

// Open loads the model, allocates its tensors, and returns a ready runtime.
// Only float32 input and output tensors are supported.
func Open(opts Options) (*Runtime, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("tflite: model path is required")
	}

	model := tflite.NewModelFromFile(opts.ModelPath)
	if model == nil {
		return nil, errors.Errorf("tflite: cannot load model %s", opts.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if opts.Threads > 0 {
		options.SetNumThread(opts.Threads)
	}

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		model.Delete()
		return nil, errors.New("tflite: cannot create interpreter")
	}
	r := &Runtime{model: model, interp: interp}

	if status := interp.AllocateTensors(); status != tflite.OK {
		r.destroy()
		return nil, errors.Errorf("tflite: tensor allocation failed with status %v", status)
	}

	input := interp.GetInputTensor(0)
	output := interp.GetOutputTensor(0)
	if input == nil || output == nil {
		r.destroy()
		return nil, errors.New("tflite: model has no input or output tensor")
	}
	if input.Type() != tflite.Float32 || output.Type() != tflite.Float32 {
		r.destroy()
		return nil, errors.Wrapf(inference.ErrUnsupportedInput, "tensor types %v -> %v, need float32", input.Type(), output.Type())
	}
	r.inputInfo = inference.TensorInfo{Name: input.Name(), Shape: shape(input)}
	r.outputInfo = inference.TensorInfo{Name: output.Name(), Shape: shape(output)}
	return r, nil
}

// Input implements inference.Runtime.
func (r *Runtime) Input() inference.TensorInfo { return r.inputInfo }

// Output implements inference.Runtime.
func (r *Runtime) Output() inference.TensorInfo { return r.outputInfo }

// Run copies input into the interpreter and invokes it.
func (r *Runtime) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interp == nil {
		return nil, inference.ErrNotReady
	}
	if err := inference.CheckInput(r.inputInfo, input); err != nil {
		return nil, err
	}
	if status := r.interp.GetInputTensor(0).SetFloat32s(input); status != tflite.OK {
		return nil, errors.Errorf("tflite: set input failed with status %v", status)
	}
	if status := r.interp.Invoke(); status != tflite.OK {
		return nil, errors.Errorf("tflite: invoke failed with status %v", status)
	}
	return r.interp.GetOutputTensor(0).Float32s(), nil
}

// Close releases the interpreter and model.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroy()
	return nil
}

func (r *Runtime) destroy() {
	if r.interp != nil {
		r.interp.Delete()
		r.interp = nil
	}
	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}
}

func shape(t *tflite.Tensor) []int {
	dims := make([]int, t.NumDims())
	for i := range dims {
		dims[i] = t.Dim(i)
	}
	return dims
}
