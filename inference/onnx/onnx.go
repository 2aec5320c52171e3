// Package onnx - ONNX Runtime backend for inference.Runtime.
package onnx

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
)

// Options configures an ONNX session.
type Options struct {
	// ModelPath is the .onnx file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath is the onnxruntime shared library. Empty uses DefaultLibraryPath().
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName selects the input tensor. Empty uses the model's first input.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputName selects the output tensor. Empty uses the model's first output.
	OutputName string `json:"output_name" yaml:"output_name"`
	// IntraOpThreads parallelizes within graph nodes; 0 keeps the default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes across graph nodes; 0 keeps the default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Optimization is the graph optimization level; empty means extended.
	Optimization OptimizationLevel `json:"optimization" yaml:"optimization"`
	// ExecutionMode is sequential or parallel; empty means parallel.
	ExecutionMode ExecutionMode `json:"execution_mode" yaml:"execution_mode"`
	// Providers are accelerators to attach in order. CPU always runs the rest.
	Providers []Provider `json:"providers" yaml:"providers"`
	// DeviceID selects the GPU for CUDA.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// Warmup is the number of runs on a zero input before Open returns.
	Warmup int `json:"warmup" yaml:"warmup"`
	// Logger defaults to logger.Named("onnx").
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultLibraryPath returns the conventional onnxruntime location for the
// current platform.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

var envMu sync.Mutex

// initEnvironment loads the shared library once per process.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// Runtime is an inference.Runtime backed by an onnxruntime session.
type Runtime struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	inputInfo  inference.TensorInfo
	outputInfo inference.TensorInfo
}

var _ inference.Runtime = (*Runtime)(nil)

// Open loads a model and returns a ready runtime.
//
// Arguments:
//   - opts: The session options. ModelPath is required.
//
// Returns:
//   - *Runtime: The runtime, ready for Run.
//   - error: An error if the library, model, or tensors cannot be set up.
func Open(opts Options) (*Runtime, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	plan, err := opts.plan()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("onnx")
	}
	libPath := opts.LibraryPath
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model %s", opts.ModelPath)
	}
	inInfo, err := pick(inputs, opts.InputName, "input")
	if err != nil {
		return nil, err
	}
	outInfo, err := pick(outputs, opts.OutputName, "output")
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		inputInfo:  inference.TensorInfo{Name: inInfo.Name, Shape: dims(inInfo.Dimensions)},
		outputInfo: inference.TensorInfo{Name: outInfo.Name, Shape: dims(outInfo.Dimensions)},
	}
	for _, info := range []inference.TensorInfo{r.inputInfo, r.outputInfo} {
		if info.Len() <= 0 {
			return nil, errors.Wrapf(inference.ErrUnsupportedInput, "tensor %s has dynamic dimensions", info)
		}
	}

	r.input, err = ort.NewEmptyTensor[float32](ort.NewShape(int64s(r.inputInfo.Shape)...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	r.output, err = ort.NewEmptyTensor[float32](ort.NewShape(int64s(r.outputInfo.Shape)...))
	if err != nil {
		r.destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, attached, err := sessionOptions(plan, log)
	if err != nil {
		r.destroy()
		return nil, err
	}
	defer options.Destroy()

	r.session, err = ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{r.inputInfo.Name},
		[]string{r.outputInfo.Name},
		[]ort.Value{r.input},
		[]ort.Value{r.output},
		options,
	)
	if err != nil {
		r.destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	if err := r.warmup(opts.Warmup); err != nil {
		r.destroy()
		return nil, err
	}

	log.Info("onnx session ready",
		zap.String("model", opts.ModelPath),
		zap.Stringer("input", r.inputInfo),
		zap.Stringer("output", r.outputInfo),
		zap.Any("providers", attached),
		zap.Int("warmup", opts.Warmup),
	)
	return r, nil
}

// warmup runs the session n times on a zeroed input.
func (r *Runtime) warmup(n int) error {
	clear(r.input.GetData())
	for i := 0; i < n; i++ {
		if err := r.session.Run(); err != nil {
			return errors.Wrapf(err, "warmup run %d failed", i+1)
		}
	}
	return nil
}

// Input implements inference.Runtime.
func (r *Runtime) Input() inference.TensorInfo { return r.inputInfo }

// Output implements inference.Runtime.
func (r *Runtime) Output() inference.TensorInfo { return r.outputInfo }

// Run copies input into the session's input tensor and runs the model.
func (r *Runtime) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, inference.ErrNotReady
	}
	if err := inference.CheckInput(r.inputInfo, input); err != nil {
		return nil, err
	}
	copy(r.input.GetData(), input)
	if err := r.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}
	return r.output.GetData(), nil
}

// Close releases the session and its tensors.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroy()
	return nil
}

func (r *Runtime) destroy() {
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	if r.input != nil {
		r.input.Destroy()
		r.input = nil
	}
	if r.output != nil {
		r.output.Destroy()
		r.output = nil
	}
}

func pick(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.Errorf("onnx: model has no %s", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Errorf("onnx: model has no %s named %q", kind, name)
}

// dims converts ORT dimensions, pinning a dynamic batch to 1.
func dims(shape ort.Shape) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	if len(out) > 0 && out[0] < 0 {
		out[0] = 1
	}
	return out
}

func int64s(shape []int) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		out[i] = int64(d)
	}
	return out
}
