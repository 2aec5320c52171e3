package inference

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// MockRuntime is an in-memory Runtime that returns a fixed output tensor.
//
// It lets the detection pipeline run without a model file or a native
// runtime library.
//
// @example
// rt := NewMockRuntime([]int{1, 320, 320, 3}, []int{1, 84, 2100}, output)
// defer rt.Close()
type MockRuntime struct {
	input  TensorInfo
	output TensorInfo

	mu     sync.Mutex
	data   []float32
	err    error
	closed bool

	// Gate, when set, blocks every Run until a value is received or the
	// context is done.
	Gate chan struct{}
	// Started receives one value when a Run begins, if set.
	Started chan struct{}

	runs atomic.Int64
}

// NewMockRuntime creates a ready mock.
//
// Arguments:
//   - inputShape: The reported input shape.
//   - outputShape: The reported output shape.
//   - output: The tensor every Run returns; nil means all zeros.
//
// Returns:
//   - *MockRuntime: The mock runtime.
func NewMockRuntime(inputShape, outputShape []int, output []float32) *MockRuntime {
	m := &MockRuntime{
		input:  TensorInfo{Name: "images", Shape: inputShape},
		output: TensorInfo{Name: "output0", Shape: outputShape},
	}
	m.SetOutput(output)
	return m
}

// SetOutput replaces the tensor returned by Run.
func (m *MockRuntime) SetOutput(output []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if output == nil {
		output = make([]float32, m.output.Len())
	}
	m.data = output
}

// SetError makes every following Run fail with err.
func (m *MockRuntime) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Runs is the number of Run calls that reached the model.
func (m *MockRuntime) Runs() int64 {
	return m.runs.Load()
}

// Input implements Runtime.
func (m *MockRuntime) Input() TensorInfo { return m.input }

// Output implements Runtime.
func (m *MockRuntime) Output() TensorInfo { return m.output }

// Run implements Runtime.
func (m *MockRuntime) Run(ctx context.Context, input []float32) ([]float32, error) {
	m.mu.Lock()
	closed, err, data := m.closed, m.err, m.data
	m.mu.Unlock()

	if closed {
		return nil, ErrNotReady
	}
	if err := CheckInput(m.input, input); err != nil {
		return nil, err
	}

	m.runs.Add(1)
	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close implements Runtime.
func (m *MockRuntime) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// NewMockFrame creates a solid mid-gray RGBA frame.
func NewMockFrame(width, height int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			frame.SetRGBA(x, y, gray)
		}
	}
	return frame
}
