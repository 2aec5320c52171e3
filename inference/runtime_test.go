package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
)

func TestInputGeometry(t *testing.T) {
	tests := []struct {
		name          string
		shape         []int
		width, height int
		order         images.ChannelOrder
		wantErr       bool
	}{
		{"nchw", []int{1, 3, 480, 640}, 640, 480, images.ChannelOrderCHW, false},
		{"nhwc square", []int{1, 320, 320, 3}, 320, 320, images.ChannelOrderHWC, false},
		{"nhwc landscape", []int{1, 480, 640, 3}, 640, 480, images.ChannelOrderHWC, false},
		{"nhwc portrait", []int{1, 640, 480, 3}, 480, 640, images.ChannelOrderHWC, false},
		{"batch of two", []int{2, 3, 640, 640}, 0, 0, 0, true},
		{"grayscale", []int{1, 1, 640, 640}, 0, 0, 0, true},
		{"rank three", []int{3, 640, 640}, 0, 0, 0, true},
		{"dynamic", []int{1, -1, -1, 3}, 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, order, err := InputGeometry(tt.shape)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnsupportedInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
			assert.Equal(t, tt.order, order)
		})
	}
}

func TestTensorInfo(t *testing.T) {
	info := TensorInfo{Name: "output0", Shape: []int{1, 84, 8400}}
	assert.Equal(t, 84*8400, info.Len())
	assert.Equal(t, "output0[1 84 8400]", info.String())
	assert.Equal(t, 0, TensorInfo{}.Len())

	assert.NoError(t, CheckInput(info, make([]float32, info.Len())))
	assert.True(t, errors.Is(CheckInput(info, make([]float32, 3)), ErrInputSize))
}

func TestNewPreprocessor(t *testing.T) {
	rt := NewMockRuntime([]int{1, 3, 32, 64}, []int{1, 6, 10}, nil)
	p, err := NewPreprocessor(rt)
	require.NoError(t, err)
	assert.Equal(t, images.NewPreprocessor(64, 32, images.ChannelOrderCHW), p)
}

func TestNewPreprocessorNonSquareHWC(t *testing.T) {
	rt := NewMockRuntime([]int{1, 2, 4, 3}, []int{1, 6, 10}, nil)
	p, err := NewPreprocessor(rt)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Width)
	assert.Equal(t, 2, p.Height)

	frame := image.NewRGBA(image.Rect(0, 0, 4, 2))
	frame.SetRGBA(3, 0, color.RGBA{R: 255, A: 255})
	input := make([]float32, rt.Input().Len())
	require.NoError(t, p.PreprocessInto(frame, input))

	// row 0, column 3, red channel
	assert.Equal(t, float32(1), input[(0*4+3)*3])
	assert.Equal(t, float32(0), input[(1*4+1)*3])
}

func TestMockRuntime(t *testing.T) {
	output := []float32{1, 2, 3, 4, 5, 6}
	rt := NewMockRuntime([]int{1, 2, 2, 3}, []int{1, 6, 1}, output)
	input := make([]float32, 12)

	got, err := rt.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, output, got)
	assert.EqualValues(t, 1, rt.Runs())

	_, err = rt.Run(context.Background(), input[:5])
	assert.True(t, errors.Is(err, ErrInputSize))

	boom := errors.New("boom")
	rt.SetError(boom)
	_, err = rt.Run(context.Background(), input)
	assert.Equal(t, boom, err)

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	_, err = rt.Run(context.Background(), input)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestMockRuntimeGateHonoursContext(t *testing.T) {
	rt := NewMockRuntime([]int{1, 1, 1, 3}, []int{1, 5, 1}, nil)
	rt.Gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.Run(ctx, make([]float32, 3))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewMockFrame(t *testing.T) {
	frame := NewMockFrame(4, 2)
	assert.Equal(t, 4, frame.Bounds().Dx())
	assert.Equal(t, uint8(128), frame.RGBAAt(3, 1).G)
}
