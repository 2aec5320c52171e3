package images

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadrants is a 2x2 image with one distinct color per pixel.
func quadrants() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 51, G: 102, B: 204, A: 255})
	return img
}

func TestPreprocessLayouts(t *testing.T) {
	tests := []struct {
		name     string
		order    ChannelOrder
		expected []float32
	}{
		{
			name:  "hwc",
			order: ChannelOrderHWC,
			expected: []float32{
				1, 0, 0, 0, 1, 0,
				0, 0, 1, 0.2, 0.4, 0.8,
			},
		},
		{
			name:  "chw",
			order: ChannelOrderCHW,
			expected: []float32{
				1, 0, 0, 0.2,
				0, 1, 0, 0.4,
				0, 0, 1, 0.8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor(2, 2, tt.order)
			data, err := p.Preprocess(quadrants())
			require.NoError(t, err)
			require.Len(t, data, 12)
			assert.InDeltaSlice(t, tt.expected, data, 1e-6)
		})
	}
}

func TestPreprocessResizes(t *testing.T) {
	p := NewPreprocessor(4, 4, ChannelOrderCHW)
	data, err := p.Preprocess(quadrants())
	require.NoError(t, err)
	require.Len(t, data, p.Len())

	// Nearest-neighbour upscaling keeps the top-left pixel pure red.
	assert.InDelta(t, 1, data[0], 1e-6)
	assert.InDelta(t, 0, data[16], 1e-6)
	assert.InDelta(t, 0, data[32], 1e-6)

	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessHonoursBoundsOrigin(t *testing.T) {
	sub := image.NewRGBA(image.Rect(10, 10, 12, 12))
	src := quadrants()
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			sub.Set(10+x, 10+y, src.At(x, y))
		}
	}

	p := NewPreprocessor(2, 2, ChannelOrderHWC)
	a, err := p.Preprocess(src)
	require.NoError(t, err)
	b, err := p.Preprocess(sub)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPreprocessErrors(t *testing.T) {
	p := NewPreprocessor(2, 2, ChannelOrderHWC)

	err := p.PreprocessInto(quadrants(), make([]float32, 5))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = p.PreprocessInto(nil, make([]float32, 12))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = NewPreprocessor(0, 2, ChannelOrderHWC).Preprocess(quadrants())
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = Preprocessor{Width: 2, Height: 2}.Preprocess(quadrants())
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestChannelOrderString(t *testing.T) {
	assert.Equal(t, "CHW", ChannelOrderCHW.String())
	assert.Equal(t, "HWC", ChannelOrderHWC.String())
}
