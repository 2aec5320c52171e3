package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	return img
}

func getJPEGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, getTestImage(), nil))
	return buf.Bytes()
}

func getPNGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, getTestImage()))
	return buf.Bytes()
}

func getWebPBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, getTestImage(), &webp.Options{Lossless: true}))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		data   func(t *testing.T) []byte
		format ImageFormat
	}{
		{"jpeg", getJPEGBytes, FormatJPEG},
		{"png", getPNGBytes, FormatPNG},
		{"webp", getWebPBytes, FormatWebP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data(t)
			assert.Equal(t, tt.format, DetectFormat(data))

			img, format, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 100, img.Bounds().Dx())
			assert.Equal(t, 60, img.Bounds().Dy())

			meta, err := NewImage(data)
			require.NoError(t, err)
			assert.Equal(t, Image{Format: tt.format, Data: data, Width: 100, Height: 60}, *meta)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, format, err := Decode([]byte("not an image"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, FormatUnknown, format)

	_, _, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	truncated := getPNGBytes(t)[:20]
	_, format, err = Decode(truncated)
	assert.Error(t, err)
	assert.Equal(t, FormatPNG, format)
}
