package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ChannelOrder defines the ordering of image channels in the input tensor.
type ChannelOrder int

const (
	// ChannelOrderHWC is Height-Width-Channel ordering (TensorFlow Lite).
	ChannelOrderHWC ChannelOrder = iota
	// ChannelOrderCHW is Channel-Height-Width ordering (ONNX).
	ChannelOrderCHW
)

func (o ChannelOrder) String() string {
	if o == ChannelOrderCHW {
		return "CHW"
	}
	return "HWC"
}

// ErrInvalidInput is returned when the preprocessor or destination buffer is
// misconfigured.
var ErrInvalidInput = errors.New("images: invalid model input")

// Preprocessor turns frames into float32 model input.
//
// Each frame is resized to Width x Height with nearest-neighbour sampling,
// ignoring aspect ratio, and every RGB component v becomes (v - Mean) / Std.
type Preprocessor struct {
	// Width is the model input width in pixels.
	Width int `json:"width" yaml:"width"`
	// Height is the model input height in pixels.
	Height int `json:"height" yaml:"height"`
	// Order is the tensor layout.
	Order ChannelOrder `json:"order" yaml:"order"`
	// Mean is subtracted from every 8-bit component.
	Mean float32 `json:"mean" yaml:"mean"`
	// Std divides every component after the mean is subtracted.
	Std float32 `json:"std" yaml:"std"`
}

// NewPreprocessor returns a preprocessor that maps 0..255 onto 0..1.
func NewPreprocessor(width, height int, order ChannelOrder) Preprocessor {
	return Preprocessor{Width: width, Height: height, Order: order, Mean: 0, Std: 255}
}

// Len is the number of floats one preprocessed frame holds.
func (p Preprocessor) Len() int {
	return p.Width * p.Height * 3
}

// Validate checks the input geometry and normalization.
func (p Preprocessor) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Wrapf(ErrInvalidInput, "input size %dx%d", p.Width, p.Height)
	}
	if p.Std == 0 {
		return errors.Wrap(ErrInvalidInput, "zero std")
	}
	return nil
}

// Preprocess allocates and fills a new input buffer.
func (p Preprocessor) Preprocess(img image.Image) ([]float32, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dst := make([]float32, p.Len())
	if err := p.PreprocessInto(img, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// PreprocessInto writes img into dst, which must hold exactly Len() floats.
//
// Arguments:
//   - img: The frame, any size.
//   - dst: The model input buffer, usually owned by the runtime.
//
// Returns:
//   - error: ErrInvalidInput when dst has the wrong length.
func (p Preprocessor) PreprocessInto(img image.Image, dst []float32) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if img == nil {
		return errors.Wrap(ErrInvalidInput, "nil image")
	}
	if len(dst) != p.Len() {
		return errors.Wrapf(ErrInvalidInput, "destination holds %d floats, needs %d", len(dst), p.Len())
	}

	b := img.Bounds()
	if b.Dx() != p.Width || b.Dy() != p.Height {
		img = resize.Resize(uint(p.Width), uint(p.Height), img, resize.NearestNeighbor)
		b = img.Bounds()
	}

	plane := p.Width * p.Height
	i := 0
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rf := (float32(r>>8) - p.Mean) / p.Std
			gf := (float32(g>>8) - p.Mean) / p.Std
			bf := (float32(bl>>8) - p.Mean) / p.Std
			if p.Order == ChannelOrderCHW {
				dst[i] = rf
				dst[plane+i] = gf
				dst[plane*2+i] = bf
			} else {
				dst[i*3] = rf
				dst[i*3+1] = gf
				dst[i*3+2] = bf
			}
			i++
		}
	}
	return nil
}
