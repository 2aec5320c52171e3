// Package yolo11 - decodes the output tensor of anchor-free YOLO detection heads.
//
// The head emits one float32 tensor per frame shaped [1, 4+classes, anchors],
// channel-major: channels 0..3 hold the normalized center-x, center-y, width
// and height of every anchor, and each following channel holds one class
// confidence. Decode turns it into a short list of labeled, de-duplicated
// boxes.
package yolo11

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// geometryChannels is the number of leading box channels (cx, cy, w, h).
const geometryChannels = 4

// ErrInvalidShape reports a tensor shape that is zero, has no class channels,
// or disagrees with the data it describes. It is a configuration error and is
// never returned for a frame that simply has no detections.
var ErrInvalidShape = errors.New("yolo11: invalid output tensor shape")

// Shape is the logical [NumChannel, NumElements] layout of the output tensor.
type Shape struct {
	// NumChannel is 4 geometry channels plus one channel per class.
	NumChannel int `json:"num_channel" yaml:"num_channel"`
	// NumElements is the number of candidate anchors.
	NumElements int `json:"num_elements" yaml:"num_elements"`
}

// ShapeFromDims reads a Shape from a model's declared output dimensions.
//
// Arguments:
//   - dims: [1, channels, anchors] or [channels, anchors].
//
// Returns:
//   - The validated Shape.
//   - error: ErrInvalidShape if dims has another rank or a batch other than 1.
func ShapeFromDims(dims []int) (Shape, error) {
	var s Shape
	switch len(dims) {
	case 3:
		if dims[0] != 1 {
			return Shape{}, errors.Wrapf(ErrInvalidShape, "batch %d, only single-image output is supported", dims[0])
		}
		s = Shape{NumChannel: dims[1], NumElements: dims[2]}
	case 2:
		s = Shape{NumChannel: dims[0], NumElements: dims[1]}
	default:
		return Shape{}, errors.Wrapf(ErrInvalidShape, "rank %d output %v", len(dims), dims)
	}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// NumClasses is the number of class channels.
func (s Shape) NumClasses() int {
	return s.NumChannel - geometryChannels
}

// Len is the number of floats a tensor of this shape holds.
func (s Shape) Len() int {
	return s.NumChannel * s.NumElements
}

// Validate requires at least one anchor, at least one class channel, and a
// total size that fits in an int.
func (s Shape) Validate() error {
	if s.NumElements <= 0 {
		return errors.Wrapf(ErrInvalidShape, "%d elements", s.NumElements)
	}
	if s.NumChannel <= geometryChannels {
		return errors.Wrapf(ErrInvalidShape, "%d channels, need more than %d", s.NumChannel, geometryChannels)
	}
	if s.NumElements > math.MaxInt/s.NumChannel {
		return errors.Wrapf(ErrInvalidShape, "%d x %d overflows", s.NumChannel, s.NumElements)
	}
	return nil
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d, %d]", s.NumChannel, s.NumElements)
}

// Decoder turns output tensors of one fixed Shape into detections.
//
// A Decoder is only obtainable from NewDecoder, so every Decoder holds a
// validated shape and options. It keeps no per-frame state and is safe for
// concurrent use.
type Decoder struct {
	shape  Shape
	labels models.Labels
	opts   Options
}

// NewDecoder builds a Decoder for one model session.
//
// Arguments:
//   - shape: The model's output shape.
//   - labels: Class names indexed by class id. Fewer labels than classes is allowed.
//   - opts: Thresholds, usually DefaultOptions().
//
// Returns:
//   - *Decoder: The ready decoder.
//   - error: ErrInvalidShape or ErrInvalidOptions.
//
// @example
// shape, _ := ShapeFromDims([]int{1, 84, 8400})
// decoder, err := NewDecoder(shape, models.COCOLabels, DefaultOptions())
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// result, err := decoder.Decode(output)
func NewDecoder(shape Shape, labels models.Labels, opts Options) (*Decoder, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{shape: shape, labels: labels, opts: opts}, nil
}

// Shape returns the shape the decoder was built for.
func (d *Decoder) Shape() Shape {
	return d.shape
}

// Options returns the decoder thresholds.
func (d *Decoder) Options() Options {
	return d.opts
}

// Labels returns the class names.
func (d *Decoder) Labels() models.Labels {
	return d.labels
}

// Decode runs candidate extraction and suppression over one frame's output.
//
// Arguments:
//   - output: The flat output tensor, len == Shape().Len().
//
// Returns:
//   - postprocess.Result: The suppressed boxes. Result.Empty() is true when no
//     candidate cleared the filters; that is not an error.
//   - error: ErrInvalidShape when output does not match the decoder's shape.
func (d *Decoder) Decode(output []float32) (postprocess.Result, error) {
	candidates, err := d.Candidates(output)
	if err != nil {
		return postprocess.Result{}, err
	}
	if len(candidates) == 0 {
		return postprocess.Result{}, nil
	}
	return postprocess.Result{
		Boxes:      postprocess.ApplyGreedyNMS(candidates, d.opts.NMS),
		Candidates: len(candidates),
	}, nil
}

// Candidates returns the boxes that clear the confidence and range filters,
// in anchor order and before suppression.
//
// For every anchor the highest class channel wins; on a tie the lowest class
// id wins. The anchor is dropped when that score is not strictly above the
// confidence threshold, or when any derived corner falls outside [0, 1].
// Boxes are dropped, never clamped.
func (d *Decoder) Candidates(output []float32) ([]common.BoundingBox, error) {
	if len(output) != d.shape.Len() {
		return nil, errors.Wrapf(ErrInvalidShape, "tensor holds %d floats, shape %s needs %d",
			len(output), d.shape, d.shape.Len())
	}

	n := d.shape.NumElements
	numChannel := d.shape.NumChannel
	threshold := d.opts.ConfidenceThreshold

	var boxes []common.BoundingBox
	for c := 0; c < n; c++ {
		maxConf := float32(-1)
		maxIdx := -1
		for j, idx := geometryChannels, c+n*geometryChannels; j < numChannel; j, idx = j+1, idx+n {
			if v := output[idx]; v > maxConf {
				maxConf = v
				maxIdx = j - geometryChannels
			}
		}

		if !(maxConf > threshold) {
			continue
		}

		box := common.NewBoundingBox(
			output[c],
			output[c+n],
			output[c+n*2],
			output[c+n*3],
			maxConf,
			maxIdx,
			d.labels.Name(maxIdx, d.opts.UnknownLabel),
		)
		if !box.InUnitRange() {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// WrapOutput views a runtime's flat output as a tensor with the runtime's
// declared dimensions. The data is not copied.
//
// Arguments:
//   - dims: The declared output dims, [1, C, N] or [C, N].
//   - data: The flat output of one run.
//
// Returns:
//   - *tensor.Dense: A float32 tensor backed by data.
//   - error: ErrInvalidShape when dims are invalid or disagree with len(data).
func WrapOutput(dims []int, data []float32) (*tensor.Dense, error) {
	shape, err := ShapeFromDims(dims)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, errors.Wrapf(ErrInvalidShape, "tensor holds %d floats, dims %v need %d",
			len(data), dims, shape.Len())
	}
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(data)), nil
}

// DecodeDense decodes an output held in a gorgonia tensor.
//
// Arguments:
//   - t: A float32 tensor shaped [1, C, N] or [C, N] matching the decoder's shape.
//
// Returns:
//   - The same as Decode.
func (d *Decoder) DecodeDense(t *tensor.Dense) (postprocess.Result, error) {
	if t == nil {
		return postprocess.Result{}, errors.Wrap(ErrInvalidShape, "nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return postprocess.Result{}, errors.Wrapf(ErrInvalidShape, "dtype %v, need float32", t.Dtype())
	}

	shape, err := ShapeFromDims([]int(t.Shape()))
	if err != nil {
		return postprocess.Result{}, err
	}
	if shape != d.shape {
		return postprocess.Result{}, errors.Wrapf(ErrInvalidShape, "tensor shape %s, decoder shape %s", shape, d.shape)
	}

	if t.RequiresIterator() {
		m, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return postprocess.Result{}, errors.Wrap(ErrInvalidShape, "tensor view cannot be materialized")
		}
		t = m
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return postprocess.Result{}, errors.Wrap(ErrInvalidShape, "tensor backing is not []float32")
	}
	return d.Decode(data)
}
