package yolo11

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// DefaultConfidenceThreshold is the class confidence a candidate must exceed.
const DefaultConfidenceThreshold float32 = 0.7

// ErrInvalidOptions is returned by NewDecoder for out-of-range thresholds.
var ErrInvalidOptions = errors.New("yolo11: invalid decoder options")

// Options tunes the decoder.
type Options struct {
	// ConfidenceThreshold is exclusive: a candidate whose best class score
	// equals it is rejected. Must be in [0, 1).
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMS configures suppression. IoUThreshold must be in (0, 1].
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// UnknownLabel names class ids that have no label.
	UnknownLabel string `json:"unknown_label" yaml:"unknown_label"`
}

// DefaultOptions returns the thresholds the detector ships with.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMS:                 postprocess.DefaultNMSConfig(),
		UnknownLabel:        models.DefaultUnknownLabel,
	}
}

// Validate checks the threshold ranges.
func (o Options) Validate() error {
	if !(o.ConfidenceThreshold >= 0 && o.ConfidenceThreshold < 1) {
		return errors.Wrapf(ErrInvalidOptions, "confidence threshold %v not in [0, 1)", o.ConfidenceThreshold)
	}
	if !(o.NMS.IoUThreshold > 0 && o.NMS.IoUThreshold <= 1) {
		return errors.Wrapf(ErrInvalidOptions, "iou threshold %v not in (0, 1]", o.NMS.IoUThreshold)
	}
	return nil
}
