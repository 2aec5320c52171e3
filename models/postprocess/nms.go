// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/common"
)

// DefaultIoUThreshold is the overlap at which a lower-confidence box is suppressed.
const DefaultIoUThreshold float32 = 0.7

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap threshold for suppression. Pairs at exactly
	// the threshold are suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware limits suppression to boxes of the same class. The default
	// (false) is class-agnostic: a box suppresses overlapping boxes of any class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// DefaultNMSConfig returns the class-agnostic configuration at DefaultIoUThreshold.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// SortByConfidence returns a copy of boxes ordered by descending confidence.
//
// The sort is stable, so boxes with equal confidence keep their input order.
//
// Arguments:
//   - boxes: The boxes to order. The slice is not modified.
//
// Returns:
//   - A new slice, highest confidence first.
func SortByConfidence(boxes []common.BoundingBox) []common.BoundingBox {
	sorted := make([]common.BoundingBox, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}

// ApplyGreedyNMS performs greedy Non-Maximum Suppression.
//
// Candidates are ordered by SortByConfidence, then walked once: each box not
// yet suppressed is kept and marks every later box whose IoU with it is at or
// above config.IoUThreshold. The input slice is never mutated.
//
// Arguments:
//   - boxes: Unordered candidate boxes.
//   - config: NMS configuration.
//
// Returns:
//   - The kept boxes, highest confidence first. No two kept boxes (of the same
//     class, when ClassAware) have IoU >= config.IoUThreshold. Returns nil for
//     empty input.
func ApplyGreedyNMS(boxes []common.BoundingBox, config NMSConfig) []common.BoundingBox {
	n := len(boxes)
	if n == 0 {
		return nil
	}

	sorted := SortByConfidence(boxes)
	suppressed := make([]bool, n)
	kept := make([]common.BoundingBox, 0, n)

	for i := 0; i < n; i++ {
		if suppressed[i] {
			continue
		}

		anchor := sorted[i]
		kept = append(kept, anchor)

		for j := i + 1; j < n; j++ {
			if suppressed[j] {
				continue
			}
			if config.ClassAware && sorted[j].Class != anchor.Class {
				continue
			}
			if common.IoU(anchor, sorted[j]) >= config.IoUThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}
