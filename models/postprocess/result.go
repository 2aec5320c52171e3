// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/go-detect/common"

// Result is the post-processed output of one frame.
type Result struct {
	// Boxes are the detections that survived suppression, highest confidence first.
	Boxes []common.BoundingBox `json:"boxes"`
	// Candidates is how many boxes cleared the confidence and range filters
	// before suppression.
	Candidates int `json:"candidates"`
}

// Empty reports whether nothing was detected in the frame.
//
// A frame with no candidates is empty. Suppression always keeps at least one
// candidate, so a non-empty candidate set never yields an empty Result.
func (r Result) Empty() bool {
	return len(r.Boxes) == 0
}

// Suppressed is the number of candidates removed by NMS.
func (r Result) Suppressed() int {
	return r.Candidates - len(r.Boxes)
}
