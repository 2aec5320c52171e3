package models

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DefaultUnknownLabel is used for class ids that have no label.
const DefaultUnknownLabel = "Unknown"

// Labels is an ordered list of class names; the index is the class id.
type Labels []string

// Name returns the label for a class id, or unknown when the id has no label.
//
// An out-of-range id is not an error: models can be exported with more class
// channels than the label file lists.
func (l Labels) Name(idx int, unknown string) string {
	if idx >= 0 && idx < len(l) {
		return l[idx]
	}
	return unknown
}

// Index returns the class id of a label, or -1.
func (l Labels) Index(name string) int {
	for i, n := range l {
		if n == name {
			return i
		}
	}
	return -1
}

// ReadLabels reads one label per line.
//
// Windows line endings are accepted. Reading stops at the first empty line,
// so trailing blank lines (and anything after them) are ignored.
//
// Arguments:
//   - r: The label source.
//
// Returns:
//   - The labels in file order.
//   - error: An error if reading fails.
func ReadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return labels, nil
}

// LoadLabels reads a label file from disk.
//
// @example
// labels, err := LoadLabels("models/coco.names")
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open labels %q", path)
	}
	defer f.Close()

	labels, err := ReadLabels(f)
	if err != nil {
		return nil, errors.Wrapf(err, "labels %q", path)
	}
	return labels, nil
}

// COCOLabels is the 80 COCO classes in YOLO order (no background class).
var COCOLabels = Labels{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
