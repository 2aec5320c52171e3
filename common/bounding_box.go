// Package common - Shared detection types.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox is a single classified detection in normalized image coordinates.
//
// Boxes are values: the decoder builds them once and every later stage reads
// copies. X1,Y1,X2,Y2 are the corners and CX,CY,W,H the center/size they were
// derived from. Area uses the stored W and H, so the two views must never be
// edited independently.
type BoundingBox struct {
	X1 float32 `json:"x1" yaml:"x1"`
	Y1 float32 `json:"y1" yaml:"y1"`
	X2 float32 `json:"x2" yaml:"x2"`
	Y2 float32 `json:"y2" yaml:"y2"`
	CX float32 `json:"cx" yaml:"cx"`
	CY float32 `json:"cy" yaml:"cy"`
	W  float32 `json:"w" yaml:"w"`
	H  float32 `json:"h" yaml:"h"`
	// Confidence is the winning class score, in (0, 1].
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// Class is the zero-based class id.
	Class int `json:"class" yaml:"class"`
	// ClassName is the label resolved for Class.
	ClassName string `json:"class_name" yaml:"class_name"`
}

// NewBoundingBox derives the corners from a center/size geometry.
//
// Arguments:
//   - cx, cy: The normalized box center.
//   - w, h: The normalized box width and height.
//   - confidence: The class confidence.
//   - class: The zero-based class id.
//   - name: The resolved class name.
//
// Returns:
//   - The bounding box with all eight geometry fields populated.
//
// @example
// box := NewBoundingBox(0.5, 0.5, 0.2, 0.2, 0.95, 2, "car")
// fmt.Println(box.X1, box.Y1, box.X2, box.Y2) // 0.4 0.4 0.6 0.6
func NewBoundingBox(cx, cy, w, h, confidence float32, class int, name string) BoundingBox {
	halfW := w / 2
	halfH := h / 2
	return BoundingBox{
		X1:         cx - halfW,
		Y1:         cy - halfH,
		X2:         cx + halfW,
		Y2:         cy + halfH,
		CX:         cx,
		CY:         cy,
		W:          w,
		H:          h,
		Confidence: confidence,
		Class:      class,
		ClassName:  name,
	}
}

// InUnitRange reports whether all four corners lie in [0, 1], bounds included.
func (b BoundingBox) InUnitRange() bool {
	return inUnit(b.X1) && inUnit(b.Y1) && inUnit(b.X2) && inUnit(b.Y2)
}

func inUnit(v float32) bool {
	return v >= 0 && v <= 1
}

// Area returns W*H.
func (b BoundingBox) Area() float32 {
	return b.W * b.H
}

// Intersection calculates the overlapping area of two boxes from their corners.
//
// Arguments:
//   - other: The other bounding box.
//
// Returns:
//   - The intersection area, zero when the boxes only touch or are disjoint.
func (b BoundingBox) Intersection(other BoundingBox) float32 {
	w := math32.Max(0, math32.Min(b.X2, other.X2)-math32.Max(b.X1, other.X1))
	h := math32.Max(0, math32.Min(b.Y2, other.Y2)-math32.Max(b.Y1, other.Y1))
	return w * h
}

// IoU is shorthand for IoU(b, other).
func (b BoundingBox) IoU(other BoundingBox) float32 {
	return IoU(b, other)
}

// IoU calculates the Intersection over Union of two boxes.
//
// The union is Area(a) + Area(b) - Intersection(a, b). When the union is not
// positive (two zero-area boxes) the ratio is defined as 0, so suppression
// never sees NaN or Inf.
//
// Arguments:
//   - a: The first bounding box.
//   - b: The second bounding box.
//
// Returns:
//   - A value in [0, 1].
//
// @example
// a := NewBoundingBox(0.5, 0.5, 1, 1, 0.9, 0, "person")
// b := NewBoundingBox(0.375, 0.5, 0.75, 1, 0.8, 0, "person")
// fmt.Println(IoU(a, b)) // 0.75
func IoU(a, b BoundingBox) float32 {
	inter := a.Intersection(b)
	union := a.Area() + b.Area() - inter
	if union <= 0 || math32.IsNaN(union) {
		return 0
	}
	return inter / union
}

// ToRect projects the box onto an image of the given pixel size.
//
// Arguments:
//   - width: The image width in pixels.
//   - height: The image height in pixels.
//
// Returns:
//   - The canonical pixel rectangle.
func (b BoundingBox) ToRect(width, height int) image.Rectangle {
	fw := float32(width)
	fh := float32(height)
	return image.Rect(
		int(b.X1*fw), int(b.Y1*fh),
		int(b.X2*fw), int(b.Y2*fh),
	).Canon()
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s #%d (confidence %f): (%.3f, %.3f), (%.3f, %.3f)",
		b.ClassName, b.Class, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}
