// Package overlay - Styling and drawing of detection boxes on frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nvr-ai/go-detect/common"
)

const (
	// StrokeWidth is the box outline width in pixels.
	StrokeWidth = 8
	// TextPadding is the padding around a caption's background.
	TextPadding = 8
	// hueStep spreads class colors across 25 hues.
	hueStep = 360 / 25
)

// ColorForClass returns the outline color of a class: hue (cls*14) mod 360
// at full saturation and value.
func ColorForClass(cls int) color.RGBA {
	hue := ((cls*hueStep)%360 + 360) % 360
	return hsvToRGB(float64(hue), 1, 1)
}

// hsvToRGB converts h in [0, 360) and s, v in [0, 1].
func hsvToRGB(h, s, v float64) color.RGBA {
	c := v * s
	hp := h / 60
	x := c * (1 - abs(mod2(hp)-1))
	var r, g, b float64
	switch int(hp) {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := v - c
	return color.RGBA{
		R: uint8((r+m)*255 + 0.5),
		G: uint8((g+m)*255 + 0.5),
		B: uint8((b+m)*255 + 0.5),
		A: 255,
	}
}

func mod2(x float64) float64 {
	return x - 2*float64(int(x/2))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Caption is the text drawn above a box, e.g. "person 91.25%".
func Caption(box common.BoundingBox) string {
	return fmt.Sprintf("%s %.2f%%", box.ClassName, box.Confidence*100)
}

// PixelRect projects a box's normalized corners onto a width x height frame.
func PixelRect(box common.BoundingBox, width, height int) image.Rectangle {
	return box.ToRect(width, height)
}

// Palette caches one color per class.
type Palette struct {
	mu     sync.Mutex
	colors map[int]color.RGBA
}

// NewPalette creates an empty palette.
func NewPalette() *Palette {
	return &Palette{colors: make(map[int]color.RGBA)}
}

// Color returns the cached color for cls.
func (p *Palette) Color(cls int) color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.colors[cls]
	if !ok {
		c = ColorForClass(cls)
		p.colors[cls] = c
	}
	return c
}

// Draw outlines every box on dst in its class color and writes its Caption
// in white on black inside the top-left corner. Boxes are projected onto
// dst's bounds.
func (p *Palette) Draw(dst draw.Image, boxes []common.BoundingBox) {
	bounds := dst.Bounds()
	for _, box := range boxes {
		r := PixelRect(box, bounds.Dx(), bounds.Dy()).Add(bounds.Min)
		strokeRect(dst, r, StrokeWidth, p.Color(box.Class))
		drawCaption(dst, r.Min, Caption(box))
	}
}

// captionFace is the bitmap font captions are set in.
var captionFace = basicfont.Face7x13

// CaptionRect is the background of a caption drawn with its top-left at pt:
// the text extent plus TextPadding.
func CaptionRect(pt image.Point, text string) image.Rectangle {
	d := font.Drawer{Face: captionFace}
	m := captionFace.Metrics()
	w := d.MeasureString(text).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	return image.Rect(pt.X, pt.Y, pt.X+w+TextPadding, pt.Y+h+TextPadding)
}

func drawCaption(dst draw.Image, pt image.Point, text string) {
	bg := CaptionRect(pt, text)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.Black, image.Point{}, draw.Src)

	d := font.Drawer{Dst: dst, Src: image.White, Face: captionFace}
	d.Dot = fixed.P(pt.X+TextPadding/2, pt.Y+TextPadding/2+captionFace.Metrics().Ascent.Ceil())
	d.DrawString(text)
}

// strokeRect draws the outline of r, width pixels thick, growing inwards.
func strokeRect(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	w := min(width, r.Dx(), r.Dy())
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}
