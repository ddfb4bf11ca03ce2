// Package crop maps a selection drawn over an aspect-fit preview back onto
// the pixels of the previewed image.
package crop

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Point is a location in view coordinates (top-left origin).
type Point struct {
	X, Y float64
}

// Size is a width and height in view coordinates.
type Size struct {
	Width, Height float64
}

// Rect is a rectangle in view coordinates (top-left origin).
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// NewSelection returns the rectangle spanned by a drag from start to end,
// whatever the drag direction.
func NewSelection(start, end Point) Rect {
	return Rect{
		X:      math.Min(start.X, end.X),
		Y:      math.Min(start.Y, end.Y),
		Width:  math.Abs(start.X - end.X),
		Height: math.Abs(start.Y - end.Y),
	}
}

// AspectFit returns the largest rectangle with content's aspect ratio that
// fits inside container, centered in it. Degenerate inputs yield a zero Rect.
func AspectFit(content Size, container Rect) Rect {
	if content.Width <= 0 || content.Height <= 0 || container.Width <= 0 || container.Height <= 0 {
		return Rect{}
	}
	scale := math.Min(container.Width/content.Width, container.Height/content.Height)
	w := content.Width * scale
	h := content.Height * scale
	return Rect{
		X:      container.X + (container.Width-w)/2,
		Y:      container.Y + (container.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

// PixelRect converts sel, drawn over an image of size img shown aspect-fit in
// a viewport, into image pixel coordinates. The result is clamped to the
// image bounds and is never smaller than 1x1. It returns false when the
// viewport or image is empty.
//
// Rows follow the image.Image convention (top-left origin), so no flip is
// needed.
func PixelRect(sel Rect, viewport Size, img image.Point) (image.Rectangle, bool) {
	if viewport.Width <= 0 || viewport.Height <= 0 || img.X <= 0 || img.Y <= 0 {
		return image.Rectangle{}, false
	}
	fit := AspectFit(Size{Width: float64(img.X), Height: float64(img.Y)}, Rect{Width: viewport.Width, Height: viewport.Height})
	scaleX := float64(img.X) / fit.Width
	scaleY := float64(img.Y) / fit.Height

	x := int(math.Round((sel.X - fit.X) * scaleX))
	y := int(math.Round((sel.Y - fit.Y) * scaleY))
	w := int(math.Round(sel.Width * scaleX))
	h := int(math.Round(sel.Height * scaleY))

	x0 := clamp(x, 0, img.X-1)
	y0 := clamp(y, 0, img.Y-1)
	x1 := clamp(x+w, x0+1, img.X)
	y1 := clamp(y+h, y0+1, img.Y)
	return image.Rect(x0, y0, x1, y1), true
}

// Crop extracts the part of img under sel, where img is shown aspect-fit in
// viewport. It returns false for a nil selection, an empty viewport or an
// empty image, leaving the caller's image untouched.
func Crop(img image.Image, sel *Rect, viewport Size) (image.Image, bool) {
	if img == nil || sel == nil {
		return nil, false
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, false
	}
	r, ok := PixelRect(*sel, viewport, b.Size())
	if !ok {
		return nil, false
	}
	return imaging.Crop(img, r.Add(b.Min)), true
}

// Extract cuts r, given in pixel coordinates relative to img's origin, out
// of img. It returns false when r does not overlap the image.
func Extract(img image.Image, r image.Rectangle) (image.Image, bool) {
	if img == nil {
		return nil, false
	}
	b := img.Bounds()
	abs := r.Add(b.Min).Intersect(b)
	if abs.Empty() {
		return nil, false
	}
	return imaging.Crop(img, abs), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
