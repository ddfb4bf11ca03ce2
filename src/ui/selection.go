package ui

import (
	"image"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"gemini-vision/src/crop"
)

var (
	dimColor    = color.NRGBA{A: 153}
	borderColor = color.White
)

const (
	dashLength = 5
	dashGap    = 5
)

// selectionArea shows an image aspect-fit and lets the user drag out a
// selection rectangle over it. Everything outside the selection is dimmed.
type selectionArea struct {
	widget.BaseWidget

	img      image.Image
	start    fyne.Position
	dragging bool
	sel      *crop.Rect
	onChange func(*crop.Rect)
}

func newSelectionArea(img image.Image, onChange func(*crop.Rect)) *selectionArea {
	s := &selectionArea{img: img, onChange: onChange}
	s.ExtendBaseWidget(s)
	return s
}

func (s *selectionArea) Dragged(e *fyne.DragEvent) {
	if !s.dragging {
		s.dragging = true
		s.start = e.Position.Subtract(e.Dragged)
	}
	r := crop.NewSelection(
		crop.Point{X: float64(s.start.X), Y: float64(s.start.Y)},
		crop.Point{X: float64(e.Position.X), Y: float64(e.Position.Y)},
	)
	s.sel = &r
	s.Refresh()
	if s.onChange != nil {
		s.onChange(s.sel)
	}
}

func (s *selectionArea) DragEnd() {
	s.dragging = false
}

// Selection returns the current selection, if any, and the viewport it
// refers to.
func (s *selectionArea) Selection() (*crop.Rect, crop.Size) {
	size := s.Size()
	vp := crop.Size{Width: float64(size.Width), Height: float64(size.Height)}
	if s.sel == nil {
		return nil, vp
	}
	r := *s.sel
	return &r, vp
}

func (s *selectionArea) MinSize() fyne.Size {
	return fyne.NewSize(320, 200)
}

func (s *selectionArea) CreateRenderer() fyne.WidgetRenderer {
	img := canvas.NewImageFromImage(s.img)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest
	r := &selectionRenderer{area: s, image: img}
	for i := range r.dims {
		r.dims[i] = canvas.NewRectangle(dimColor)
	}
	r.rebuild()
	return r
}

type selectionRenderer struct {
	area    *selectionArea
	image   *canvas.Image
	dims    [4]*canvas.Rectangle
	dashes  []*canvas.Line
	objects []fyne.CanvasObject
}

func (r *selectionRenderer) Layout(size fyne.Size) {
	r.image.Move(fyne.NewPos(0, 0))
	r.image.Resize(size)

	sel := r.area.sel
	if sel == nil {
		r.dims[0].Move(fyne.NewPos(0, 0))
		r.dims[0].Resize(size)
		for _, d := range r.dims[1:] {
			d.Resize(fyne.NewSize(0, 0))
		}
		r.layoutDashes(nil)
		return
	}

	for i, b := range dimRects(*sel, size) {
		r.dims[i].Move(b.pos)
		r.dims[i].Resize(b.size)
	}
	r.layoutDashes(dashSegments(*sel, dashLength, dashGap))
}

func (r *selectionRenderer) layoutDashes(segs [][4]float32) {
	for len(r.dashes) < len(segs) {
		l := canvas.NewLine(borderColor)
		l.StrokeWidth = 1
		r.dashes = append(r.dashes, l)
	}
	for i, l := range r.dashes {
		if i >= len(segs) {
			l.Hide()
			continue
		}
		s := segs[i]
		l.Position1 = fyne.NewPos(s[0], s[1])
		l.Position2 = fyne.NewPos(s[2], s[3])
		l.Show()
	}
}

func (r *selectionRenderer) rebuild() {
	objs := []fyne.CanvasObject{r.image}
	for _, d := range r.dims {
		objs = append(objs, d)
	}
	for _, l := range r.dashes {
		objs = append(objs, l)
	}
	r.objects = objs
}

func (r *selectionRenderer) MinSize() fyne.Size { return r.area.MinSize() }

func (r *selectionRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *selectionRenderer) Refresh() {
	r.Layout(r.area.Size())
	r.rebuild()
	canvas.Refresh(r.area)
}

func (r *selectionRenderer) Destroy() {}

// band is an axis-aligned rectangle in widget coordinates.
type band struct {
	pos  fyne.Position
	size fyne.Size
}

// dimRects returns the four bands around sel (top, bottom, left, right),
// clipped to the viewport.
func dimRects(sel crop.Rect, size fyne.Size) [4]band {
	clip := func(v float64, hi float32) float32 {
		return float32(math.Max(0, math.Min(v, float64(hi))))
	}
	x0, y0 := clip(sel.X, size.Width), clip(sel.Y, size.Height)
	x1, y1 := clip(sel.MaxX(), size.Width), clip(sel.MaxY(), size.Height)
	return [4]band{
		{fyne.NewPos(0, 0), fyne.NewSize(size.Width, y0)},
		{fyne.NewPos(0, y1), fyne.NewSize(size.Width, size.Height-y1)},
		{fyne.NewPos(0, y0), fyne.NewSize(x0, y1-y0)},
		{fyne.NewPos(x1, y0), fyne.NewSize(size.Width-x1, y1-y0)},
	}
}

// dashSegments returns line segments {x1, y1, x2, y2} tracing the border
// of sel as a dashed line.
func dashSegments(sel crop.Rect, dash, gap float64) [][4]float32 {
	if dash <= 0 {
		return nil
	}
	var out [][4]float32
	edge := func(x0, y0, x1, y1 float64) {
		length := math.Hypot(x1-x0, y1-y0)
		if length == 0 {
			return
		}
		ux, uy := (x1-x0)/length, (y1-y0)/length
		for d := 0.0; d < length; d += dash + gap {
			e := math.Min(d+dash, length)
			out = append(out, [4]float32{
				float32(x0 + ux*d), float32(y0 + uy*d),
				float32(x0 + ux*e), float32(y0 + uy*e),
			})
		}
	}
	x0, y0, x1, y1 := sel.X, sel.Y, sel.MaxX(), sel.MaxY()
	edge(x0, y0, x1, y0)
	edge(x1, y0, x1, y1)
	edge(x1, y1, x0, y1)
	edge(x0, y1, x0, y0)
	return out
}
