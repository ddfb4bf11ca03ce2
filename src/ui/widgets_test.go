package ui

import (
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"

	"gemini-vision/src/crop"
	"gemini-vision/src/signals"
)

func TestPromptEntrySubmit(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	submitted := 0
	e := newPromptEntry(func() { submitted++ })
	w := test.NewWindow(e)
	defer w.Close()

	test.Type(e, "hello")
	e.TypedKey(&fyne.KeyEvent{Name: fyne.KeyReturn})
	if submitted != 1 {
		t.Fatalf("Return should submit, submitted=%d", submitted)
	}
	if strings.Contains(e.Text, "\n") {
		t.Errorf("Return inserted a newline: %q", e.Text)
	}

	e.KeyDown(&fyne.KeyEvent{Name: desktop.KeyShiftLeft})
	e.TypedKey(&fyne.KeyEvent{Name: fyne.KeyReturn})
	e.KeyUp(&fyne.KeyEvent{Name: desktop.KeyShiftLeft})
	if submitted != 1 {
		t.Errorf("Shift+Return should not submit, submitted=%d", submitted)
	}
	if !strings.Contains(e.Text, "\n") {
		t.Errorf("Shift+Return should insert a newline: %q", e.Text)
	}

	e.TypedKey(&fyne.KeyEvent{Name: fyne.KeyEnter})
	if submitted != 2 {
		t.Errorf("Enter after releasing shift should submit, submitted=%d", submitted)
	}
}

func TestSelectionAreaDrag(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	var last *crop.Rect
	s := newSelectionArea(image.NewRGBA(image.Rect(0, 0, 200, 100)), func(r *crop.Rect) { last = r })
	s.Resize(fyne.NewSize(200, 100))

	if sel, _ := s.Selection(); sel != nil {
		t.Fatalf("unexpected initial selection %+v", sel)
	}

	s.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(50, 40)},
		Dragged:    fyne.NewDelta(30, 20),
	})
	s.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(80, 60)},
		Dragged:    fyne.NewDelta(30, 20),
	})
	s.DragEnd()

	want := crop.Rect{X: 20, Y: 20, Width: 60, Height: 40}
	sel, vp := s.Selection()
	if sel == nil || *sel != want {
		t.Fatalf("selection = %+v, want %+v", sel, want)
	}
	if last == nil || *last != want {
		t.Errorf("onChange got %+v", last)
	}
	if vp != (crop.Size{Width: 200, Height: 100}) {
		t.Errorf("viewport = %+v", vp)
	}

	// A new drag starts a new selection, even dragging up and left.
	s.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(10, 10)},
		Dragged:    fyne.NewDelta(-5, -5),
	})
	if sel, _ := s.Selection(); *sel != (crop.Rect{X: 10, Y: 10, Width: 5, Height: 5}) {
		t.Errorf("second selection = %+v", sel)
	}
}

func TestDimRects(t *testing.T) {
	got := dimRects(crop.Rect{X: 10, Y: 20, Width: 30, Height: 40}, fyne.NewSize(100, 100))
	want := [4]band{
		{fyne.NewPos(0, 0), fyne.NewSize(100, 20)},
		{fyne.NewPos(0, 60), fyne.NewSize(100, 40)},
		{fyne.NewPos(0, 20), fyne.NewSize(10, 40)},
		{fyne.NewPos(40, 20), fyne.NewSize(60, 40)},
	}
	if got != want {
		t.Errorf("dimRects = %+v, want %+v", got, want)
	}

	// Selections past the edge are clipped.
	got = dimRects(crop.Rect{X: -10, Y: 50, Width: 200, Height: 100}, fyne.NewSize(100, 100))
	if got[1].size.Height != 0 || got[2].size.Width != 0 || got[3].size.Width != 0 {
		t.Errorf("clipped bands = %+v", got)
	}
}

func TestDashSegments(t *testing.T) {
	segs := dashSegments(crop.Rect{Width: 20, Height: 10}, 5, 5)
	if len(segs) != 6 {
		t.Fatalf("expected 6 dashes, got %d: %v", len(segs), segs)
	}
	if segs[0] != [4]float32{0, 0, 5, 0} {
		t.Errorf("first dash = %v", segs[0])
	}
	if segs[2] != [4]float32{20, 0, 20, 5} {
		t.Errorf("right edge dash = %v", segs[2])
	}
	if dashSegments(crop.Rect{Width: 20, Height: 10}, 0, 5) != nil {
		t.Error("zero dash length should draw nothing")
	}
}

func TestScaledTheme(t *testing.T) {
	base := theme.DefaultTheme()
	th := newScaledTheme(base, 2)
	if got, want := th.Size(theme.SizeNameText), base.Size(theme.SizeNameText)*2; got != want {
		t.Errorf("text size = %v, want %v", got, want)
	}
	if got, want := th.Size(theme.SizeNamePadding), base.Size(theme.SizeNamePadding); got != want {
		t.Errorf("padding should not scale: %v != %v", got, want)
	}
	if newScaledTheme(nil, 0).scale != 1 {
		t.Error("non-positive scale should fall back to 1")
	}
}

func TestWindowRender(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	w := NewWindow(a, ControllerConfig{}, nil)
	defer w.win.Close()

	if w.preview.Visible() || !w.placeholder.Visible() || w.placeholder.Text != placeholderIdle {
		t.Error("empty state should show the idle placeholder")
	}
	if !w.analyzeButton.Disabled() {
		t.Error("analyze should be disabled without an image")
	}

	w.render(State{Loading: true, Capturing: true, FontSize: baseFontSize})
	if w.placeholder.Text != placeholderCapturing || !w.captureButton.Disabled() {
		t.Errorf("capturing state: placeholder %q", w.placeholder.Text)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	w.render(State{Image: img, Loading: true, FontSize: baseFontSize})
	if !w.progress.Visible() || w.resultScroll.Visible() {
		t.Error("analyzing state should show only the progress indicator")
	}

	w.render(State{Image: img, Result: "**done**", FontSize: baseFontSize})
	if !w.resultScroll.Visible() || w.progress.Visible() || w.errorLabel.Visible() {
		t.Error("result state should show only the result")
	}
	if w.analyzeButton.Disabled() || !w.preview.Visible() {
		t.Error("image state should enable analyze and show the preview")
	}

	w.render(State{Image: img, Error: "Request timed out.", FontSize: baseFontSize + 2})
	if !w.errorLabel.Visible() || w.errorLabel.Text != "Request timed out." {
		t.Errorf("error label = %q", w.errorLabel.Text)
	}
	if w.fontSize != baseFontSize+2 {
		t.Errorf("font size not applied: %d", w.fontSize)
	}
}

func TestCaptureHidesWindowDuringGrab(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	var w *Window
	var visibleDuringGrab, hideCalled bool
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	w = NewWindow(a, ControllerConfig{
		Capture: func(context.Context) (image.Image, error) {
			restore := w.HideForCapture(nil)
			hideCalled = true
			visibleDuringGrab = w.isVisible()
			if restore != nil {
				restore()
			}
			return img, nil
		},
	}, nil)
	defer w.win.Close()

	// Closing the window only hides it; capture must still work from the tray.
	w.hide()
	w.handlers()[signals.CaptureScreen]()

	deadline := time.Now().Add(5 * time.Second)
	for w.ctrl.State().Image == nil {
		if time.Now().After(deadline) {
			t.Fatal("capture did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !hideCalled {
		t.Fatal("capture did not hide the window")
	}
	if visibleDuringGrab {
		t.Error("window was visible while the screen was grabbed")
	}
	if !w.isVisible() {
		t.Error("window should be shown again after the capture")
	}
}
