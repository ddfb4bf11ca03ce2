package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/kbinani/screenshot"
)

// ScreenshotSource captures through github.com/kbinani/screenshot. It cannot
// enumerate windows, so the exclusion set is always empty and callers rely
// on Options.BeforeCapture to hide their own windows.
type ScreenshotSource struct {
	// grab is swapped in tests.
	grab func(image.Rectangle) (*image.RGBA, error)
}

// NewScreenshotSource returns the default cross-platform Source.
func NewScreenshotSource() *ScreenshotSource {
	return &ScreenshotSource{grab: screenshot.CaptureRect}
}

func (s *ScreenshotSource) ShareableContent(ctx context.Context) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	n := screenshot.NumActiveDisplays()
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		displays = append(displays, Display{
			ID:      i,
			Bounds:  screenshot.GetDisplayBounds(i),
			Primary: i == 0,
		})
	}
	return Content{Displays: displays}, nil
}

func (s *ScreenshotSource) NewStream(filter Filter, cfg StreamConfig) (Stream, error) {
	if filter.Display.Bounds.Empty() {
		return nil, fmt.Errorf("display %d has empty bounds", filter.Display.ID)
	}
	if cfg.CapturesAudio {
		return nil, errors.New("audio capture is not supported")
	}
	return &grabStream{grab: s.grab, bounds: filter.Display.Bounds, cfg: cfg}, nil
}

// grabStream emulates a frame stream by grabbing the display once per
// Start. Frames are delivered from a background goroutine.
type grabStream struct {
	grab   func(image.Rectangle) (*image.RGBA, error)
	bounds image.Rectangle
	cfg    StreamConfig

	mu      sync.Mutex
	outputs []StreamOutput
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (g *grabStream) AddOutput(out StreamOutput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs = append(g.outputs, out)
	return nil
}

func (g *grabStream) RemoveOutput(out StreamOutput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, o := range g.outputs {
		if o == out {
			g.outputs = append(g.outputs[:i], g.outputs[i+1:]...)
			return nil
		}
	}
	return errors.New("output not registered")
}

func (g *grabStream) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return errors.New("stream already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.wg.Add(1)
	go g.run(runCtx)
	return nil
}

func (g *grabStream) run(ctx context.Context) {
	defer g.wg.Done()
	img, err := g.grab(g.bounds)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("capture: grab %v failed: %v", g.bounds, err)
		for _, out := range g.snapshotOutputs() {
			out.OnStop(err)
		}
		return
	}
	frame := Frame{Type: OutputScreen, Valid: true, Surface: SurfaceFromRGBA(img)}
	for _, out := range g.snapshotOutputs() {
		out.OnFrame(frame)
	}
}

func (g *grabStream) snapshotOutputs() []StreamOutput {
	g.mu.Lock()
	defer g.mu.Unlock()
	outs := make([]StreamOutput, len(g.outputs))
	copy(outs, g.outputs)
	return outs
}

func (g *grabStream) Stop(ctx context.Context) error {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel == nil {
		return errors.New("stream not started")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
