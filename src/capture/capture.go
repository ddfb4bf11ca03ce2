package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"sync/atomic"
)

var (
	ErrNoDisplay         = errors.New("no capturable display found")
	ErrImageCreation     = errors.New("failed to create image from captured surface")
	ErrCaptureInProgress = errors.New("a capture is already in progress")
)

// CaptureError reports which step of the pipeline failed.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture %s: %v", e.Op, e.Err) }

func (e *CaptureError) Unwrap() error { return e.Err }

// Display is one capturable display as reported by a Source.
type Display struct {
	ID      int
	Bounds  image.Rectangle
	Primary bool
}

func (d Display) Width() int  { return d.Bounds.Dx() }
func (d Display) Height() int { return d.Bounds.Dy() }

// Window is an on-screen window as reported by a Source.
type Window struct {
	ID       uint32
	OwnerPID int
	Title    string
	OnScreen bool
}

// Content is the set of displays and windows available for capture.
type Content struct {
	Displays []Display
	Windows  []Window
}

// Filter selects the display to capture and the windows to leave out of it.
type Filter struct {
	Display         Display
	ExcludedWindows []Window
}

// StreamConfig describes the frames a Stream should produce.
type StreamConfig struct {
	Width         int
	Height        int
	PixelFormat   PixelFormat
	QueueDepth    int
	CapturesAudio bool
}

// OutputType distinguishes screen frames from other sample types.
type OutputType int

const (
	OutputScreen OutputType = iota
	OutputAudio
)

// Frame is one sample delivered by a Stream.
type Frame struct {
	Type    OutputType
	Valid   bool
	Surface *Surface
}

// StreamOutput receives frames and the terminal stop error from a Stream.
// Implementations must tolerate being called from any goroutine.
type StreamOutput interface {
	OnFrame(Frame)
	OnStop(err error)
}

// Stream is a running frame source for one Filter.
type Stream interface {
	AddOutput(out StreamOutput) error
	RemoveOutput(out StreamOutput) error
	// Start begins delivering frames asynchronously. Errors that happen
	// after Start returns are reported through StreamOutput.OnStop.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Source enumerates shareable content and creates streams.
type Source interface {
	ShareableContent(ctx context.Context) (Content, error)
	NewStream(filter Filter, cfg StreamConfig) (Stream, error)
}

// Options tweak a Capturer.
type Options struct {
	// PID identifies the windows to exclude. Defaults to os.Getpid().
	PID int
	// BeforeCapture runs after content enumeration and before the stream
	// starts. The returned func, if any, runs once the stream is released.
	// Backends that cannot exclude windows use it to hide the caller's UI.
	BeforeCapture func(excluded []Window) (restore func())
}

const frameQueueDepth = 2

// Capturer grabs single frames of the primary display.
type Capturer struct {
	source   Source
	opts     Options
	inFlight atomic.Bool
}

// New returns a Capturer that reads from src.
func New(src Source, opts Options) *Capturer {
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	return &Capturer{source: src, opts: opts}
}

// CaptureScreen captures one frame of the primary display, excluding the
// windows owned by this process. Only one capture may run at a time per
// Capturer; an overlapping call returns ErrCaptureInProgress.
func (c *Capturer) CaptureScreen(ctx context.Context) (*image.RGBA, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, &CaptureError{Op: "start", Err: ErrCaptureInProgress}
	}
	defer c.inFlight.Store(false)

	content, err := c.source.ShareableContent(ctx)
	if err != nil {
		return nil, &CaptureError{Op: "enumerate", Err: err}
	}
	display, ok := primaryDisplay(content.Displays)
	if !ok {
		return nil, &CaptureError{Op: "enumerate", Err: ErrNoDisplay}
	}
	excluded := ownedWindows(content.Windows, c.opts.PID)
	log.Printf("capture: display %d (%dx%d), excluding %d own windows", display.ID, display.Width(), display.Height(), len(excluded))

	if c.opts.BeforeCapture != nil {
		if restore := c.opts.BeforeCapture(excluded); restore != nil {
			defer restore()
		}
	}

	surface, err := c.grabSurface(ctx, Filter{Display: display, ExcludedWindows: excluded}, StreamConfig{
		Width:         display.Width(),
		Height:        display.Height(),
		PixelFormat:   PixelFormatBGRA,
		QueueDepth:    frameQueueDepth,
		CapturesAudio: false,
	})
	if err != nil {
		return nil, err
	}

	img, err := surface.Image()
	if err != nil {
		return nil, &CaptureError{Op: "convert", Err: err}
	}
	return img, nil
}

func (c *Capturer) grabSurface(ctx context.Context, filter Filter, cfg StreamConfig) (*Surface, error) {
	stream, err := c.source.NewStream(filter, cfg)
	if err != nil {
		return nil, &CaptureError{Op: "stream", Err: err}
	}

	out := newFrameOutput()
	guard := &streamGuard{stream: stream}
	defer guard.release(context.WithoutCancel(ctx))

	if err := stream.AddOutput(out); err != nil {
		return nil, &CaptureError{Op: "stream", Err: err}
	}
	guard.output = out

	if err := stream.Start(ctx); err != nil {
		return nil, &CaptureError{Op: "start", Err: err}
	}
	guard.started = true

	surface, err := out.wait(ctx)
	if err != nil {
		return nil, &CaptureError{Op: "frame", Err: err}
	}

	if err := guard.release(ctx); err != nil {
		return nil, &CaptureError{Op: "stop", Err: err}
	}
	return surface, nil
}

func primaryDisplay(displays []Display) (Display, bool) {
	if len(displays) == 0 {
		return Display{}, false
	}
	for _, d := range displays {
		if d.Primary {
			return d, true
		}
	}
	return displays[0], true
}

func ownedWindows(windows []Window, pid int) []Window {
	var owned []Window
	for _, w := range windows {
		if w.OnScreen && w.OwnerPID == pid {
			owned = append(owned, w)
		}
	}
	return owned
}
