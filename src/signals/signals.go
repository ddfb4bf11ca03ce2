package signals

import (
	"context"
	"log"
)

// Signal names a UI trigger coming from the tray, a hotkey or a shortcut.
type Signal string

const (
	CaptureScreen    Signal = "capture-screen"
	CropImage        Signal = "crop-image"
	AnalyzeImage     Signal = "analyze-image"
	CopyImage        Signal = "copy-image"
	CopyResult       Signal = "copy-result"
	IncreaseFontSize Signal = "increase-font-size"
	DecreaseFontSize Signal = "decrease-font-size"
	OpenWindow       Signal = "open-window"
	Quit             Signal = "quit"
)

// Bus delivers signals to a single consumer. Posting never blocks: a
// signal arriving while the buffer is full is dropped.
type Bus struct {
	ch chan Signal
}

// NewBus returns a Bus buffering up to size signals (at least one).
func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{ch: make(chan Signal, size)}
}

// Post enqueues s and reports whether it was accepted.
func (b *Bus) Post(s Signal) bool {
	select {
	case b.ch <- s:
		return true
	default:
		log.Printf("signals: dropped %s, consumer busy", s)
		return false
	}
}

// C is the receive side of the bus.
func (b *Bus) C() <-chan Signal { return b.ch }

// Dispatch calls the handler registered for each received signal until ctx
// is done or a handler for Quit returns. Unhandled signals are logged.
func (b *Bus) Dispatch(ctx context.Context, handlers map[Signal]func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-b.ch:
			h, ok := handlers[s]
			if !ok {
				log.Printf("signals: no handler for %s", s)
				continue
			}
			h()
			if s == Quit {
				return
			}
		}
	}
}
