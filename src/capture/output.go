package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

var errStreamStopped = errors.New("stream stopped before delivering a frame")

type frameResult struct {
	surface *Surface
	err     error
}

// frameOutput resolves at most once: the first valid screen frame or the
// first stop error wins, everything after that is dropped.
type frameOutput struct {
	delivered atomic.Bool
	done      chan frameResult
}

func newFrameOutput() *frameOutput {
	return &frameOutput{done: make(chan frameResult, 1)}
}

func (o *frameOutput) OnFrame(f Frame) {
	if f.Type != OutputScreen || !f.Valid || f.Surface == nil {
		return
	}
	o.resolve(frameResult{surface: f.Surface})
}

func (o *frameOutput) OnStop(err error) {
	if err == nil {
		err = errStreamStopped
	}
	o.resolve(frameResult{err: err})
}

func (o *frameOutput) resolve(r frameResult) bool {
	if !o.delivered.CompareAndSwap(false, true) {
		return false
	}
	o.done <- r
	return true
}

func (o *frameOutput) wait(ctx context.Context) (*Surface, error) {
	select {
	case r := <-o.done:
		return r.surface, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// streamGuard tears a stream down exactly once, whichever path gets there
// first. The first release reports its error; later calls return nil.
type streamGuard struct {
	stream  Stream
	output  StreamOutput
	started bool
	once    sync.Once
}

func (g *streamGuard) release(ctx context.Context) error {
	var err error
	g.once.Do(func() {
		if g.started {
			if stopErr := g.stream.Stop(ctx); stopErr != nil {
				err = stopErr
			}
		}
		if g.output != nil {
			if rmErr := g.stream.RemoveOutput(g.output); rmErr != nil {
				log.Printf("capture: remove output: %v", rmErr)
				if err == nil {
					err = rmErr
				}
			}
		}
		g.output = nil
		g.stream = nil
	})
	return err
}
