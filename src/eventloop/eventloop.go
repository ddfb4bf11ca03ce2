package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gemini-vision/src/config"
	"gemini-vision/src/hotkey"
	"gemini-vision/src/session"
	"gemini-vision/src/singleinstance"
	"gemini-vision/src/worker"
)

// ErrBusy is reported to a requester while another run is in flight.
var ErrBusy = errors.New("Busy, please retry")

// Pipeline is the capture and analysis work one request performs.
type Pipeline struct {
	Capture session.CaptureFunc
	Analyze session.AnalyzeFunc
	Prompt  string
}

// Loop is the single-threaded coordinator for run-once, tray and hotkey flows.
type Loop struct {
	pipeline       Pipeline
	pool           *worker.Pool
	srv            singleinstance.Server
	newServer      func() singleinstance.Server
	busy           bool
	results        chan result
	hotkeyCh       chan struct{}
	defaultTooltip string
	deadline       time.Duration
	setTooltip     func(string)
	notify         func(title, msg string)
}

type result struct {
	text   string
	err    error
	target resultTarget
	cancel context.CancelFunc
}

type resultTarget interface {
	OnSuccess(text string) error
	OnProcessError(err error)
	OnDeliveryError(err error)
	Close()
}

// hotkeyResultTarget copies the text to the clipboard and reports through
// the loop's notifier.
type hotkeyResultTarget struct {
	notify func(title, msg string)
}

func (t hotkeyResultTarget) OnSuccess(text string) error {
	if err := (session.ClipboardTarget{}).OnSuccess(text); err != nil {
		return err
	}
	t.notify("Analysis copied", fmt.Sprintf("%d characters copied to the clipboard", len([]rune(text))))
	return nil
}

func (t hotkeyResultTarget) OnProcessError(err error) {
	t.notify("Analysis failed", err.Error())
}

func (t hotkeyResultTarget) OnDeliveryError(err error) {
	t.notify("Clipboard error", err.Error())
}

func (hotkeyResultTarget) Close() {}

type delegatedResultTarget struct {
	sink session.DelegatedTarget
	conn singleinstance.Conn
}

func newDelegatedResultTarget(conn singleinstance.Conn, outputToStdout bool) delegatedResultTarget {
	return delegatedResultTarget{
		sink: session.DelegatedTarget{Conn: conn, OutputToStdout: outputToStdout},
		conn: conn,
	}
}

func (t delegatedResultTarget) OnSuccess(text string) error {
	return t.sink.OnSuccess(text)
}

func (t delegatedResultTarget) OnProcessError(err error) {
	_ = t.sink.OnFailure(err)
}

func (t delegatedResultTarget) OnDeliveryError(err error) {
	_ = t.sink.OnFailure(err)
}

func (t delegatedResultTarget) Close() {
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

// Options hooks the loop up to the tray. Nil functions are no-ops.
type Options struct {
	SetTooltip func(string)
	Notify     func(title, msg string)
}

// New creates a new event loop with defaults based on config.
// If cfg is nil or cfg.AnalyzeDeadlineSec <= 0, the session default deadline is used.
func New(cfg *config.Config, p Pipeline, opts Options) *Loop {
	deadline := session.DefaultDeadline
	var ports singleinstance.PortRange
	if cfg != nil {
		if cfg.AnalyzeDeadlineSec > 0 {
			deadline = time.Duration(cfg.AnalyzeDeadlineSec) * time.Second
		}
		ports = singleinstance.PortRange{Start: cfg.PortStart, End: cfg.PortEnd}
	}

	l := &Loop{
		pipeline:       p,
		pool:           worker.New(1),
		newServer:      func() singleinstance.Server { return singleinstance.NewServer(ports) },
		results:        make(chan result, 1),
		hotkeyCh:       make(chan struct{}, 4),
		defaultTooltip: "Gemini Vision",
		deadline:       deadline,
		setTooltip:     opts.SetTooltip,
		notify:         opts.Notify,
	}
	if l.setTooltip == nil {
		l.setTooltip = func(string) {}
	}
	if l.notify == nil {
		l.notify = func(title, msg string) { log.Printf("eventloop: %s: %s", title, msg) }
	}
	return l
}

// SetDefaultTooltip optionally sets the tray tooltip base text.
func (l *Loop) SetDefaultTooltip(tt string) { l.defaultTooltip = tt }

func (l *Loop) setBusy(b bool) {
	l.busy = b
	if !b {
		l.setTooltip(l.defaultTooltip)
	}
}

// StartHotkey registers a global hotkey and posts events into the loop.
func (l *Loop) StartHotkey(combo string) error {
	if combo == "" {
		return nil
	}
	return hotkey.Listen(combo, l.Trigger)
}

// Trigger requests a capture and analysis as if the hotkey was pressed.
// It never blocks; extra triggers are dropped.
func (l *Loop) Trigger() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// Run starts the singleinstance server and processes client requests.
// It blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.srv = l.newServer()
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	defer l.srv.Close()
	if p := l.srv.Port(); p > 0 {
		log.Printf("eventloop: resident listening on 127.0.0.1:%d", p)
	}
	defer l.pool.Close()
	l.setTooltip(l.defaultTooltip)

	// Accept loop in background to avoid blocking result handling
	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			select {
			case reqCh <- conn:
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.hotkeyCh:
			l.handleHotkey(ctx)
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	req := conn.Request()
	target := newDelegatedResultTarget(conn, req.OutputToStdout)
	if !l.startRequest(ctx, target, req.Prompt) {
		target.OnProcessError(ErrBusy)
		target.Close()
	}
}

func (l *Loop) handleResult(res result) {
	log.Printf("eventloop: result text length=%d, err=%v", len(res.text), res.err)
	defer func() {
		l.setBusy(false)
		if res.cancel != nil {
			res.cancel()
		}
	}()
	if res.target == nil {
		log.Printf("eventloop: missing target")
		return
	}
	defer res.target.Close()

	if res.err != nil {
		res.target.OnProcessError(res.err)
		return
	}

	if err := res.target.OnSuccess(res.text); err != nil {
		log.Printf("eventloop: delivery error: %v", err)
		res.target.OnDeliveryError(err)
	}
}

func (l *Loop) handleHotkey(ctx context.Context) {
	if !l.startRequest(ctx, hotkeyResultTarget{notify: l.notify}, "") {
		log.Printf("eventloop: busy, skipping hotkey")
		l.notify("Gemini Vision", ErrBusy.Error())
	}
}

// startRequest submits one run to the pool. It returns false when a run is
// already in flight.
func (l *Loop) startRequest(ctx context.Context, target resultTarget, prompt string) bool {
	if l.busy {
		return false
	}
	if prompt == "" {
		prompt = l.pipeline.Prompt
	}

	jobCtx, cancel := context.WithTimeout(ctx, l.deadline)
	task := func(ctx context.Context) (string, error) {
		res, err := session.Execute(ctx, session.Options{
			Deadline: l.deadline,
			Capture:  l.pipeline.Capture,
			Analyze:  l.pipeline.Analyze,
			Prompt:   prompt,
			Target:   session.FuncTarget{},
			Progress: func(_ string, s session.Stage) {
				switch s {
				case session.StageCapturing:
					l.setTooltip("Gemini Vision: capturing...")
				case session.StageAnalyzing:
					l.setTooltip("Gemini Vision: analyzing...")
				}
			},
		})
		return res.Text, err
	}

	l.busy = true
	submitted := l.pool.Submit(jobCtx, task, func(text string, err error) {
		select {
		case l.results <- result{text: text, err: err, target: target, cancel: cancel}:
		case <-ctx.Done():
			// Loop is gone; answer the requester here.
			target.OnProcessError(ctx.Err())
			target.Close()
			cancel()
		}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		return false
	}
	return true
}

// Deadline returns the configured analysis deadline for this loop.
func (l *Loop) Deadline() time.Duration { return l.deadline }
