package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"gemini-vision/src/clipboard"
	"gemini-vision/src/logutil"
	"gemini-vision/src/singleinstance"
)

const DefaultDeadline = 60 * time.Second

var ErrSelectionCancelled = errors.New("selection cancelled")

// Stage names the step a run is in, reported through Options.Progress.
type Stage string

const (
	StageCapturing Stage = "capturing"
	StageCropping  Stage = "cropping"
	StageAnalyzing Stage = "analyzing"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

type CaptureFunc func(ctx context.Context) (image.Image, error)

// CropFunc narrows the captured image. Returning cancelled=true aborts the run.
type CropFunc func(ctx context.Context, img image.Image) (cropped image.Image, cancelled bool, err error)

type AnalyzeFunc func(ctx context.Context, img image.Image, prompt string) (string, error)

type ResultTarget interface {
	OnSuccess(text string) error
	OnFailure(err error) error
}

type Options struct {
	Deadline time.Duration
	Capture  CaptureFunc
	Crop     CropFunc
	Analyze  AnalyzeFunc
	Prompt   string
	Target   ResultTarget
	Progress func(id string, stage Stage)
}

type Result struct {
	ID      string
	Text    string
	Image   image.Image
	Elapsed time.Duration
}

// Execute captures the screen, optionally crops, analyzes the image and
// hands the text to the target. Failures are reported to the target too.
func Execute(ctx context.Context, opts Options) (Result, error) {
	if opts.Capture == nil {
		return Result{}, errors.New("Capture is required")
	}
	if opts.Analyze == nil {
		return Result{}, errors.New("Analyze is required")
	}
	if opts.Target == nil {
		return Result{}, errors.New("Target is required")
	}

	id := uuid.NewString()
	started := time.Now()
	progress := func(s Stage) {
		if opts.Progress != nil {
			opts.Progress(id, s)
		}
	}
	fail := func(err error) (Result, error) {
		log.Printf("session %s: failed after %v: %v", id, time.Since(started).Round(time.Millisecond), err)
		progress(StageFailed)
		_ = opts.Target.OnFailure(err)
		return Result{ID: id}, err
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	log.Printf("session %s: started, deadline %v", id, deadline)
	progress(StageCapturing)
	img, err := opts.Capture(jobCtx)
	if err != nil {
		return fail(fmt.Errorf("capture failed: %w", err))
	}
	if img == nil || img.Bounds().Empty() {
		return fail(errors.New("capture failed: empty image"))
	}

	if opts.Crop != nil {
		progress(StageCropping)
		cropped, cancelled, err := opts.Crop(jobCtx, img)
		if err != nil {
			return fail(fmt.Errorf("crop failed: %w", err))
		}
		if cancelled {
			return fail(ErrSelectionCancelled)
		}
		if cropped != nil {
			img = cropped
		}
	}

	progress(StageAnalyzing)
	text, err := opts.Analyze(jobCtx, img, opts.Prompt)
	if err != nil {
		return fail(err)
	}

	if err := opts.Target.OnSuccess(text); err != nil {
		return fail(err)
	}

	elapsed := time.Since(started)
	log.Printf("session %s: completed in %v: %q", id, elapsed.Round(time.Millisecond), logutil.SanitizeForLog(text))
	progress(StageDone)
	return Result{ID: id, Text: text, Image: img, Elapsed: elapsed}, nil
}

type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(text string) error {
	return clipboard.Write(text)
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprint(w, text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget answers a run-once client connected to the resident.
type DelegatedTarget struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
	// WriteClipboard defaults to clipboard.Write.
	WriteClipboard func(string) error
}

func (t DelegatedTarget) OnSuccess(text string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.OutputToStdout {
		return t.Conn.RespondSuccess(text)
	}
	write := t.WriteClipboard
	if write == nil {
		write = clipboard.Write
	}
	if err := write(text); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return t.Conn.RespondSuccess("")
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}

// FuncTarget adapts a pair of callbacks to ResultTarget.
type FuncTarget struct {
	Success func(text string) error
	Failure func(err error)
}

func (t FuncTarget) OnSuccess(text string) error {
	if t.Success == nil {
		return nil
	}
	return t.Success(text)
}

func (t FuncTarget) OnFailure(err error) error {
	if t.Failure != nil {
		t.Failure(err)
	}
	return nil
}
