package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"gemini-vision/src/crop"
	"gemini-vision/src/llm"
	"gemini-vision/src/logutil"
	"gemini-vision/src/secret"
	"gemini-vision/src/session"
)

const (
	baseFontSize = 13
	minFontSize  = 8
	maxFontSize  = 40

	msgMissingKey  = "Error: API Key is not set. Please enter and save your key."
	msgNoResponse  = "Failed to get a response from Gemini."
	msgKeySaved    = "API Key saved."
	msgKeyNotSaved = "Failed to save API Key."
	msgCopied      = "Copied to clipboard."
	msgCopyFailed  = "Copy failed."
)

// State is a snapshot of everything the window shows.
type State struct {
	Image     image.Image
	Result    string
	Error     string
	Loading   bool
	Capturing bool
	Prompt    string
	APIKey    string
	KeyStatus string
	// CopyStatus reports the outcome of the last clipboard copy.
	CopyStatus string
	FontSize  int
}

// CanAnalyze reports whether the Analyze action is available.
func (s State) CanAnalyze() bool { return s.Image != nil && !s.Loading }

// FontScale is the text scale relative to the base font size.
func (s State) FontScale() float32 { return float32(s.FontSize) / baseFontSize }

type ControllerConfig struct {
	Capture session.CaptureFunc
	// NewAnalyzer builds an analyzer for the key currently entered.
	NewAnalyzer func(apiKey string) session.AnalyzeFunc
	Keys        secret.Store
	Prompt      string
	Deadline    time.Duration
	// CopyText and CopyImage write to the clipboard.
	CopyText  func(string) error
	CopyImage func(image.Image) error
	// OnChange receives every new state, from whichever goroutine changed it.
	OnChange func(State)
}

// Controller owns the window state and runs capture and analysis off the
// UI goroutine. Every mutation publishes a snapshot through OnChange.
type Controller struct {
	cfg ControllerConfig
	mu  sync.Mutex
	st  State
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Deadline <= 0 {
		cfg.Deadline = session.DefaultDeadline
	}
	prompt := cfg.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = llm.DefaultPrompt
	}
	return &Controller{cfg: cfg, st: State{Prompt: prompt, FontSize: baseFontSize}}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// update applies fn under the lock and publishes the result.
func (c *Controller) update(fn func(*State)) State {
	c.mu.Lock()
	fn(&c.st)
	st := c.st
	c.mu.Unlock()
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(st)
	}
	return st
}

func (c *Controller) SetPrompt(p string) {
	c.mu.Lock()
	c.st.Prompt = p
	c.mu.Unlock()
}

func (c *Controller) SetAPIKey(k string) {
	c.mu.Lock()
	c.st.APIKey = strings.TrimSpace(k)
	c.mu.Unlock()
}

// LoadKey fills the API key field from the key store, if one is stored.
func (c *Controller) LoadKey() {
	if c.cfg.Keys == nil {
		return
	}
	key, ok := c.cfg.Keys.Load()
	if !ok {
		return
	}
	c.update(func(s *State) { s.APIKey = key })
	log.Printf("ui: API key loaded (%s)", logutil.RedactKey(key))
}

// SaveKey stores the entered API key.
func (c *Controller) SaveKey() error {
	key := c.State().APIKey
	var err error
	switch {
	case c.cfg.Keys == nil:
		err = errors.New("no key store configured")
	case key == "":
		err = errors.New("API key is empty")
	default:
		err = c.cfg.Keys.Save(key)
	}
	c.update(func(s *State) {
		if err != nil {
			s.KeyStatus = msgKeyNotSaved
		} else {
			s.KeyStatus = msgKeySaved
		}
	})
	if err != nil {
		log.Printf("ui: save key failed: %v", err)
		return err
	}
	log.Printf("ui: API key saved (%s)", logutil.RedactKey(key))
	return nil
}

// Capture grabs the screen and makes it the active image. It reports false
// when another capture or analysis is running.
func (c *Controller) Capture(ctx context.Context) bool {
	started := false
	c.update(func(s *State) {
		if s.Loading {
			return
		}
		started = true
		s.Loading = true
		s.Capturing = true
		s.Result = ""
		s.Error = ""
	})
	if !started {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()
	var img image.Image
	var err error
	if c.cfg.Capture == nil {
		err = errors.New("no capture source")
	} else {
		img, err = c.cfg.Capture(ctx)
	}

	c.update(func(s *State) {
		s.Loading = false
		s.Capturing = false
		if err != nil {
			s.Error = "Capture failed: " + err.Error()
			return
		}
		s.Image = img
	})
	if err != nil {
		log.Printf("ui: capture failed: %v", err)
		return true
	}
	b := img.Bounds()
	log.Printf("ui: captured %dx%d", b.Dx(), b.Dy())
	return true
}

// Analyze sends the active image and prompt to Gemini. It reports false
// when there is no image or work is already running.
func (c *Controller) Analyze(ctx context.Context) bool {
	var img image.Image
	var prompt, key string
	started := false
	c.update(func(s *State) {
		if s.Image == nil || s.Loading {
			return
		}
		started = true
		img, prompt, key = s.Image, s.Prompt, s.APIKey
		s.Result = ""
		s.Error = ""
		if key == "" {
			s.Error = msgMissingKey
			return
		}
		s.Loading = true
	})
	if !started || key == "" {
		return started
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()
	var text string
	var err error
	if c.cfg.NewAnalyzer == nil {
		err = errors.New("no analyzer configured")
	} else {
		text, err = c.cfg.NewAnalyzer(key)(ctx, img, prompt)
	}

	c.update(func(s *State) {
		s.Loading = false
		switch {
		case err != nil:
			s.Error = describeError(err)
		case text == "":
			s.Result = msgNoResponse
		default:
			s.Result = text
		}
	})
	if err != nil {
		log.Printf("ui: analysis failed: %v", err)
	} else {
		log.Printf("ui: analysis result: %q", logutil.SanitizeForLog(text))
	}
	return true
}

// CopyImage puts the active image on the clipboard.
func (c *Controller) CopyImage() error {
	img := c.State().Image
	var err error
	switch {
	case img == nil:
		err = errors.New("no image to copy")
	case c.cfg.CopyImage == nil:
		err = errors.New("no clipboard configured")
	default:
		err = c.cfg.CopyImage(img)
	}
	return c.copied("image", err)
}

// CopyResult puts the last analysis text on the clipboard.
func (c *Controller) CopyResult() error {
	text := c.State().Result
	var err error
	switch {
	case text == "":
		err = errors.New("no result to copy")
	case c.cfg.CopyText == nil:
		err = errors.New("no clipboard configured")
	default:
		err = c.cfg.CopyText(text)
	}
	return c.copied("result", err)
}

func (c *Controller) copied(what string, err error) error {
	c.update(func(s *State) {
		if err != nil {
			s.CopyStatus = msgCopyFailed
		} else {
			s.CopyStatus = msgCopied
		}
	})
	if err != nil {
		log.Printf("ui: copy %s failed: %v", what, err)
	}
	return err
}

// ApplyCrop replaces the active image with the selected region. sel is in
// the coordinates of a viewport of the given size that shows the image
// aspect-fit.
func (c *Controller) ApplyCrop(sel crop.Rect, viewport crop.Size) bool {
	applied := false
	c.update(func(s *State) {
		if s.Loading || s.Image == nil {
			return
		}
		out, ok := crop.Crop(s.Image, &sel, viewport)
		if !ok {
			return
		}
		s.Image = out
		applied = true
	})
	return applied
}

// AdjustFont changes the font size by delta points within limits and
// returns the new size.
func (c *Controller) AdjustFont(delta int) int {
	st := c.update(func(s *State) {
		n := s.FontSize + delta
		if n < minFontSize {
			n = minFontSize
		}
		if n > maxFontSize {
			n = maxFontSize
		}
		s.FontSize = n
	})
	return st.FontSize
}

func describeError(err error) string {
	var apiErr *llm.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Gemini error: %s", apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	default:
		msg := err.Error()
		if msg == "" {
			return msgNoResponse
		}
		return strings.ToUpper(msg[:1]) + msg[1:]
	}
}
