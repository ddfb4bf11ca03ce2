package ui

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"gemini-vision/src/crop"
	"gemini-vision/src/llm"
	"gemini-vision/src/session"
)

type memStore struct {
	mu  sync.Mutex
	key string
	err error
}

func (m *memStore) Save(k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.key = k
	return nil
}

func (m *memStore) Load() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, m.key != ""
}

func captureOf(img image.Image, err error) session.CaptureFunc {
	return func(context.Context) (image.Image, error) { return img, err }
}

func analyzerOf(text string, err error, gotKey *string) func(string) session.AnalyzeFunc {
	return func(key string) session.AnalyzeFunc {
		if gotKey != nil {
			*gotKey = key
		}
		return func(context.Context, image.Image, string) (string, error) { return text, err }
	}
}

func TestControllerDefaults(t *testing.T) {
	c := NewController(ControllerConfig{})
	st := c.State()
	if st.Prompt != llm.DefaultPrompt {
		t.Errorf("default prompt = %q", st.Prompt)
	}
	if st.FontSize != baseFontSize || st.FontScale() != 1 {
		t.Errorf("font size = %d scale %v", st.FontSize, st.FontScale())
	}
	if st.CanAnalyze() {
		t.Error("analyze should be unavailable without an image")
	}
}

func TestControllerCapture(t *testing.T) {
	var states []State
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	c := NewController(ControllerConfig{
		Capture:  captureOf(img, nil),
		OnChange: func(s State) { states = append(states, s) },
	})

	if !c.Capture(context.Background()) {
		t.Fatal("capture did not start")
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 published states, got %d", len(states))
	}
	if !states[0].Loading || !states[0].Capturing {
		t.Errorf("first state should be capturing: %+v", states[0])
	}
	st := c.State()
	if st.Image != img || st.Loading || st.Error != "" {
		t.Errorf("unexpected state after capture: %+v", st)
	}
	if !st.CanAnalyze() {
		t.Error("analyze should be available after capture")
	}
}

func TestControllerCaptureFailure(t *testing.T) {
	c := NewController(ControllerConfig{Capture: captureOf(nil, errors.New("permission denied"))})
	c.Capture(context.Background())
	st := c.State()
	if st.Error != "Capture failed: permission denied" {
		t.Errorf("error = %q", st.Error)
	}
	if st.Image != nil || st.Loading {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestControllerAnalyzeWithoutImage(t *testing.T) {
	c := NewController(ControllerConfig{NewAnalyzer: analyzerOf("x", nil, nil)})
	if c.Analyze(context.Background()) {
		t.Fatal("analyze should not start without an image")
	}
}

func TestControllerAnalyzeMissingKey(t *testing.T) {
	called := false
	c := NewController(ControllerConfig{
		Capture: captureOf(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil),
		NewAnalyzer: func(string) session.AnalyzeFunc {
			called = true
			return nil
		},
	})
	c.Capture(context.Background())
	if !c.Analyze(context.Background()) {
		t.Fatal("analyze should report it handled the request")
	}
	if called {
		t.Error("analyzer built without a key")
	}
	if st := c.State(); st.Error != msgMissingKey || st.Loading {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestControllerAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		err        error
		wantResult string
		wantError  string
	}{
		{"success", "A **cat**.", nil, "A **cat**.", ""},
		{"empty", "", nil, msgNoResponse, ""},
		{"api error", "", &llm.APIError{StatusCode: 400, Message: "API key not valid"}, "", "Gemini error: API key not valid"},
		{"timeout", "", context.DeadlineExceeded, "", "Request timed out."},
		{"other", "", errors.New("network request failed"), "", "Network request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			c := NewController(ControllerConfig{
				Capture:     captureOf(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil),
				NewAnalyzer: analyzerOf(tt.text, tt.err, &gotKey),
			})
			c.Capture(context.Background())
			c.SetAPIKey("  key-123 ")
			c.Analyze(context.Background())

			if gotKey != "key-123" {
				t.Errorf("analyzer key = %q", gotKey)
			}
			st := c.State()
			if st.Result != tt.wantResult || st.Error != tt.wantError {
				t.Errorf("result %q error %q, want %q %q", st.Result, st.Error, tt.wantResult, tt.wantError)
			}
			if st.Loading {
				t.Error("still loading")
			}
		})
	}
}

func TestControllerAnalyzeUsesPrompt(t *testing.T) {
	var got string
	c := NewController(ControllerConfig{
		Capture: captureOf(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil),
		NewAnalyzer: func(string) session.AnalyzeFunc {
			return func(_ context.Context, _ image.Image, prompt string) (string, error) {
				got = prompt
				return "ok", nil
			}
		},
	})
	c.Capture(context.Background())
	c.SetAPIKey("k")
	c.SetPrompt("Read the error message")
	c.Analyze(context.Background())
	if got != "Read the error message" {
		t.Errorf("prompt = %q", got)
	}
}

func TestControllerApplyCrop(t *testing.T) {
	c := NewController(ControllerConfig{Capture: captureOf(image.NewRGBA(image.Rect(0, 0, 200, 100)), nil)})

	if c.ApplyCrop(crop.Rect{Width: 10, Height: 10}, crop.Size{Width: 200, Height: 100}) {
		t.Fatal("crop applied without an image")
	}
	c.Capture(context.Background())

	if !c.ApplyCrop(crop.Rect{X: 0, Y: 0, Width: 100, Height: 50}, crop.Size{Width: 200, Height: 100}) {
		t.Fatal("crop not applied")
	}
	if b := c.State().Image.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("cropped size = %v", b)
	}
	if c.ApplyCrop(crop.Rect{Width: 10, Height: 10}, crop.Size{}) {
		t.Error("crop applied with an empty viewport")
	}
}

func TestControllerAdjustFont(t *testing.T) {
	c := NewController(ControllerConfig{})
	if got := c.AdjustFont(1); got != baseFontSize+1 {
		t.Errorf("increase = %d", got)
	}
	for i := 0; i < 100; i++ {
		c.AdjustFont(1)
	}
	if got := c.State().FontSize; got != maxFontSize {
		t.Errorf("font not clamped high: %d", got)
	}
	for i := 0; i < 100; i++ {
		c.AdjustFont(-1)
	}
	if got := c.State().FontSize; got != minFontSize {
		t.Errorf("font not clamped low: %d", got)
	}
}

func TestControllerKeys(t *testing.T) {
	store := &memStore{key: "stored-key"}
	c := NewController(ControllerConfig{Keys: store})

	c.LoadKey()
	if got := c.State().APIKey; got != "stored-key" {
		t.Errorf("loaded key = %q", got)
	}

	c.SetAPIKey("new-key")
	if err := c.SaveKey(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.key != "new-key" || c.State().KeyStatus != msgKeySaved {
		t.Errorf("store %q status %q", store.key, c.State().KeyStatus)
	}

	store.err = errors.New("keychain locked")
	if err := c.SaveKey(); err == nil {
		t.Fatal("expected save error")
	}
	if c.State().KeyStatus != msgKeyNotSaved {
		t.Errorf("status = %q", c.State().KeyStatus)
	}
}

func TestControllerSaveEmptyKey(t *testing.T) {
	c := NewController(ControllerConfig{Keys: &memStore{}})
	err := c.SaveKey()
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

func TestControllerCopy(t *testing.T) {
	var gotText string
	var gotImage image.Image
	c := NewController(ControllerConfig{
		Capture:     captureOf(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil),
		NewAnalyzer: analyzerOf("A chart.", nil, nil),
		CopyText:    func(s string) error { gotText = s; return nil },
		CopyImage:   func(img image.Image) error { gotImage = img; return nil },
	})

	if err := c.CopyImage(); err == nil {
		t.Error("copying without an image should fail")
	}
	if c.State().CopyStatus != msgCopyFailed {
		t.Errorf("status = %q", c.State().CopyStatus)
	}

	c.SetAPIKey("key")
	c.Capture(context.Background())
	c.Analyze(context.Background())

	if err := c.CopyImage(); err != nil || gotImage == nil {
		t.Fatalf("CopyImage: %v", err)
	}
	if err := c.CopyResult(); err != nil || gotText != "A chart." {
		t.Fatalf("CopyResult: %v, text %q", err, gotText)
	}
	if c.State().CopyStatus != msgCopied {
		t.Errorf("status = %q", c.State().CopyStatus)
	}
}

func TestControllerCopyFailure(t *testing.T) {
	c := NewController(ControllerConfig{
		Capture:   captureOf(image.NewRGBA(image.Rect(0, 0, 4, 4)), nil),
		CopyImage: func(image.Image) error { return errors.New("clipboard unavailable") },
	})
	c.Capture(context.Background())
	if err := c.CopyImage(); err == nil {
		t.Fatal("expected clipboard error")
	}
	if c.State().CopyStatus != msgCopyFailed {
		t.Errorf("status = %q", c.State().CopyStatus)
	}
}
