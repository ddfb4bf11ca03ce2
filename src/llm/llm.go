package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
	DefaultPrompt  = "Describe the captured screen in detail using markdown."

	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 1 * time.Second
	maxResponseBytes   = 10 << 20
	retryJitterFrac   = 0.3
	apiKeyHeader      = "x-goog-api-key"
	jpegMimeType      = "image/jpeg"
	contentTypeJSON   = "application/json"
)

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	JPEGQuality       int
	MaxImageDimension int
	Timeout           time.Duration
	// MaxAttempts counts the first request too; 1 disables retries.
	MaxAttempts       int
	RetryDelay        time.Duration
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client with defaults filled in for unset fields.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

var defaultClient *Client

// Init configures the package-level client used by Ping and Analyze.
func Init(cfg *Config) {
	if cfg == nil {
		defaultClient = nil
		return
	}
	defaultClient = New(*cfg)
}

// Ping validates the package-level client's key and model.
func Ping(ctx context.Context) error {
	if defaultClient == nil {
		return errors.New("LLM client not initialized")
	}
	return defaultClient.Ping(ctx)
}

// Analyze sends img and prompt with the package-level client.
func Analyze(ctx context.Context, img image.Image, prompt string) (string, error) {
	if defaultClient == nil {
		return "", errors.New("LLM client not initialized")
	}
	return defaultClient.Analyze(ctx, img, prompt)
}

// Gemini request structures
type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (c *Client) validate() error {
	if c.cfg.APIKey == "" {
		return errors.New("API key is required")
	}
	if c.cfg.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// Analyze sends the image as JPEG together with prompt and returns the
// model's text. When the response does not have the expected shape the raw
// response body is returned instead.
func (c *Client) Analyze(ctx context.Context, img image.Image, prompt string) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	if img == nil {
		return "", errors.New("no image to analyze")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	jpegData, err := EncodeJPEG(img, c.cfg.JPEGQuality, c.cfg.MaxImageDimension)
	if err != nil {
		return "", fmt.Errorf("could not convert image to JPEG data: %w", err)
	}
	b := img.Bounds()
	log.Printf("llm: sending %dx%d image as %s JPEG to %s", b.Dx(), b.Dy(), humanize.Bytes(uint64(len(jpegData))), c.cfg.Model)

	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: jpegMimeType, Data: base64.StdEncoding.EncodeToString(jpegData)}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(c.cfg.Model))
	raw, status, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("network request failed: %w", err)
	}
	if status < 200 || status > 299 {
		if apiErr := parseAPIError(raw, status); apiErr != nil {
			return "", apiErr
		}
		return "", fmt.Errorf("API returned status %d", status)
	}
	log.Printf("llm: received %s response", humanize.Bytes(uint64(len(raw))))
	return ParseResponse(raw), nil
}

// Ping fetches the configured model's metadata to check key and model.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Model))
	raw, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if status != http.StatusOK {
		if apiErr := parseAPIError(raw, status); apiErr != nil {
			return apiErr
		}
		return fmt.Errorf("ping returned status %d", status)
	}
	return nil
}

// do performs the request with retries on network errors and retryable
// statuses. It returns the last response body and status.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := jitter(time.Duration(float64(c.cfg.RetryDelay) * (1.5 * float64(attempt))))
			log.Printf("llm: retrying in %v (attempt %d/%d): %v", delay, attempt+1, c.cfg.MaxAttempts, lastErr)
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		raw, status, err := c.once(ctx, method, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			lastErr = err
			continue
		}
		if isRetryableStatus(status) && attempt < c.cfg.MaxAttempts-1 {
			lastErr = fmt.Errorf("API returned status %d", status)
			continue
		}
		return raw, status, nil
	}
	return "", 0, fmt.Errorf("failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, endpoint string, body []byte) (string, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), resp.StatusCode, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func jitter(d time.Duration) time.Duration {
	j := float64(d) * retryJitterFrac * (2*rand.Float64() - 1)
	if out := time.Duration(float64(d) + j); out > 0 {
		return out
	}
	return 0
}
