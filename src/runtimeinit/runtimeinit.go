// Package runtimeinit performs the startup steps shared by the resident and
// the standalone run-once process.
package runtimeinit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gemini-vision/src/clipboard"
	"gemini-vision/src/config"
	"gemini-vision/src/llm"
	"gemini-vision/src/logutil"
	"gemini-vision/src/notification"
)

const pingTimeout = 15 * time.Second

// ErrMissingAPIKey is wrapped by MissingKeyError.
var ErrMissingAPIKey = errors.New("API key not found")

type Options struct {
	LoadOptions config.LoadOptions
	// Prompt overrides PROMPT when non-blank.
	Prompt               string
	SetupLogging         func(bool) string
	ShowBlockingLLMError bool
	SkipPing             bool
	SkipClipboard        bool
}

// Result is the loaded configuration and the initialized client.
type Result struct {
	Config  *config.Config
	Client  *llm.Client
	LogPath string
}

// LLMConfig maps cfg onto a Gemini client configuration for apiKey.
func LLMConfig(cfg *config.Config, apiKey string) llm.Config {
	return llm.Config{
		APIKey:            apiKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		JPEGQuality:       cfg.JPEGQuality,
		MaxImageDimension: cfg.MaxImageDimension,
		Timeout:           time.Duration(cfg.AnalyzeDeadlineSec) * time.Second,
	}
}

// MissingKeyError explains where the API key was looked for.
func MissingKeyError(cfg *config.Config) error {
	return fmt.Errorf("%w: set %s, store it in key file %s or run 'gemini-vision set-key'", ErrMissingAPIKey, config.APIKeyEnvVar, cfg.APIKeyPath)
}

func Bootstrap(ctx context.Context, opts Options) (*Result, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if strings.TrimSpace(opts.Prompt) != "" {
		cfg.Prompt = opts.Prompt
	}

	res := &Result{Config: cfg}
	if opts.SetupLogging != nil {
		res.LogPath = opts.SetupLogging(cfg.EnableFileLogging)
	}

	if cfg.APIKey == "" {
		return nil, MissingKeyError(cfg)
	}
	log.Printf("runtimeinit: API key %s from %s", logutil.RedactKey(cfg.APIKey), cfg.APIKeySource)

	llmCfg := LLMConfig(cfg, cfg.APIKey)
	llm.Init(&llmCfg)
	res.Client = llm.New(llmCfg)

	if !opts.SkipPing {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := res.Client.Ping(pingCtx)
		cancel()
		if err != nil {
			if opts.ShowBlockingLLMError {
				notification.ShowBlockingError("Gemini unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease verify your API key and network connectivity.", err))
			}
			return nil, fmt.Errorf("startup check failed: %w", err)
		}
		log.Printf("runtimeinit: LLM ping succeeded")
	}

	if !opts.SkipClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}
	return res, nil
}
