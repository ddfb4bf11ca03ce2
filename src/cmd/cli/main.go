package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gemini-vision/src/capture"
	"gemini-vision/src/config"
	"gemini-vision/src/crop"
	"gemini-vision/src/logutil"
	"gemini-vision/src/runtimeinit"
)

const (
	maxFileSizeMB = 20
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

type cliOptions struct {
	filePath   string
	capture    bool
	region     string
	prompt     string
	jsonOutput bool
	verbose    bool
	apiKeyPath string
}

// analyzer is the part of llm.Client the CLI needs.
type analyzer interface {
	Analyze(ctx context.Context, img image.Image, prompt string) (string, error)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"gemini-vision-cli"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gemini-vision-cli",
		Short:         "Describe an image or a screen capture with Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to a PNG or JPEG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.capture, "capture", false, "Capture the primary display instead of reading a file")
	cmd.Flags().StringVar(&opts.region, "region", "", "Only analyze this pixel rectangle of the image: x,y,width,height")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Prompt sent with the image")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (overrides GEMINI_API_KEY_FILE)")
	cmd.MarkFlagsOneRequired("file", "capture")
	cmd.MarkFlagsMutuallyExclusive("file", "capture")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(stderr)
		fmt.Fprintf(stderr, "[verbose] Starting gemini-vision-cli\n")
	}

	res, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:   config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath},
		Prompt:        opts.prompt,
		SkipPing:      true,
		SkipClipboard: true,
	})
	if err != nil {
		return err
	}
	cfg := res.Config
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Config loaded: Model=%s\n", cfg.Model)
		fmt.Fprintf(stderr, "[verbose] Effective API key path: %s\n", cfg.APIKeyPath)
		fmt.Fprintf(stderr, "[verbose] API key %s from %s\n", logutil.RedactKey(cfg.APIKey), cfg.APIKeySource)
	}

	img, source, size, err := loadImage(ctx, opts, stdin, stderr)
	if err != nil {
		return err
	}
	if opts.region != "" {
		if img, err = cropRegion(img, opts.region); err != nil {
			return err
		}
		if opts.verbose {
			b := img.Bounds()
			fmt.Fprintf(stderr, "[verbose] Cropped to region %s (%dx%d)\n", opts.region, b.Dx(), b.Dy())
		}
	}

	deadline := time.Duration(cfg.AnalyzeDeadlineSec) * time.Second
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	return analyze(ctx, res.Client, img, cfg.Prompt, source, cfg.Model, size, opts, stdout, stderr)
}

func loadImage(ctx context.Context, opts cliOptions, stdin io.Reader, stderr io.Writer) (image.Image, string, int, error) {
	if opts.capture {
		if opts.verbose {
			fmt.Fprintf(stderr, "[verbose] Capturing the primary display\n")
		}
		img, err := capture.New(capture.NewScreenshotSource(), capture.Options{}).CaptureScreen(ctx)
		if err != nil {
			return nil, "", 0, fmt.Errorf("capture failed: %w", err)
		}
		return img, "screen", len(img.Pix), nil
	}

	data, err := readInput(opts.filePath, stdin, opts.verbose, stderr)
	if err != nil {
		return nil, "", 0, err
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, "", 0, err
	}
	if opts.verbose {
		b := img.Bounds()
		fmt.Fprintf(stderr, "[verbose] Decoded %dx%d image (%s)\n", b.Dx(), b.Dy(), humanize.Bytes(uint64(len(data))))
	}
	return img, opts.filePath, len(data), nil
}

func readInput(filePath string, stdin io.Reader, verbose bool, stderr io.Writer) ([]byte, error) {
	var data []byte
	var err error
	if filePath == "-" {
		if verbose {
			fmt.Fprintf(stderr, "[verbose] Reading image from stdin\n")
		}
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if verbose {
			fmt.Fprintf(stderr, "[verbose] Reading image from file: %s\n", filePath)
		}
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(data) == 0 {
		return nil, errors.New("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, error) {
	if !bytes.HasPrefix(data, pngMagic) && !bytes.HasPrefix(data, jpegMagic) {
		return nil, errors.New("input is not a PNG or JPEG file (invalid magic number)")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// parseRegion reads "x,y,width,height" in pixels.
func parseRegion(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: want x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: width and height must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// cropRegion cuts the region out of img. Parts outside the image are dropped.
func cropRegion(img image.Image, region string) (image.Image, error) {
	r, err := parseRegion(region)
	if err != nil {
		return nil, err
	}
	out, ok := crop.Extract(img, r)
	if !ok {
		b := img.Bounds()
		return nil, fmt.Errorf("region %s lies outside the %dx%d image", region, b.Dx(), b.Dy())
	}
	return out, nil
}

func analyze(ctx context.Context, client analyzer, img image.Image, prompt, source, model string, size int, opts cliOptions, stdout, stderr io.Writer) error {
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Sending image to %s\n", model)
	}

	start := time.Now()
	text, err := client.Analyze(ctx, img, prompt)
	elapsed := time.Since(start)
	if err != nil {
		if opts.verbose {
			fmt.Fprintf(stderr, "[verbose] Analysis failed after %v: %v\n", elapsed, err)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Analysis completed in %v, %d characters\n", elapsed, len(text))
	}

	return outputResult(stdout, AnalysisResult{
		ID:         uuid.NewString(),
		Text:       text,
		Source:     source,
		Model:      model,
		Prompt:     prompt,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Duration:   elapsed.Seconds(),
		CharCount:  len([]rune(text)),
		InputBytes: humanize.Bytes(uint64(size)),
	}, opts.jsonOutput)
}

type AnalysisResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Model      string  `json:"model"`
	Prompt     string  `json:"prompt"`
	Timestamp  string  `json:"timestamp"`
	Duration   float64 `json:"duration_seconds"`
	CharCount  int     `json:"character_count"`
	InputBytes string  `json:"input_size"`
}

func outputResult(w io.Writer, result AnalysisResult, jsonOutput bool) error {
	if !jsonOutput {
		_, err := fmt.Fprint(w, result.Text)
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "capture", "region", "prompt", "json", "verbose", "api-key-path"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}
