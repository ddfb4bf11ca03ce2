package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"gemini-vision/src/capture"
	"gemini-vision/src/config"
	"gemini-vision/src/eventloop"
	"gemini-vision/src/hotkey"
	"gemini-vision/src/llm"
	"gemini-vision/src/logutil"
	"gemini-vision/src/notification"
	"gemini-vision/src/runtimeinit"
	"gemini-vision/src/secret"
	"gemini-vision/src/session"
	"gemini-vision/src/signals"
	"gemini-vision/src/singleinstance"
	"gemini-vision/src/tray"
	"gemini-vision/src/ui"
)

const (
	appID = "com.gemini-vision.app"
	// delegationSlack is added to the analysis deadline when waiting on the resident.
	delegationSlack = 10 * time.Second
)

var stdout io.Writer = os.Stdout

func init() {
	// systray and fyne both need the main OS thread.
	runtime.LockOSThread()
}

type mainOptions struct {
	runOnce    bool
	runOnceStd bool
	apiKeyPath string
	prompt     string
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, req singleinstance.Request) (bool, string, error)
}

func main() {
	enableDPIAwareness()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gemini-vision",
		Short:         "Capture the screen and describe it with Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.runOnce || opts.runOnceStd {
				return runOnceMode(*opts)
			}
			return runResident(*opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (overrides GEMINI_API_KEY_FILE)")
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture and analyze once, copy the result to the clipboard, and exit")
	cmd.Flags().BoolVar(&opts.runOnceStd, "run-once-std", false, "Capture and analyze once, print the result to stdout, and exit")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Prompt sent with the capture (defaults to PROMPT or the built-in prompt)")

	cmd.AddCommand(newWindowCmd(opts), newSetKeyCmd(opts))
	return cmd
}

func newWindowCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "window",
		Short: "Open the capture and analysis window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindow(*opts)
		},
	}
}

func newSetKeyCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key [api-key]",
		Short: "Store the Gemini API key in the system keychain (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read API key: %w", err)
				}
				key = line
			}
			return setKey(*opts, key, secret.NewKeyringStore(), cmd.OutOrStdout())
		},
	}
}

// setKey saves key to the keychain, falling back to the key file.
func setKey(opts mainOptions, key string, keyring secret.Store, out io.Writer) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath, Keyring: keyring})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	err = keyring.Save(key)
	if err == nil {
		fmt.Fprintf(out, "API key %s saved to the system keychain\n", logutil.RedactKey(key))
		return nil
	}
	log.Printf("set-key: keychain unavailable: %v", err)
	if err := (secret.FileStore{Path: cfg.APIKeyPath}).Save(key); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	fmt.Fprintf(out, "API key %s saved to %s\n", logutil.RedactKey(key), cfg.APIKeyPath)
	return nil
}

// normalizeLegacyArgs maps single-dash long flags to their GNU form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	legacy := []string{"run-once-std", "run-once", "api-key-path", "prompt"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range legacy {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}

// handleRunOnceWithDelegation hands req to a resident when one answers and
// calls fallback otherwise.
func handleRunOnceWithDelegation(req singleinstance.Request, client runOnceClient, timeout time.Duration, fallback func()) {
	if timeout <= 0 {
		timeout = session.DefaultDeadline + delegationSlack
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	delegated, text, err := client.TryRunOnce(ctx, req)
	if err != nil {
		log.Printf("Delegation error: %v; falling back to standalone", err)
		fallback()
		return
	}
	if !delegated {
		log.Printf("No resident detected (not delegated), running standalone")
		fallback()
		return
	}
	log.Printf("Delegated to resident")
	if req.OutputToStdout {
		fmt.Fprint(stdout, text)
	}
}

func loadConfig(opts mainOptions) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if strings.TrimSpace(opts.prompt) != "" {
		cfg.Prompt = opts.prompt
	}
	return cfg, nil
}

func bootstrapOptions(opts mainOptions) runtimeinit.Options {
	return runtimeinit.Options{
		LoadOptions:  config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath},
		Prompt:       opts.prompt,
		SetupLogging: logutil.Setup,
	}
}

func captureFunc(c *capture.Capturer) session.CaptureFunc {
	return func(ctx context.Context) (image.Image, error) {
		img, err := c.CaptureScreen(ctx)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
}

func deadline(cfg *config.Config) time.Duration {
	if cfg.AnalyzeDeadlineSec > 0 {
		return time.Duration(cfg.AnalyzeDeadlineSec) * time.Second
	}
	return session.DefaultDeadline
}

func runOnceMode(opts mainOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	req := singleinstance.Request{OutputToStdout: opts.runOnceStd, Prompt: strings.TrimSpace(opts.prompt)}
	client := singleinstance.NewClient(singleinstance.PortRange{Start: cfg.PortStart, End: cfg.PortEnd})

	var runErr error
	handleRunOnceWithDelegation(req, client, deadline(cfg)+delegationSlack, func() {
		runErr = runStandalone(opts, req.OutputToStdout)
	})
	return runErr
}

// runStandalone captures and analyzes once in this process.
func runStandalone(opts mainOptions, outputToStdout bool) error {
	bo := bootstrapOptions(opts)
	bo.SkipPing = true
	bo.SkipClipboard = outputToStdout
	res, err := runtimeinit.Bootstrap(context.Background(), bo)
	if err != nil {
		return err
	}
	cfg := res.Config

	var target session.ResultTarget = session.ClipboardTarget{}
	if outputToStdout {
		target = session.StdoutTarget{Writer: stdout}
	}
	log.Printf("Running once with model %s, deadline %s", cfg.Model, deadline(cfg))

	capturer := capture.New(capture.NewScreenshotSource(), capture.Options{})
	run, err := session.Execute(context.Background(), session.Options{
		Deadline: deadline(cfg),
		Capture:  captureFunc(capturer),
		Analyze:  res.Client.Analyze,
		Prompt:   cfg.Prompt,
		Target:   target,
	})
	if err != nil {
		return err
	}
	log.Printf("Run %s completed in %s (%d chars)", run.ID, run.Elapsed.Round(time.Millisecond), len(run.Text))
	if !outputToStdout {
		notification.Show("Analysis copied", run.Text)
	}
	return nil
}

func runResident(opts mainOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ports := singleinstance.PortRange{Start: cfg.PortStart, End: cfg.PortEnd}
	if port, ok := singleinstance.DetectResidentPort(context.Background(), ports); ok {
		fmt.Fprintf(stdout, "gemini-vision is already running on port %d\n", port)
		return nil
	}

	bo := bootstrapOptions(opts)
	bo.ShowBlockingLLMError = true
	res, err := runtimeinit.Bootstrap(context.Background(), bo)
	if err != nil {
		if errors.Is(err, runtimeinit.ErrMissingAPIKey) {
			notification.ShowBlockingError("Gemini Vision", err.Error())
		}
		return err
	}
	cfg = res.Config
	logPath := res.LogPath
	logMonitorConfiguration()

	log.Printf("Gemini Vision initialized")
	log.Printf("Using model: %s", cfg.Model)
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Analyze deadline: %s", deadline(cfg))
	if logPath != "" {
		tray.SetAboutExtra("log: " + logPath)
	}

	capturer := capture.New(capture.NewScreenshotSource(), capture.Options{})
	tooltip := fmt.Sprintf("Gemini Vision - Press %s to capture", cfg.Hotkey)
	loop := eventloop.New(cfg, eventloop.Pipeline{
		Capture: captureFunc(capturer),
		Analyze: llm.Analyze,
		Prompt:  cfg.Prompt,
	}, eventloop.Options{
		SetTooltip: tray.UpdateTooltip,
		Notify:     notification.Show,
	})
	loop.SetDefaultTooltip(tooltip)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trayIcon, err := tray.New(tray.Config{
		Title:        "Gemini Vision",
		Tooltip:      tooltip,
		Hotkey:       cfg.Hotkey,
		OnCapture:    loop.Trigger,
		OnOpenWindow: func() { openWindowProcess(opts) },
		OnExit:       cancel,
	})
	if err != nil {
		return err
	}

	if err := loop.StartHotkey(cfg.Hotkey); err != nil {
		log.Printf("hotkey disabled: %v", err)
		notification.Show("Gemini Vision", fmt.Sprintf("Hotkey %q unavailable: %v", cfg.Hotkey, err))
	}
	defer hotkey.Stop()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
		case <-ctx.Done():
		}
		trayIcon.Quit()
	}()

	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event loop stopped: %v", err)
			notification.ShowBlockingError("Gemini Vision", fmt.Sprintf("Resident stopped: %v", err))
		}
		trayIcon.Quit()
	}()

	trayIcon.Run()
	return nil
}

// openWindowProcess starts the window mode in its own process; fyne and the
// resident tray cannot share the main thread.
func openWindowProcess(opts mainOptions) {
	exe, err := os.Executable()
	if err != nil {
		log.Printf("open window: %v", err)
		return
	}
	args := []string{"window"}
	if opts.apiKeyPath != "" {
		args = append(args, "--api-key-path", opts.apiKeyPath)
	}
	cmd := exec.Command(exe, args...)
	if err := cmd.Start(); err != nil {
		log.Printf("open window: %v", err)
		return
	}
	go func() { _ = cmd.Wait() }()
}

func runWindow(opts mainOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logutil.Setup(cfg.EnableFileLogging)

	var win *ui.Window
	capturer := capture.New(capture.NewScreenshotSource(), capture.Options{
		BeforeCapture: func(excluded []capture.Window) func() {
			if win == nil {
				return nil
			}
			return win.HideForCapture(excluded)
		},
	})

	a := app.NewWithID(appID)
	win = ui.NewWindow(a, ui.ControllerConfig{
		Capture: captureFunc(capturer),
		NewAnalyzer: func(apiKey string) session.AnalyzeFunc {
			return llm.New(runtimeinit.LLMConfig(cfg, apiKey)).Analyze
		},
		Keys:     cfg.KeyStore(secret.NewKeyringStore()),
		Prompt:   cfg.Prompt,
		Deadline: deadline(cfg),
	}, signals.NewBus(8))
	if cfg.APIKey != "" {
		win.Controller().SetAPIKey(cfg.APIKey)
	}

	log.Printf("Window mode started with model %s", cfg.Model)
	win.Run()
	return nil
}
