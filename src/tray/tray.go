package tray

import (
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"
)

// Config describes the resident tray icon and its menu actions.
type Config struct {
	Title        string
	Tooltip      string
	Hotkey       string
	OnCapture    func()
	OnOpenWindow func()
	OnExit       func()
}

// Tray is the resident menu bar / notification area icon.
type Tray struct {
	cfg  Config
	quit chan struct{}
	once sync.Once
}

var (
	mu         sync.Mutex
	ready      bool
	tooltip    string
	aboutItem  *systray.MenuItem
	aboutExtra string
	aboutHK    string
)

// New validates cfg and returns a Tray; call Run to show it.
func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		return nil, fmt.Errorf("tray: title is required")
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cfg.Title
	}
	if cfg.Hotkey != "" {
		SetAboutHotkey(cfg.Hotkey)
	}
	mu.Lock()
	if tooltip == "" {
		tooltip = cfg.Tooltip
	}
	mu.Unlock()
	return &Tray{cfg: cfg, quit: make(chan struct{})}, nil
}

// Run shows the icon and blocks until Quit. On macOS it must be called
// from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the icon and makes Run return.
func (t *Tray) Quit() {
	t.once.Do(func() {
		close(t.quit)
		systray.Quit()
	})
}

func (t *Tray) onReady() {
	systray.SetTemplateIcon(Icon(), Icon())
	systray.SetTitle("")

	mCapture := systray.AddMenuItem("Capture & Analyze", "Capture the screen and copy Gemini's description")
	mOpen := systray.AddMenuItem("Open Window", "Open the capture window")
	systray.AddSeparator()
	mAbout := systray.AddMenuItem(aboutText(), "")
	mAbout.Disable()
	mQuit := systray.AddMenuItem("Quit", "Quit Gemini Vision")

	mu.Lock()
	ready = true
	aboutItem = mAbout
	systray.SetTooltip(tooltip)
	mu.Unlock()
	log.Printf("tray: ready")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				if t.cfg.OnCapture != nil {
					t.cfg.OnCapture()
				}
			case <-mOpen.ClickedCh:
				if t.cfg.OnOpenWindow != nil {
					t.cfg.OnOpenWindow()
				}
			case <-mQuit.ClickedCh:
				t.Quit()
				return
			case <-t.quit:
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	mu.Lock()
	ready = false
	aboutItem = nil
	mu.Unlock()
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// UpdateTooltip changes the icon tooltip. Calls before the tray is ready
// are remembered and applied when it appears.
func UpdateTooltip(s string) {
	mu.Lock()
	defer mu.Unlock()
	tooltip = s
	if ready {
		systray.SetTooltip(s)
	}
}

// SetAboutHotkey records the hotkey shown in the menu's info line.
func SetAboutHotkey(hk string) {
	mu.Lock()
	aboutHK = hk
	mu.Unlock()
	refreshAbout()
}

// SetAboutExtra appends extra detail, such as the resident port, to the info line.
func SetAboutExtra(s string) {
	mu.Lock()
	aboutExtra = s
	mu.Unlock()
	refreshAbout()
}

func refreshAbout() {
	mu.Lock()
	defer mu.Unlock()
	if aboutItem != nil {
		aboutItem.SetTitle(aboutTextLocked())
	}
}

func aboutText() string {
	mu.Lock()
	defer mu.Unlock()
	return aboutTextLocked()
}

func aboutTextLocked() string {
	s := "Gemini Vision"
	if aboutHK != "" {
		s += " (" + aboutHK + ")"
	}
	if aboutExtra != "" {
		s += " - " + aboutExtra
	}
	return s
}

// CurrentTooltip returns the last tooltip set.
func CurrentTooltip() string {
	mu.Lock()
	defer mu.Unlock()
	return tooltip
}
