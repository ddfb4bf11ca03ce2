package ui

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"gemini-vision/src/capture"
	"gemini-vision/src/clipboard"
	"gemini-vision/src/crop"
	"gemini-vision/src/signals"
	"gemini-vision/src/tray"
)

const (
	windowTitle = "Gemini Vision"
	// hideSettle gives the compositor time to remove the window before a grab.
	hideSettle = 250 * time.Millisecond

	placeholderIdle      = "Capture the screen to begin."
	placeholderCapturing = "Capturing..."
)

// Window is the capture, crop and analyze window.
type Window struct {
	app  fyne.App
	win  fyne.Window
	ctrl *Controller
	bus  *signals.Bus

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	visible bool

	placeholder   *widget.Label
	preview       *canvas.Image
	promptBox     *fyne.Container
	prompt        *promptEntry
	progress      *fyne.Container
	result        *widget.RichText
	resultScroll  *container.Scroll
	errorLabel    *widget.Label
	captureButton *widget.Button
	cropButton    *widget.Button
	analyzeButton *widget.Button
	keyEntry      *widget.Entry
	keyStatus     *widget.Label
	copyStatus    *widget.Label
	fontSize      int
}

// NewWindow builds the window on app. cfg.OnChange is replaced; the window
// renders every controller state itself.
func NewWindow(app fyne.App, cfg ControllerConfig, bus *signals.Bus) *Window {
	if bus == nil {
		bus = signals.NewBus(8)
	}
	w := &Window{app: app, bus: bus, fontSize: baseFontSize}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	cfg.OnChange = func(st State) { fyne.Do(func() { w.render(st) }) }
	if cfg.CopyText == nil {
		cfg.CopyText = clipboard.Write
	}
	if cfg.CopyImage == nil {
		cfg.CopyImage = clipboard.WriteImage
	}
	w.ctrl = NewController(cfg)

	w.win = app.NewWindow(windowTitle)
	w.win.SetContent(w.build())
	w.win.Resize(fyne.NewSize(560, 720))
	w.win.SetCloseIntercept(w.hide)
	w.win.SetMainMenu(w.mainMenu())
	w.addShortcuts()
	w.setupSystemTray()
	w.render(w.ctrl.State())
	return w
}

// Controller exposes the window's state owner.
func (w *Window) Controller() *Controller { return w.ctrl }

// Run shows the window and blocks in the fyne event loop until Quit.
func (w *Window) Run() {
	go w.bus.Dispatch(w.ctx, w.handlers())
	go w.ctrl.LoadKey()
	w.show()
	w.app.Run()
	w.cancel()
}

// HideForCapture hides the window while the screen is grabbed and returns
// a function that shows it again. Use it as capture.Options.BeforeCapture.
// It must not be called on the UI goroutine.
func (w *Window) HideForCapture(excluded []capture.Window) func() {
	log.Printf("ui: hiding window for capture (%d own windows reported)", len(excluded))
	fyne.DoAndWait(w.hide)
	time.Sleep(hideSettle)
	return func() { fyne.DoAndWait(w.show) }
}

func (w *Window) isVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *Window) show() {
	w.mu.Lock()
	w.visible = true
	w.mu.Unlock()
	w.win.Show()
	w.win.RequestFocus()
}

func (w *Window) hide() {
	w.mu.Lock()
	w.visible = false
	w.mu.Unlock()
	w.win.Hide()
}

func (w *Window) build() fyne.CanvasObject {
	w.placeholder = widget.NewLabelWithStyle(placeholderIdle, fyne.TextAlignCenter, fyne.TextStyle{})
	w.preview = canvas.NewImageFromImage(nil)
	w.preview.FillMode = canvas.ImageFillContain
	w.preview.SetMinSize(fyne.NewSize(320, 200))
	w.preview.Hide()
	bg := canvas.NewRectangle(theme.Color(theme.ColorNameInputBackground))
	bg.CornerRadius = 10
	imageArea := container.NewStack(bg, container.NewCenter(w.placeholder), w.preview)

	w.prompt = newPromptEntry(func() { w.bus.Post(signals.AnalyzeImage) })
	w.prompt.SetText(w.ctrl.State().Prompt)
	w.prompt.OnChanged = w.ctrl.SetPrompt
	w.promptBox = container.NewBorder(widget.NewLabel("Prompt"), nil, nil, nil, w.prompt)

	w.progress = container.NewVBox(widget.NewProgressBarInfinite(), widget.NewLabelWithStyle("Analyzing with Gemini...", fyne.TextAlignCenter, fyne.TextStyle{}))
	w.result = widget.NewRichTextFromMarkdown("")
	w.result.Wrapping = fyne.TextWrapWord
	w.resultScroll = container.NewVScroll(w.result)
	w.resultScroll.SetMinSize(fyne.NewSize(0, 180))
	w.errorLabel = widget.NewLabel("")
	w.errorLabel.Importance = widget.DangerImportance
	w.errorLabel.Wrapping = fyne.TextWrapWord
	status := container.NewStack(w.progress, w.resultScroll, w.errorLabel)

	w.captureButton = widget.NewButtonWithIcon("Capture Screen", theme.ViewFullScreenIcon(), func() { w.bus.Post(signals.CaptureScreen) })
	w.cropButton = widget.NewButtonWithIcon("Crop", theme.ContentCutIcon(), func() { w.bus.Post(signals.CropImage) })
	w.analyzeButton = widget.NewButtonWithIcon("Analyze", theme.SearchIcon(), func() { w.bus.Post(signals.AnalyzeImage) })
	w.analyzeButton.Importance = widget.HighImportance
	buttons := container.NewGridWithColumns(3, w.captureButton, w.cropButton, w.analyzeButton)
	w.copyStatus = widget.NewLabel("")
	w.copyStatus.Importance = widget.LowImportance

	w.keyEntry = widget.NewPasswordEntry()
	w.keyEntry.SetPlaceHolder("Enter your API key")
	w.keyEntry.OnChanged = w.ctrl.SetAPIKey
	w.keyStatus = widget.NewLabel("")
	save := widget.NewButtonWithIcon("Save Key", theme.DocumentSaveIcon(), func() {
		w.ctrl.SetAPIKey(w.keyEntry.Text)
		go w.ctrl.SaveKey()
	})
	keyBox := container.NewVBox(
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Gemini API Key", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		w.keyEntry,
		container.NewHBox(save, w.keyStatus),
	)

	bottom := container.NewVBox(w.promptBox, status, buttons, w.copyStatus, keyBox)
	return container.NewPadded(container.NewBorder(nil, bottom, nil, nil, imageArea))
}

// render updates every widget from st. It must run on the UI goroutine.
func (w *Window) render(st State) {
	if st.Image != nil {
		w.preview.Image = st.Image
		w.preview.Show()
		w.preview.Refresh()
		w.placeholder.Hide()
		w.promptBox.Show()
		w.cropButton.Show()
	} else {
		w.preview.Hide()
		w.placeholder.SetText(placeholderIdle)
		if st.Loading {
			w.placeholder.SetText(placeholderCapturing)
		}
		w.placeholder.Show()
		w.promptBox.Hide()
		w.cropButton.Hide()
	}

	w.progress.Hide()
	w.resultScroll.Hide()
	w.errorLabel.Hide()
	switch {
	case st.Loading && st.Image != nil && !st.Capturing:
		w.progress.Show()
	case st.Result != "":
		w.result.ParseMarkdown(st.Result)
		w.resultScroll.Show()
		w.resultScroll.ScrollToTop()
	case st.Error != "":
		w.errorLabel.SetText(st.Error)
		w.errorLabel.Show()
	}

	setEnabled(w.analyzeButton, st.CanAnalyze())
	setEnabled(w.captureButton, !st.Loading)
	setEnabled(w.cropButton, !st.Loading)

	if strings.TrimSpace(w.keyEntry.Text) != st.APIKey {
		w.keyEntry.SetText(st.APIKey)
	}
	w.keyStatus.SetText(st.KeyStatus)
	w.copyStatus.SetText(st.CopyStatus)

	if st.FontSize != w.fontSize {
		w.fontSize = st.FontSize
		w.app.Settings().SetTheme(newScaledTheme(theme.DefaultTheme(), st.FontScale()))
	}
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

// showCropSheet opens the crop dialog over the active image.
func (w *Window) showCropSheet() {
	st := w.ctrl.State()
	if st.Image == nil || st.Loading {
		return
	}

	var d *dialog.CustomDialog
	cropBtn := widget.NewButton("Crop Image", nil)
	cropBtn.Importance = widget.HighImportance
	cropBtn.Disable()
	area := newSelectionArea(st.Image, func(sel *crop.Rect) {
		setEnabled(cropBtn, sel != nil)
	})
	cropBtn.OnTapped = func() {
		if sel, viewport := area.Selection(); sel != nil {
			if !w.ctrl.ApplyCrop(*sel, viewport) {
				log.Printf("ui: crop rejected for selection %+v in %+v", *sel, viewport)
			}
		}
		d.Hide()
	}
	cancel := widget.NewButton("Cancel", func() { d.Hide() })

	content := container.NewBorder(
		widget.NewLabelWithStyle("Click and drag to select an area", fyne.TextAlignCenter, fyne.TextStyle{}),
		nil, nil, nil, area)
	d = dialog.NewCustomWithoutButtons("Crop", content, w.win)
	d.SetButtons([]fyne.CanvasObject{cancel, cropBtn})
	d.Resize(fyne.NewSize(1000, 600))
	d.Show()
}

func (w *Window) handlers() map[signals.Signal]func() {
	return map[signals.Signal]func(){
		signals.CaptureScreen: func() {
			// Show before the grab starts so HideForCapture never races a
			// pending show.
			fyne.DoAndWait(w.show)
			go func() {
				if w.ctrl.Capture(w.ctx) && w.ctrl.State().Error == "" {
					fyne.Do(func() { w.win.Canvas().Focus(w.prompt) })
				}
			}()
		},
		signals.CropImage:        func() { fyne.Do(w.showCropSheet) },
		signals.AnalyzeImage:     func() { go w.ctrl.Analyze(w.ctx) },
		signals.CopyImage:        func() { go w.ctrl.CopyImage() },
		signals.CopyResult:       func() { go w.ctrl.CopyResult() },
		signals.IncreaseFontSize: func() { w.ctrl.AdjustFont(1) },
		signals.DecreaseFontSize: func() { w.ctrl.AdjustFont(-1) },
		signals.OpenWindow:       func() { fyne.Do(w.show) },
		signals.Quit:             func() { fyne.Do(w.app.Quit) },
	}
}

func (w *Window) mainMenu() *fyne.MainMenu {
	post := func(s signals.Signal) func() { return func() { w.bus.Post(s) } }
	return fyne.NewMainMenu(
		fyne.NewMenu("Capture",
			fyne.NewMenuItem("Capture Screen", post(signals.CaptureScreen)),
			fyne.NewMenuItem("Crop", post(signals.CropImage)),
			fyne.NewMenuItem("Analyze", post(signals.AnalyzeImage)),
		),
		fyne.NewMenu("Edit",
			fyne.NewMenuItem("Copy Image", post(signals.CopyImage)),
			fyne.NewMenuItem("Copy Result", post(signals.CopyResult)),
		),
		fyne.NewMenu("View",
			fyne.NewMenuItem("Increase Font Size", post(signals.IncreaseFontSize)),
			fyne.NewMenuItem("Decrease Font Size", post(signals.DecreaseFontSize)),
		),
	)
}

func (w *Window) addShortcuts() {
	mod := fyne.KeyModifierShortcutDefault
	add := func(key fyne.KeyName, m fyne.KeyModifier, s signals.Signal) {
		w.win.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: m}, func(fyne.Shortcut) {
			w.bus.Post(s)
		})
	}
	add(fyne.KeyS, mod|fyne.KeyModifierShift, signals.CaptureScreen)
	add(fyne.KeyEqual, mod, signals.IncreaseFontSize)
	add(fyne.KeyEqual, mod|fyne.KeyModifierShift, signals.IncreaseFontSize)
	add(fyne.KeyMinus, mod, signals.DecreaseFontSize)
}

func (w *Window) setupSystemTray() {
	desk, ok := w.app.(desktop.App)
	if !ok {
		return
	}
	desk.SetSystemTrayIcon(fyne.NewStaticResource("gemini-vision.png", tray.IconPNG()))
	desk.SetSystemTrayMenu(fyne.NewMenu(windowTitle,
		fyne.NewMenuItem("Capture Screen", func() { w.bus.Post(signals.CaptureScreen) }),
		fyne.NewMenuItem("Show Window", func() { w.bus.Post(signals.OpenWindow) }),
	))
}
