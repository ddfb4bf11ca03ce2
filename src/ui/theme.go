package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// scaledTheme wraps another theme and scales its text sizes.
type scaledTheme struct {
	fyne.Theme
	scale float32
}

func newScaledTheme(base fyne.Theme, scale float32) *scaledTheme {
	if base == nil {
		base = theme.DefaultTheme()
	}
	if scale <= 0 {
		scale = 1
	}
	return &scaledTheme{Theme: base, scale: scale}
}

func (t *scaledTheme) Size(name fyne.ThemeSizeName) float32 {
	s := t.Theme.Size(name)
	switch name {
	case theme.SizeNameText,
		theme.SizeNameHeadingText,
		theme.SizeNameSubHeadingText,
		theme.SizeNameCaptionText,
		theme.SizeNameInlineIcon:
		return s * t.scale
	}
	return s
}
