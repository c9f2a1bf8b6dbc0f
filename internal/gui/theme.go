package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// sipprTheme is the default theme with the lab's green as primary colour.
type sipprTheme struct{}

var labGreen = color.NRGBA{R: 0x2E, G: 0x7D, B: 0x32, A: 0xFF}

func (t *sipprTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return labGreen
	case theme.ColorNameSuccess:
		return color.NRGBA{R: 0x43, G: 0xA0, B: 0x47, A: 0xFF}
	case theme.ColorNameError:
		return color.NRGBA{R: 0xD3, G: 0x2F, B: 0x2F, A: 0xFF}
	case theme.ColorNameWarning:
		return color.NRGBA{R: 0xF5, G: 0x7C, B: 0x00, A: 0xFF}
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (t *sipprTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *sipprTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *sipprTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameText:
		return 13
	case theme.SizeNameHeadingText:
		return 20
	default:
		return theme.DefaultTheme().Size(name)
	}
}
