package render

import (
	"image/color"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// Palette is the colour scheme of one theme.
type Palette struct {
	Text      color.RGBA
	Bg        color.RGBA
	Primary   color.RGBA
	Secondary color.RGBA
	Accent    color.RGBA
}

var (
	darkPalette = Palette{
		Text:      rgb(0xe5, 0xec, 0xf0),
		Bg:        rgb(0x0b, 0x10, 0x14),
		Primary:   rgb(0xa6, 0xbf, 0xce),
		Secondary: rgb(0x37, 0x3a, 0x67),
		Accent:    rgb(0x82, 0x77, 0xb6),
	}
	lightPalette = Palette{
		Text:      rgb(0x0f, 0x16, 0x1a),
		Bg:        rgb(0xeb, 0xf0, 0xf4),
		Primary:   rgb(0x31, 0x4a, 0x59),
		Secondary: rgb(0x98, 0x9b, 0xc8),
		Accent:    rgb(0x53, 0x49, 0x88),
	}
)

// PaletteFor returns the palette of a theme.
func PaletteFor(t model.Theme) Palette {
	if t == model.ThemeLight {
		return lightPalette
	}
	return darkPalette
}

// LessonTypeColor is the accent used for the lesson type label. The mapping
// is the same for both themes.
func LessonTypeColor(t model.LessonType) color.RGBA {
	switch t {
	case model.LessonPractice:
		return rgb(0x22, 0xb9, 0x57)
	case model.LessonLab:
		return rgb(0xd0, 0x1e, 0xb2)
	default:
		return rgb(0xff, 0x60, 0x00)
	}
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
