package model

import (
	"fmt"
	"strings"
)

// Theme is the colour scheme of a rendered image. Every render produces
// both variants.
type Theme int

const (
	ThemeDark Theme = iota
	ThemeLight
)

// Themes lists every theme in render order.
func Themes() []Theme {
	return []Theme{ThemeDark, ThemeLight}
}

func (t Theme) String() string {
	if t == ThemeLight {
		return "light"
	}
	return "dark"
}

// ParseTheme accepts "dark" and "light"; empty means dark.
func ParseTheme(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dark":
		return ThemeDark, nil
	case "light":
		return ThemeLight, nil
	default:
		return ThemeDark, fmt.Errorf("model: unknown theme %q", s)
	}
}

// ImageRef points at the two persisted variants of one rendered image.
type ImageRef struct {
	Dark  string
	Light string
}

// Path returns the file for the requested theme.
func (r ImageRef) Path(t Theme) string {
	if t == ThemeLight {
		return r.Light
	}
	return r.Dark
}

func (r ImageRef) IsZero() bool {
	return r.Dark == "" && r.Light == ""
}

// Paths returns both variants, dark first.
func (r ImageRef) Paths() []string {
	return []string{r.Dark, r.Light}
}
