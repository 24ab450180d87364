package render

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// wrapText splits text into lines no wider than maxWidth pixels when drawn
// with face. Words longer than a line are broken between runes. An empty
// text still yields one (empty) line so every row keeps its place.
func wrapText(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	limit := fixed.I(maxWidth)

	var lines []string
	line := ""
	for _, w := range words {
		candidate := w
		if line != "" {
			candidate = line + " " + w
		}
		if font.MeasureString(face, candidate) <= limit {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
			line = ""
		}
		if font.MeasureString(face, w) <= limit {
			line = w
			continue
		}
		parts := breakWord(face, w, limit)
		lines = append(lines, parts[:len(parts)-1]...)
		line = parts[len(parts)-1]
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// breakWord cuts a single word into pieces that fit limit. Each piece has
// at least one rune.
func breakWord(face font.Face, w string, limit fixed.Int26_6) []string {
	var parts []string
	var cur []rune
	for _, r := range w {
		next := append(cur, r)
		if len(cur) > 0 && font.MeasureString(face, string(next)) > limit {
			parts = append(parts, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	return append(parts, string(cur))
}
