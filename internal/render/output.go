package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// Placeholder file names inside the assets directory.
const (
	PlaceholderDark  = "default_img_dark.png"
	PlaceholderLight = "default_img_light.png"
)

// Output owns the directory with generated images and knows where the
// static assets (fonts, placeholders) live. File names are derived from
// the cache key, so no index is needed to find a rendered image.
type Output struct {
	dir    string
	assets string
}

func NewOutput(dir, assets string) *Output {
	return &Output{dir: dir, assets: assets}
}

func (o *Output) Dir() string       { return o.dir }
func (o *Output) AssetsDir() string { return o.assets }

// EnsureDirs creates the output and assets directories. Safe to call
// repeatedly.
func (o *Output) EnsureDirs() error {
	if o.dir == "" || o.assets == "" {
		return errors.New("render: output and assets directories are required")
	}
	for _, dir := range []string{o.assets, o.dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	appLog.Info("render directories ready", "output", o.dir, "assets", o.assets)
	return nil
}

// DayPath returns DAY_{group}_{subgroup}_{day}_{parity}_{theme}.png.
func (o *Output) DayPath(day model.Day, theme model.Theme) string {
	name := fmt.Sprintf("DAY_%s_%s_%d_%s_%s.png",
		sanitize(day.Group), sanitize(day.Subgroup), day.Index, day.Parity, theme)
	return filepath.Join(o.dir, name)
}

// WeekPath returns WEEK_{group}_{subgroup}_{parity}_{theme}.png.
func (o *Output) WeekPath(key model.GroupKey, parity model.Parity, theme model.Theme) string {
	name := fmt.Sprintf("WEEK_%s_%s_%s_%s.png",
		sanitize(key.Group), sanitize(key.Subgroup), parity, theme)
	return filepath.Join(o.dir, name)
}

// PlaceholderPath returns the shared "no classes" image for a theme.
func (o *Output) PlaceholderPath(theme model.Theme) string {
	if theme == model.ThemeLight {
		return filepath.Join(o.assets, PlaceholderLight)
	}
	return filepath.Join(o.assets, PlaceholderDark)
}

func (o *Output) PlaceholderRef() model.ImageRef {
	return model.ImageRef{
		Dark:  o.PlaceholderPath(model.ThemeDark),
		Light: o.PlaceholderPath(model.ThemeLight),
	}
}

// Contains reports whether path is a file directly inside the output or
// assets directory.
func (o *Output) Contains(path string) bool {
	dir := filepath.Clean(filepath.Dir(path))
	return dir == filepath.Clean(o.dir) || dir == filepath.Clean(o.assets)
}

// WritePNG encodes img completely in memory and then writes it atomically,
// so a failed render never leaves a truncated file at path.
func (o *Output) WritePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("render: encode %s: %w", filepath.Base(path), err)
	}
	return o.WriteFile(path, buf.Bytes())
}

// WriteFile writes data to a temp file in the same directory and renames it
// over path.
func (o *Output) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".render-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Clear deletes every file in the output directory. The assets directory
// is never touched.
func (o *Output) Clear() error {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(o.dir, 0o755)
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		path := filepath.Join(o.dir, e.Name())
		if Within(o.assets, path) {
			// Assets nested inside the output directory survive a clear.
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	appLog.Info("render output cleared", "dir", o.dir, "removed", len(entries))
	return nil
}

// Within reports whether path is dir itself or lies below it.
func Within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// sanitize turns a key component into a single file name part. Letters
// and digits (any script) and '-' are kept; every other byte, including the
// '_' separator and '~' itself, becomes "~XX" in hex. Distinct components
// therefore never share a name.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			continue
		}
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		for _, c := range buf[:n] {
			fmt.Fprintf(&b, "~%02X", c)
		}
	}
	if b.Len() == 0 {
		// Empty stays distinguishable from every encoded value.
		return "~"
	}
	return b.String()
}
