package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// Layout constants. Width is fixed, height depends on the content.
const (
	Width = 1080

	marginX      = 32
	marginTop    = 32
	marginBottom = 32
	accentBar    = 6
	accentGap    = 18
	rowGap       = 10
	lessonGap    = 28
	typeSyncGap  = 16

	daySize   = 44
	titleSize = 34
	bodySize  = 26

	placeholderHeight = 240
)

// columnWidth is the fixed text column every row is wrapped at.
const columnWidth = Width - 2*marginX - accentBar - accentGap

// Renderer draws timetable days into PNG files. It only touches files
// inside its Output.
type Renderer struct {
	out  *Output
	font *opentype.Font

	phMu         sync.Mutex
	placeholders map[model.Theme]image.Image
}

// New creates a Renderer. fontFile is an optional TrueType/OpenType file;
// relative paths are resolved against the assets directory. Without it the
// embedded Go Medium face is used, which covers Cyrillic.
func New(out *Output, fontFile string) (*Renderer, error) {
	data := gomedium.TTF
	if fontFile != "" {
		path := fontFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(out.AssetsDir(), path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("render: read font: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}

	return &Renderer{
		out:          out,
		font:         f,
		placeholders: make(map[model.Theme]image.Image),
	}, nil
}

func (r *Renderer) Output() *Output { return r.out }

// Placeholder returns the shared image used for days without classes.
func (r *Renderer) Placeholder() model.ImageRef {
	return r.out.PlaceholderRef()
}

// Clear deletes every generated image.
func (r *Renderer) Clear() error {
	return r.out.Clear()
}

// RenderDay draws the day in both themes and returns the written files.
// Days without lessons and Sundays are not drawn: the shared placeholder is
// returned and nothing is written.
func (r *Renderer) RenderDay(_ context.Context, day model.Day) (model.ImageRef, error) {
	if day.IsPlaceholder() {
		return r.Placeholder(), nil
	}

	var ref model.ImageRef
	for _, th := range model.Themes() {
		img, err := r.DrawDay(day, th)
		if err != nil {
			return model.ImageRef{}, err
		}
		path := r.out.DayPath(day, th)
		if err := r.out.WritePNG(path, img); err != nil {
			return model.ImageRef{}, err
		}
		if th == model.ThemeLight {
			ref.Light = path
		} else {
			ref.Dark = path
		}
	}

	appLog.Debug("render day", "group", day.Group, "subgroup", day.Subgroup,
		"day", day.Index, "parity", day.Parity, "lessons", len(day.Lessons))
	return ref, nil
}

// RenderWeek draws every day (placeholders included), stacks them
// vertically and writes one composite per theme.
func (r *Renderer) RenderWeek(_ context.Context, days []model.Day) (model.ImageRef, error) {
	if len(days) == 0 {
		return model.ImageRef{}, errors.New("render: empty week")
	}
	first := days[0]

	var ref model.ImageRef
	for _, th := range model.Themes() {
		parts := make([]image.Image, 0, len(days))
		for _, d := range days {
			img, err := r.dayImage(d, th)
			if err != nil {
				return model.ImageRef{}, err
			}
			parts = append(parts, img)
		}

		path := r.out.WeekPath(first.GroupKey(), first.Parity, th)
		if err := r.out.WritePNG(path, Concat(parts, PaletteFor(th).Bg)); err != nil {
			return model.ImageRef{}, err
		}
		if th == model.ThemeLight {
			ref.Light = path
		} else {
			ref.Dark = path
		}
	}
	return ref, nil
}

func (r *Renderer) dayImage(d model.Day, th model.Theme) (image.Image, error) {
	if d.IsPlaceholder() {
		return r.placeholderImage(th)
	}
	return r.DrawDay(d, th)
}

// Concat stacks images vertically on a bg-filled canvas as wide as the
// widest part.
func Concat(parts []image.Image, bg color.Color) *image.RGBA {
	width, height := 0, 0
	for _, p := range parts {
		b := p.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	y := 0
	for _, p := range parts {
		b := p.Bounds()
		draw.Draw(dst, image.Rect(0, y, b.Dx(), y+b.Dy()), p, b.Min, draw.Over)
		y += b.Dy()
	}
	return dst
}

// textOp is one line of text placed on the canvas.
type textOp struct {
	face     font.Face
	text     string
	col      color.Color
	x        int
	baseline int
}

type barOp struct {
	top, bottom int
}

type dayFaces struct {
	day, title, body font.Face
}

// faces are created per call: opentype faces are not safe for concurrent
// use, the parsed font is.
func (r *Renderer) newFaces() (dayFaces, error) {
	var fs dayFaces
	var err error
	if fs.day, err = r.face(daySize); err != nil {
		return fs, err
	}
	if fs.title, err = r.face(titleSize); err != nil {
		return fs, err
	}
	if fs.body, err = r.face(bodySize); err != nil {
		return fs, err
	}
	return fs, nil
}

func (r *Renderer) face(size float64) (font.Face, error) {
	return opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// DrawDay lays out and draws a single day. The result depends only on the
// day and the theme.
func (r *Renderer) DrawDay(day model.Day, th model.Theme) (*image.RGBA, error) {
	fs, err := r.newFaces()
	if err != nil {
		return nil, fmt.Errorf("render: face: %w", err)
	}
	pal := PaletteFor(th)

	var ops []textOp
	var bars []barOp
	y := marginTop

	line := func(face font.Face, text string, col color.Color, x int) {
		m := face.Metrics()
		ops = append(ops, textOp{face: face, text: text, col: col, x: x, baseline: y + m.Ascent.Ceil()})
		y += m.Height.Ceil()
	}
	wrapped := func(face font.Face, text string, col color.Color) {
		for _, l := range wrapText(face, text, columnWidth) {
			line(face, l, col, textX)
		}
		y += rowGap
	}

	line(fs.day, model.DayName(day.Index), pal.Primary, marginX)
	y += lessonGap

	for _, lesson := range day.Lessons {
		top := y

		wrapped(fs.title, lesson.Name, pal.Text)

		// Type and sync status share one row.
		typeLabel := lesson.Type.Label()
		syncX := textX + font.MeasureString(fs.body, typeLabel).Ceil() + typeSyncGap
		m := fs.body.Metrics()
		ops = append(ops, textOp{face: fs.body, text: typeLabel, col: LessonTypeColor(lesson.Type), x: textX, baseline: y + m.Ascent.Ceil()})
		syncLines := wrapText(fs.body, lesson.Sync, columnWidth-(syncX-textX))
		for _, l := range syncLines {
			line(fs.body, l, pal.Text, syncX)
		}
		y += rowGap

		wrapped(fs.body, lesson.Time, pal.Text)
		wrapped(fs.body, lesson.FullLocation, pal.Text)
		wrapped(fs.body, lesson.Teacher, pal.Secondary)

		bars = append(bars, barOp{top: top, bottom: y - rowGap})
		y += lessonGap
	}
	height := y + marginBottom

	img := image.NewRGBA(image.Rect(0, 0, Width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(pal.Bg), image.Point{}, draw.Src)
	for _, b := range bars {
		rect := image.Rect(marginX, b.top, marginX+accentBar, b.bottom)
		draw.Draw(img, rect, image.NewUniform(pal.Accent), image.Point{}, draw.Src)
	}
	for _, op := range ops {
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(op.col),
			Face: op.face,
			Dot:  fixed.P(op.x, op.baseline),
		}
		d.DrawString(op.text)
	}
	return img, nil
}

// textX is where lesson rows start, right of the accent bar.
const textX = marginX + accentBar + accentGap

// EnsurePlaceholders draws the placeholder images that are missing from
// the assets directory. Existing files are kept as they are.
func (r *Renderer) EnsurePlaceholders() error {
	for _, th := range model.Themes() {
		path := r.out.PlaceholderPath(th)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		img, err := r.drawPlaceholder(th)
		if err != nil {
			return err
		}
		if err := r.out.WritePNG(path, img); err != nil {
			return err
		}
		appLog.Info("placeholder created", "path", path)
	}
	return nil
}

func (r *Renderer) drawPlaceholder(th model.Theme) (*image.RGBA, error) {
	face, err := r.face(daySize)
	if err != nil {
		return nil, err
	}
	pal := PaletteFor(th)
	img := image.NewRGBA(image.Rect(0, 0, Width, placeholderHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(pal.Bg), image.Point{}, draw.Src)

	const text = "Нет пар"
	w := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	baseline := (placeholderHeight-m.Height.Ceil())/2 + m.Ascent.Ceil()
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(pal.Primary),
		Face: face,
		Dot:  fixed.P((Width-w)/2, baseline),
	}
	d.DrawString(text)
	return img, nil
}

// placeholderImage returns the decoded placeholder, drawing it in memory
// when the asset is missing.
func (r *Renderer) placeholderImage(th model.Theme) (image.Image, error) {
	r.phMu.Lock()
	defer r.phMu.Unlock()

	if img, ok := r.placeholders[th]; ok {
		return img, nil
	}

	var img image.Image
	f, err := os.Open(r.out.PlaceholderPath(th))
	switch {
	case err == nil:
		img, err = png.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("render: decode placeholder: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		if img, err = r.drawPlaceholder(th); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	r.placeholders[th] = img
	return img, nil
}
