package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image/color"
	"time"

	"github.com/chromedp/chromedp"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/render"
)

const DefaultTimeout = 30 * time.Second

// rootSelector is the element whose box becomes the screenshot.
const rootSelector = "#timetable"

// Renderer renders days as HTML in headless Chromium and stores element
// screenshots. File naming, placeholders and clearing are shared with the
// raster renderer, so both backends are interchangeable behind the cache.
type Renderer struct {
	base    *render.Renderer
	parent  context.Context
	timeout time.Duration
}

// New creates a Chromium renderer. parent is the context browser instances
// are started from; it should live as long as the process.
func New(parent context.Context, base *render.Renderer, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Renderer{base: base, parent: parent, timeout: timeout}
}

func (r *Renderer) Placeholder() model.ImageRef { return r.base.Placeholder() }

func (r *Renderer) Clear() error { return r.base.Clear() }

// RenderDay screenshots the day in both themes. The placeholder policy is
// the same as the raster renderer: empty days and Sundays are not drawn.
func (r *Renderer) RenderDay(_ context.Context, day model.Day) (model.ImageRef, error) {
	if day.IsPlaceholder() {
		return r.Placeholder(), nil
	}
	out := r.base.Output()
	return r.capture(func(th model.Theme) string { return out.DayPath(day, th) }, []model.Day{day})
}

// RenderWeek screenshots all days stacked on one page.
func (r *Renderer) RenderWeek(_ context.Context, days []model.Day) (model.ImageRef, error) {
	if len(days) == 0 {
		return model.ImageRef{}, errors.New("capture: empty week")
	}
	out := r.base.Output()
	first := days[0]
	return r.capture(func(th model.Theme) string {
		return out.WeekPath(first.GroupKey(), first.Parity, th)
	}, days)
}

func (r *Renderer) capture(pathFor func(model.Theme) string, days []model.Day) (model.ImageRef, error) {
	var ref model.ImageRef
	for _, th := range model.Themes() {
		page, err := PageHTML(days, th)
		if err != nil {
			return model.ImageRef{}, err
		}
		png, err := r.screenshot(page)
		if err != nil {
			return model.ImageRef{}, err
		}
		path := pathFor(th)
		if err := r.base.Output().WriteFile(path, png); err != nil {
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

// screenshot loads page into a fresh headless Chromium tab and captures the
// timetable element as PNG.
func (r *Renderer) screenshot(page []byte) ([]byte, error) {
	// Renders outlive the request that asked for them.
	ctx, cancel := chromedp.NewContext(r.parent)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, r.timeout)
	defer timeoutCancel()

	url := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(page)

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(render.Width, 800),
		chromedp.Navigate(url),
		chromedp.WaitVisible(rootSelector, chromedp.ByQuery),
		chromedp.Screenshot(rootSelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if len(png) == 0 {
		return nil, errors.New("capture: empty screenshot")
	}
	appLog.Debug("capture done", "bytes", len(png), "took", time.Since(start))
	return png, nil
}

type pageData struct {
	Width     int
	Text      template.CSS
	Bg        template.CSS
	Primary   template.CSS
	Secondary template.CSS
	Accent    template.CSS
	Days      []dayView
}

type dayView struct {
	Name    string
	Empty   bool
	Lessons []lessonView
}

type lessonView struct {
	Name      string
	TypeLabel string
	TypeColor template.CSS
	Sync      string
	Time      string
	Location  string
	Teacher   string
}

var pageTmpl = template.Must(template.New("timetable").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
html, body { margin: 0; padding: 0; background: {{.Bg}}; }
#timetable { width: {{.Width}}px; font-family: "Roboto", "DejaVu Sans", sans-serif; color: {{.Text}}; background: {{.Bg}}; }
.day { padding: 32px; }
.day h1 { margin: 0 0 24px 0; font-size: 44px; color: {{.Primary}}; }
.lesson { border-left: 6px solid {{.Accent}}; padding-left: 18px; margin-bottom: 28px; font-size: 26px; }
.lesson h2 { margin: 0 0 10px 0; font-size: 34px; }
.lesson .row { margin-bottom: 10px; overflow-wrap: anywhere; }
.lesson .sync { margin-left: 16px; }
.lesson .teacher { color: {{.Secondary}}; }
.empty { font-size: 44px; color: {{.Primary}}; text-align: center; padding: 80px 0; }
</style></head>
<body><div id="timetable">
{{range .Days}}<section class="day">
{{if .Empty}}<div class="empty">Нет пар</div>{{else}}<h1>{{.Name}}</h1>
{{range .Lessons}}<div class="lesson">
<h2>{{.Name}}</h2>
<div class="row"><span style="color: {{.TypeColor}}">{{.TypeLabel}}</span><span class="sync">{{.Sync}}</span></div>
<div class="row">{{.Time}}</div>
<div class="row">{{.Location}}</div>
<div class="row teacher">{{.Teacher}}</div>
</div>
{{end}}{{end}}</section>
{{end}}</div></body></html>
`))

// PageHTML renders the HTML page captured for days in theme.
func PageHTML(days []model.Day, th model.Theme) ([]byte, error) {
	pal := render.PaletteFor(th)
	data := pageData{
		Width:     render.Width,
		Text:      cssColor(pal.Text),
		Bg:        cssColor(pal.Bg),
		Primary:   cssColor(pal.Primary),
		Secondary: cssColor(pal.Secondary),
		Accent:    cssColor(pal.Accent),
	}
	for _, d := range days {
		dv := dayView{Name: model.DayName(d.Index), Empty: d.IsPlaceholder()}
		if !dv.Empty {
			for _, l := range d.Lessons {
				dv.Lessons = append(dv.Lessons, lessonView{
					Name:      l.Name,
					TypeLabel: l.Type.Label(),
					TypeColor: cssColor(render.LessonTypeColor(l.Type)),
					Sync:      l.Sync,
					Time:      l.Time,
					Location:  l.FullLocation,
					Teacher:   l.Teacher,
				})
			}
		}
		data.Days = append(data.Days, dv)
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("capture: template: %w", err)
	}
	return buf.Bytes(), nil
}

func cssColor(c color.RGBA) template.CSS {
	return template.CSS(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
