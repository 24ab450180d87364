package capture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
	"github.com/Nik4ant/SfuTelegramBot/internal/render"
)

func TestPageHTML_EscapesAndColours(t *testing.T) {
	day := model.Day{
		Index:  1,
		Parity: model.ParityEven,
		Lessons: []model.Lesson{{
			Name:    "<script>alert(1)</script>",
			Type:    model.LessonLab,
			Time:    "10:15-11:50",
			Teacher: "Петров П.П.",
			Sync:    "синхронно",
		}},
	}

	page, err := PageHTML([]model.Day{day}, model.ThemeLight)
	require.NoError(t, err)
	html := string(page)

	assert.Contains(t, html, `id="timetable"`)
	assert.Contains(t, html, "Вторник")
	assert.Contains(t, html, "лаб. работа")
	assert.Contains(t, html, "#d01eb2")
	assert.Contains(t, html, "#ebf0f4")
	assert.NotContains(t, html, "<script>alert")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestPageHTML_PlaceholderDays(t *testing.T) {
	days := []model.Day{
		{Index: 0, Lessons: []model.Lesson{{Name: "Алгебра"}}},
		{Index: 1},
		{Index: model.Sunday, Lessons: []model.Lesson{{Name: "Физика"}}},
	}
	page, err := PageHTML(days, model.ThemeDark)
	require.NoError(t, err)
	html := string(page)

	assert.Equal(t, 2, strings.Count(html, "Нет пар"))
	assert.Contains(t, html, "Алгебра")
	assert.NotContains(t, html, "Физика")
}

func TestRenderDay_PlaceholderSkipsBrowser(t *testing.T) {
	root := t.TempDir()
	out := render.NewOutput(filepath.Join(root, "out"), filepath.Join(root, "assets"))
	base, err := render.New(out, "")
	require.NoError(t, err)

	r := New(context.Background(), base, 0)
	ref, err := r.RenderDay(context.Background(), model.Day{Index: 3})
	require.NoError(t, err)
	assert.Equal(t, out.PlaceholderRef(), ref)

	_, err = r.RenderWeek(context.Background(), nil)
	assert.Error(t, err)
}
