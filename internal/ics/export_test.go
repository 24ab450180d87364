package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

var krsk = time.FixedZone("KRAT", 7*60*60)

func week(parity model.Parity, lessons map[int][]model.Lesson) []model.Day {
	days := make([]model.Day, model.DaysPerWeek)
	for i := range days {
		days[i] = model.Day{Index: i, Parity: parity, Group: "КИ23-01Б", Subgroup: "1", Lessons: lessons[i]}
	}
	return days
}

func TestBuild_FollowsParityPerDate(t *testing.T) {
	algebra := model.Lesson{
		Name:         "Алгебра",
		Type:         model.LessonLecture,
		Time:         "08:30-10:05",
		FullLocation: "корп. 17, ауд. 3-01",
		Teacher:      "Иванов И.И.",
		Sync:         "синхронно",
	}
	physics := model.Lesson{Name: "Физика", Type: model.LessonLab, Time: "10:15 - 11:50"}
	sport := model.Lesson{Name: "Физкультура", Type: model.LessonPractice, Time: "по расписанию"}

	days := map[model.Parity][]model.Day{
		model.ParityOdd:  week(model.ParityOdd, map[int][]model.Lesson{0: {algebra}, 5: {sport}}),
		model.ParityEven: week(model.ParityEven, map[int][]model.Lesson{0: {physics}}),
	}

	// 2024-09-02 is a Monday in an odd week; the 7th (Saturday) and the
	// 9th (Monday) are even, the 14th (Saturday) is odd again.
	body, err := Build(days, Options{
		From:     time.Date(2024, 9, 2, 15, 0, 0, 0, krsk),
		Weeks:    2,
		Loc:      krsk,
		Group:    "КИ23-01Б",
		Subgroup: "1",
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "X-WR-CALNAME:Расписание КИ23-01Б (1 подгруппа)")

	events, err := parseEvents(body, krsk)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "Алгебра (лекция)", events[0].Summary)
	assert.True(t, events[0].Start.Equal(time.Date(2024, 9, 2, 8, 30, 0, 0, krsk)))
	assert.True(t, events[0].End.Equal(time.Date(2024, 9, 2, 10, 5, 0, 0, krsk)))
	assert.Equal(t, "корп. 17, ауд. 3-01", events[0].Location)
	assert.Contains(t, events[0].Description, "Иванов И.И.")
	assert.False(t, events[0].AllDay)

	assert.Equal(t, "Физика (лаб. работа)", events[1].Summary)
	assert.True(t, events[1].Start.Equal(time.Date(2024, 9, 9, 10, 15, 0, 0, krsk)))

	assert.Equal(t, "Физкультура (пр. занятие)", events[2].Summary)
	assert.True(t, events[2].AllDay)
	assert.True(t, events[2].Start.Equal(time.Date(2024, 9, 14, 0, 0, 0, 0, krsk)))

	uids := map[string]bool{}
	for _, ev := range events {
		assert.False(t, uids[ev.UID], "duplicate uid %s", ev.UID)
		uids[ev.UID] = true
		assert.True(t, strings.HasSuffix(ev.UID, "@"+uidDomain))
	}
}

func TestBuild_EmptyTimetable(t *testing.T) {
	body, err := Build(nil, Options{From: time.Date(2024, 9, 2, 0, 0, 0, 0, krsk), Loc: krsk})
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.NotContains(t, string(body), "BEGIN:VEVENT")
}

func TestBuild_Validation(t *testing.T) {
	_, err := Build(nil, Options{Loc: krsk})
	assert.Error(t, err)
	_, err = Build(nil, Options{From: time.Now(), Weeks: MaxWeeks + 1})
	assert.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		in       string
		from, to time.Duration
		ok       bool
	}{
		{"08:30-10:05", 8*time.Hour + 30*time.Minute, 10*time.Hour + 5*time.Minute, true},
		{" 14:10 – 15:45 ", 14*time.Hour + 10*time.Minute, 15*time.Hour + 45*time.Minute, true},
		{"10:00-09:00", 0, 0, false},
		{"25:00-26:00", 0, 0, false},
		{"утро", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			from, to, ok := ParseTimeRange(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := parseEvents(nil, krsk)
	assert.Error(t, err)
}
