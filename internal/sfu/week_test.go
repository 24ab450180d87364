package sfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

func TestDecodeTimetable_FlexibleFields(t *testing.T) {
	records, err := decodeTimetable([]byte(sampleTimetable))
	require.NoError(t, err)
	require.Len(t, records, 5)

	idx, err := records[1].DayIndex()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "1", records[3].WeekTag())
	assert.Equal(t, DefaultWeek, records[2].WeekTag())
}

func TestRecordLesson_Defaults(t *testing.T) {
	l := Record{Subject: "Философия"}.Lesson()
	assert.Equal(t, model.Lesson{
		Name: "Философия",
		Type: model.LessonLecture,
		Sync: DefaultSync,
	}, l)

	l = Record{Subject: "Химия", Type: "коллоквиум"}.Lesson()
	assert.Equal(t, model.LessonLecture, l.Type)
}

func TestBuildWeek_OddParity(t *testing.T) {
	records, err := decodeTimetable([]byte(sampleTimetable))
	require.NoError(t, err)

	days := BuildWeek(records, "КИ23-01Б", "1", model.ParityOdd)
	require.Len(t, days, model.DaysPerWeek)

	for i, d := range days {
		assert.Equal(t, i, d.Index)
		assert.Equal(t, model.ParityOdd, d.Parity)
		assert.Equal(t, "КИ23-01Б", d.Group)
		assert.Equal(t, "1", d.Subgroup)
		assert.NotNil(t, d.Lessons, "day %d must be an empty list, not absent", i)
	}

	require.Len(t, days[0].Lessons, 2)
	assert.Equal(t, "Математический анализ", days[0].Lessons[0].Name)
	assert.Equal(t, "Программирование", days[0].Lessons[1].Name)
	assert.Equal(t, model.LessonLab, days[0].Lessons[1].Type)

	require.Len(t, days[2].Lessons, 1)
	assert.Equal(t, "асинхронно", days[2].Lessons[0].Sync)

	for _, i := range []int{1, 3, 4, 5} {
		assert.Empty(t, days[i].Lessons, "day %d", i)
	}
}

func TestBuildWeek_EvenParity(t *testing.T) {
	records, err := decodeTimetable([]byte(sampleTimetable))
	require.NoError(t, err)

	days := BuildWeek(records, "КИ23-01Б", "1", model.ParityEven)
	require.Len(t, days[0].Lessons, 1)
	assert.Equal(t, "Физика", days[0].Lessons[0].Name)
	assert.Equal(t, model.LessonPractice, days[0].Lessons[0].Type)
}

func TestBuildWeek_SkipsBadRecords(t *testing.T) {
	records := []Record{
		{Day: "0", Subject: "too early"},
		{Day: "x", Subject: "garbage"},
		{Day: "2", Week: "5", Subject: "unknown week"},
		{Day: "2", Subject: "ok"},
	}
	days := BuildWeek(records, "g", "1", model.ParityOdd)
	require.Len(t, days[1].Lessons, 1)
	assert.Equal(t, "ok", days[1].Lessons[0].Name)
}
