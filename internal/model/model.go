package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Sunday is the day index that is never rendered or stored.
	Sunday = 6
	// DaysPerWeek is the number of renderable days (Monday..Saturday).
	// A parity is fully cached only when exactly this many days are stored.
	DaysPerWeek = 6
)

// LessonType is the closed set of lesson kinds the timetable API reports.
type LessonType int

const (
	LessonLecture LessonType = iota
	LessonPractice
	LessonLab
)

// Upstream labels for each lesson type.
const (
	labelLecture  = "лекция"
	labelPractice = "пр. занятие"
	labelLab      = "лаб. работа"
)

// ParseLessonType maps an upstream label to a LessonType. Empty labels
// default to a lecture; ok is false for labels that are not recognized
// (which also default to a lecture) so the caller can log them.
func ParseLessonType(s string) (t LessonType, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", labelLecture:
		return LessonLecture, true
	case labelPractice:
		return LessonPractice, true
	case labelLab:
		return LessonLab, true
	default:
		return LessonLecture, false
	}
}

// Label returns the upstream label drawn on rendered images.
func (t LessonType) Label() string {
	switch t {
	case LessonPractice:
		return labelPractice
	case LessonLab:
		return labelLab
	default:
		return labelLecture
	}
}

func (t LessonType) String() string {
	switch t {
	case LessonPractice:
		return "practice"
	case LessonLab:
		return "lab"
	default:
		return "lecture"
	}
}

// Lesson is one scheduled class occurrence. Lessons are plain values and
// compare structurally.
type Lesson struct {
	Name string
	Type LessonType
	// Time is the free-text range reported upstream, e.g. "08:30-10:05".
	Time         string
	FullLocation string
	Building     string
	Room         string
	Teacher      string
	// Sync is a free-text status: "синхронно", "асинхронно", "ЭИОС", ...
	Sync string
}

// GroupKey identifies a (group, subgroup) pair, the outer cache key.
type GroupKey struct {
	Group    string
	Subgroup string
}

func (k GroupKey) String() string {
	return k.Group + "/" + k.Subgroup
}

// Day holds the lessons of one weekday under one parity for one group.
type Day struct {
	// Index is 0 for Monday .. 6 for Sunday.
	Index    int
	Parity   Parity
	Group    string
	Subgroup string
	// Lessons keep upstream order; an empty slice means "no classes".
	Lessons []Lesson
}

func (d Day) GroupKey() GroupKey {
	return GroupKey{Group: d.Group, Subgroup: d.Subgroup}
}

// IsPlaceholder reports whether the day is rendered as the shared
// placeholder image instead of its own file.
func (d Day) IsPlaceholder() bool {
	return d.Index == Sunday || len(d.Lessons) == 0
}

// DayIndex returns the weekday index of t with Monday as 0.
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

var dayNames = [...]string{
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
	"Воскресенье",
}

// DayName returns the Russian weekday name for a day index.
func DayName(i int) string {
	if i < 0 || i >= len(dayNames) {
		return fmt.Sprintf("(ошибка: день %d)", i)
	}
	return dayNames[i]
}
