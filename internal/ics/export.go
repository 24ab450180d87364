package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

const (
	DefaultWeeks = 4
	MaxWeeks     = 26

	productID = "-//SfuTelegramBot//timetable//RU"
	uidDomain = "sfubot"
)

// Options controls the exported range.
type Options struct {
	// From is the first day exported; only its date in Loc matters.
	From  time.Time
	Weeks int
	Loc   *time.Location

	Group    string
	Subgroup string
}

// Build expands the two parity templates into concrete dated events and
// serializes them as an iCalendar document. Every school day in the range
// takes the lessons of its own parity, so the export alternates exactly as
// the university does.
func Build(days map[model.Parity][]model.Day, opts Options) ([]byte, error) {
	if opts.Loc == nil {
		opts.Loc = time.Local
	}
	if opts.Weeks <= 0 {
		opts.Weeks = DefaultWeeks
	}
	if opts.Weeks > MaxWeeks {
		return nil, fmt.Errorf("ics: at most %d weeks can be exported", MaxWeeks)
	}
	if opts.From.IsZero() {
		return nil, errors.New("ics: start date is required")
	}

	from := opts.From.In(opts.Loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, opts.Loc)
	until := start.AddDate(0, 0, 7*opts.Weeks-1)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA},
		Dtstart:   start,
		Until:     until,
	})
	if err != nil {
		return nil, fmt.Errorf("ics: rrule: %w", err)
	}

	lookup := make(map[model.Parity]map[int][]model.Lesson, len(days))
	for parity, list := range days {
		byDay := make(map[int][]model.Lesson, len(list))
		for _, d := range list {
			byDay[d.Index] = d.Lessons
		}
		lookup[parity] = byDay
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(CalendarName(opts.Group, opts.Subgroup))
	cal.SetXWRTimezone(opts.Loc.String())

	stamp := time.Now().UTC()
	events := 0
	for _, date := range rule.All() {
		date = date.In(opts.Loc)
		lessons := lookup[model.ParityFor(date)][model.DayIndex(date)]
		for i, l := range lessons {
			addLesson(cal, date, i, l, opts, stamp)
			events++
		}
	}

	appLog.Debug("ics built", "group", opts.Group, "subgroup", opts.Subgroup,
		"from", start.Format("2006-01-02"), "weeks", opts.Weeks, "events", events)
	return []byte(cal.Serialize()), nil
}

// CalendarName is the display name of an exported calendar.
func CalendarName(group, subgroup string) string {
	return fmt.Sprintf("Расписание %s (%s подгруппа)", group, subgroup)
}

func addLesson(cal *ical.Calendar, date time.Time, n int, l model.Lesson, opts Options, stamp time.Time) {
	uid := fmt.Sprintf("%s-%s-%s-%d@%s", opts.Group, opts.Subgroup, date.Format("20060102"), n, uidDomain)
	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(stamp)
	ev.SetSummary(fmt.Sprintf("%s (%s)", l.Name, l.Type.Label()))
	if l.FullLocation != "" {
		ev.SetLocation(l.FullLocation)
	}
	var desc []string
	if l.Teacher != "" {
		desc = append(desc, l.Teacher)
	}
	if l.Sync != "" {
		desc = append(desc, l.Sync)
	}
	if len(desc) > 0 {
		ev.SetDescription(strings.Join(desc, "\n"))
	}

	from, to, ok := ParseTimeRange(l.Time)
	if !ok {
		ev.SetAllDayStartAt(date)
		ev.SetAllDayEndAt(date.AddDate(0, 0, 1))
		return
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	ev.SetStartAt(day.Add(from))
	ev.SetEndAt(day.Add(to))
}

// ParseTimeRange parses "HH:MM-HH:MM" into offsets from midnight. Spaces
// and an en dash as separator are tolerated.
func ParseTimeRange(s string) (from, to time.Duration, ok bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "–", "-")
	a, b, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	from, ok1 := parseClock(a)
	to, ok2 := parseClock(b)
	if !ok1 || !ok2 || to <= from {
		return 0, 0, false
	}
	return from, to, true
}

func parseClock(s string) (time.Duration, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, true
}
