package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// parsedEvent is one lesson occurrence read back from an exported calendar.
type parsedEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool
}

// parseEvents reads the VEVENTs of an iCalendar document. Timed events are
// returned in loc; all-day events are midnight in loc.
func parseEvents(body []byte, loc *time.Location) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}

	var out []parsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (parsedEvent, error) {
	var ev parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("ics: event without UID")
	}
	ev.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	// DATE values carry no 'T'.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil && !strings.Contains(p.Value, "T") {
		ev.AllDay = true
	}

	if ev.AllDay {
		start, err := time.ParseInLocation("20060102", ve.GetProperty(ical.ComponentPropertyDtStart).Value, loc)
		if err != nil {
			return ev, fmt.Errorf("ics: %s: start: %w", ev.UID, err)
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if end, err := time.ParseInLocation("20060102", p.Value, loc); err == nil {
				ev.End = end
			}
		}
		return ev, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("ics: %s: start: %w", ev.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return ev, fmt.Errorf("ics: %s: end: %w", ev.UID, err)
	}
	ev.Start = start.In(loc)
	ev.End = end.In(loc)
	return ev, nil
}
