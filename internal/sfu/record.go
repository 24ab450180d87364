package sfu

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// Defaults applied when the upstream omits a field.
const (
	DefaultWeek = "1"
	DefaultType = "лекция"
	DefaultSync = "синхронно"
)

// response is the top-level JSON object returned by the timetable API.
type response struct {
	Timetable []Record `json:"timetable"`
}

// Record is one flat lesson record as returned by the timetable API.
type Record struct {
	// Day is the 1-indexed weekday (1 = Monday).
	Day      flexString `json:"day"`
	Week     flexString `json:"week"`
	Subject  string     `json:"subject"`
	Teacher  string     `json:"teacher"`
	Place    string     `json:"place"`
	Room     string     `json:"room"`
	Building string     `json:"building"`
	Time     string     `json:"time"`
	Type     string     `json:"type"`
	Sync     string     `json:"sync"`
}

// flexString accepts both JSON strings and numbers. The API is not
// consistent about "day" and "week".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("sfu: expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

// DayIndex converts the 1-indexed upstream day into a 0-indexed weekday.
func (r Record) DayIndex() (int, error) {
	n, err := strconv.Atoi(string(r.Day))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 7 {
		return 0, errors.New("day out of range")
	}
	return n - 1, nil
}

// WeekTag returns the parity tag, defaulting to the first week.
func (r Record) WeekTag() string {
	if r.Week == "" {
		return DefaultWeek
	}
	return string(r.Week)
}

// Lesson converts the record into a typed lesson, applying defaults for
// missing fields. Unknown lesson types are logged and treated as lectures.
func (r Record) Lesson() model.Lesson {
	typ, ok := model.ParseLessonType(r.Type)
	if !ok {
		appLog.Warn("sfu: unknown lesson type, using lecture", "type", r.Type, "subject", r.Subject)
	}
	sync := strings.TrimSpace(r.Sync)
	if sync == "" {
		sync = DefaultSync
	}
	return model.Lesson{
		Name:         r.Subject,
		Type:         typ,
		Time:         r.Time,
		FullLocation: r.Place,
		Building:     r.Building,
		Room:         r.Room,
		Teacher:      r.Teacher,
		Sync:         sync,
	}
}

// decodeTimetable parses an API response body.
func decodeTimetable(body []byte) ([]Record, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Timetable, nil
}
