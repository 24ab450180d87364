package model

import (
	"fmt"
	"strings"
	"time"
)

// Parity is one of the two alternating schedule variants.
type Parity int

const (
	ParityOdd Parity = iota + 1
	ParityEven
)

// Tag returns the value used by the timetable API in the "week" field.
func (p Parity) Tag() string {
	if p == ParityEven {
		return "2"
	}
	return "1"
}

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

func (p Parity) Valid() bool {
	return p == ParityOdd || p == ParityEven
}

// ParseParityTag parses the upstream "week" field. A missing tag means
// the first (odd) week.
func ParseParityTag(s string) (Parity, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return ParityOdd, nil
	case "2":
		return ParityEven, nil
	default:
		return 0, fmt.Errorf("model: unknown week tag %q", s)
	}
}

// ParityFor returns the parity of the week containing t.
//
// The university counts weeks from the day of month, not from the ISO week:
// (day / 7) % 2, where 0 is the odd week and 1 the even week. Days 1..6 are
// odd, 7..13 even, 14..20 odd and so on.
func ParityFor(t time.Time) Parity {
	if (t.Day()/7)%2 == 0 {
		return ParityOdd
	}
	return ParityEven
}

// WeekSelector is what a caller asks for: a concrete parity or "whatever
// the current week is". Current is resolved before it reaches the cache.
type WeekSelector int

const (
	WeekCurrent WeekSelector = iota
	WeekOdd
	WeekEven
)

// ParseWeekSelector accepts "", "current", "odd" and "even".
func ParseWeekSelector(s string) (WeekSelector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return WeekCurrent, nil
	case "odd":
		return WeekOdd, nil
	case "even":
		return WeekEven, nil
	default:
		return 0, fmt.Errorf("model: unknown week %q", s)
	}
}

// Resolve returns the concrete parity for the selector at time now.
func (w WeekSelector) Resolve(now time.Time) Parity {
	switch w {
	case WeekOdd:
		return ParityOdd
	case WeekEven:
		return ParityEven
	default:
		return ParityFor(now)
	}
}
