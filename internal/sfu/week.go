package sfu

import (
	appLog "github.com/Nik4ant/SfuTelegramBot/internal/log"
	"github.com/Nik4ant/SfuTelegramBot/internal/model"
)

// BuildWeek partitions flat records into Monday..Saturday days of the given
// parity. Every day is present in the result, days without records get an
// empty lesson list. Upstream order is kept within a day.
//
// Records for Sunday, with an unreadable day or with an unknown week tag
// are skipped.
func BuildWeek(records []Record, group, subgroup string, parity model.Parity) []model.Day {
	days := make([]model.Day, model.DaysPerWeek)
	for i := range days {
		days[i] = model.Day{
			Index:    i,
			Parity:   parity,
			Group:    group,
			Subgroup: subgroup,
			Lessons:  []model.Lesson{},
		}
	}

	for _, rec := range records {
		p, err := model.ParseParityTag(rec.WeekTag())
		if err != nil {
			appLog.Warn("sfu: skipping record with unknown week", "week", rec.WeekTag(), "subject", rec.Subject)
			continue
		}
		if p != parity {
			continue
		}
		idx, err := rec.DayIndex()
		if err != nil {
			appLog.Warn("sfu: skipping record with bad day", "day", string(rec.Day), "subject", rec.Subject)
			continue
		}
		if idx == model.Sunday {
			continue
		}
		days[idx].Lessons = append(days[idx].Lessons, rec.Lesson())
	}

	return days
}
