package service

import (
	"fmt"
	"time"

	"kitchenboard/internal/model"
)

// PeriodKey identifies the calendar period now falls in for a cadence. Two
// instants share a key when they belong to the same day, week or month.
func PeriodKey(recurrence string, now time.Time) string {
	switch recurrence {
	case model.RecurrenceWeekly:
		jan1 := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		week := int(now.Sub(jan1) / (7 * 24 * time.Hour))
		return fmt.Sprintf("%d-W%d", now.Year(), week)
	case model.RecurrenceMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}

// NextDueDate returns the due date of the next occurrence of a recurring task
// spawned at now. Unknown cadences are due at the end of the current day.
func NextDueDate(recurrence string, now time.Time) time.Time {
	switch recurrence {
	case model.RecurrenceWeekly:
		return endOfDay(now.AddDate(0, 0, 6))
	case model.RecurrenceMonthly:
		// Day 0 of next month is the last day of this one.
		return time.Date(now.Year(), now.Month()+1, 0, 23, 59, 59, 0, now.Location())
	default:
		return endOfDay(now)
	}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
