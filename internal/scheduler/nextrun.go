package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ternarybob/consentry/internal/models"
)

// NextRun computes the first fire time strictly after from for the given
// frequency and time configuration. All computation is in UTC; callers pass
// local times at their own risk.
func NextRun(frequency models.Frequency, tc models.TimeConfig, from time.Time) (time.Time, error) {
	from = from.UTC()

	switch frequency {
	case models.FrequencyHourly:
		return nextHourly(tc, from), nil
	case models.FrequencyDaily:
		return nextDaily(tc, from), nil
	case models.FrequencyWeekly:
		return nextWeekly(tc, from), nil
	case models.FrequencyMonthly:
		return nextMonthly(tc, from), nil
	case models.FrequencyCron:
		schedule, err := cron.ParseStandard(tc.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", tc.CronExpr, err)
		}
		return schedule.Next(from), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule frequency %q", frequency)
	}
}

func nextHourly(tc models.TimeConfig, from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), tc.Minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func nextDaily(tc models.TimeConfig, from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), tc.Hour, tc.Minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(tc models.TimeConfig, from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), tc.Hour, tc.Minute, 0, 0, time.UTC)
	days := (tc.DayOfWeek - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func nextMonthly(tc models.TimeConfig, from time.Time) time.Time {
	next := monthlyOccurrence(tc, from.Year(), from.Month())
	if !next.After(from) {
		year, month := from.Year(), from.Month()+1
		if month > time.December {
			year, month = year+1, time.January
		}
		next = monthlyOccurrence(tc, year, month)
	}
	return next
}

// monthlyOccurrence places the fire inside (year, month), clamping
// dayOfMonth to the month's length so "the 31st" fires on Feb 28/29.
func monthlyOccurrence(tc models.TimeConfig, year int, month time.Month) time.Time {
	day := tc.DayOfMonth
	if day < 1 {
		day = 1
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, tc.Hour, tc.Minute, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
