package scheduler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/miketropi/wp-backup/internal/model"
)

// cronLookback is how far back PeriodKey searches for the latest
// activation of a custom cron expression, widening step by step.
var cronLookback = []time.Duration{
	time.Hour,
	24 * time.Hour,
	8 * 24 * time.Hour,
	32 * 24 * time.Hour,
	367 * 24 * time.Hour,
	5 * 366 * 24 * time.Hour,
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron expression %q: %v", model.ErrConfigInvalid, expr, err)
	}
	return sched, nil
}

// PeriodKey buckets now into the recurrence instance of freq. Keys are
// computed in UTC. The custom frequency keys on the latest activation of
// cronExpr, or on now itself when no expression is set, so such runs are
// never de-duplicated.
func PeriodKey(freq model.Frequency, now time.Time, cronExpr string) (string, error) {
	now = now.UTC()
	switch freq {
	case model.FrequencyHourly:
		return now.Format("2006-01-02-15"), nil
	case model.FrequencyDaily:
		return now.Format("2006-01-02"), nil
	case model.FrequencyWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-%02d", year, week), nil
	case model.FrequencyMonthly:
		return now.Format("2006-01"), nil
	case model.FrequencyYearly:
		return now.Format("2006"), nil
	case model.FrequencyCustom:
		if cronExpr == "" {
			return "custom-" + strconv.FormatInt(now.Unix(), 10), nil
		}
		sched, err := ParseCron(cronExpr)
		if err != nil {
			return "", err
		}
		if last, ok := lastActivation(sched, now); ok {
			return "custom-" + strconv.FormatInt(last.Unix(), 10), nil
		}
		return "custom-" + strconv.FormatInt(now.Unix(), 10), nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", model.ErrConfigInvalid, freq)
	}
}

// lastActivation returns the latest activation of sched at or before now.
func lastActivation(sched cron.Schedule, now time.Time) (time.Time, bool) {
	for _, back := range cronLookback {
		t := sched.Next(now.Add(-back))
		if t.IsZero() || t.After(now) {
			continue
		}
		for {
			n := sched.Next(t)
			if n.IsZero() || n.After(now) {
				return t, true
			}
			t = n
		}
	}
	return time.Time{}, false
}
