package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var validDays = map[string]bool{
	"sun": true, "mon": true, "tue": true, "wed": true,
	"thu": true, "fri": true, "sat": true,
}

// ScheduleExpr compiles a routine's display-only schedule hint ("HH:MM" plus
// day names) into a 5-field cron expression. Routines are never triggered from
// this; it only feeds occurrence previews.
func ScheduleExpr(scheduleTime string, scheduleDays []string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(scheduleTime))
	if err != nil {
		return "", fmt.Errorf("invalid schedule time %q: %w", scheduleTime, err)
	}
	days := "*"
	if len(scheduleDays) > 0 {
		cleaned := make([]string, 0, len(scheduleDays))
		for _, d := range scheduleDays {
			d = strings.ToLower(strings.TrimSpace(d))
			if !validDays[d] {
				return "", fmt.Errorf("invalid schedule day %q", d)
			}
			cleaned = append(cleaned, d)
		}
		days = strings.Join(cleaned, ",")
	}
	return fmt.Sprintf("%d %d * * %s", t.Minute(), t.Hour(), days), nil
}

// ParseSchedule ensures the expression is a valid 5-field cron definition and
// returns the underlying schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NextOccurrences returns the next n occurrence times from a base time.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		times = append(times, next)
	}
	return times
}
