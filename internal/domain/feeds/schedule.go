package feeds

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes when a feed should run next, strictly after from.
// Manual feeds never auto-run and return nil.
func NextRun(feed DataFeed, from time.Time) (*time.Time, error) {
	from = from.UTC()
	switch feed.Frequency {
	case FrequencyManual:
		return nil, nil
	case FrequencyHourly:
		next := from.Truncate(time.Hour).Add(time.Hour)
		return &next, nil
	case FrequencyDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), feed.ScheduleHour, 0, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return &next, nil
	case FrequencyWeekly:
		next := time.Date(from.Year(), from.Month(), from.Day(), feed.ScheduleHour, 0, 0, 0, time.UTC)
		offset := (feed.ScheduleWeekday - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, offset)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return &next, nil
	case FrequencyMonthly:
		next := monthlyRun(from.Year(), from.Month(), feed.ScheduleDay, feed.ScheduleHour)
		if !next.After(from) {
			next = monthlyRun(from.Year(), from.Month()+1, feed.ScheduleDay, feed.ScheduleHour)
		}
		return &next, nil
	case FrequencyCron:
		schedule, err := cronParser.Parse(feed.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", feed.CronExpression, err)
		}
		next := schedule.Next(from)
		return &next, nil
	default:
		return nil, fmt.Errorf("unknown frequency %q", feed.Frequency)
	}
}

// monthlyRun clamps the schedule day to the month's last day, so a feed set
// to day 31 still runs in February.
func monthlyRun(year int, month time.Month, day, hour int) time.Time {
	if day < 1 {
		day = 1
	}
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}
