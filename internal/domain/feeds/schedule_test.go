package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextRunManual(t *testing.T) {
	next, err := NextRun(DataFeed{Frequency: FrequencyManual}, time.Now())
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestNextRunHourly(t *testing.T) {
	from := time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC)
	next, err := NextRun(DataFeed{Frequency: FrequencyHourly}, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC), *next)
}

func TestNextRunDaily(t *testing.T) {
	feed := DataFeed{Frequency: FrequencyDaily, ScheduleHour: 6}

	// Before today's slot: runs today.
	from := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	next, err := NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC), *next)

	// After today's slot: runs tomorrow.
	from = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	next, err = NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC), *next)
}

func TestNextRunWeekly(t *testing.T) {
	// 2026-08-29 is a Saturday (weekday 6).
	feed := DataFeed{Frequency: FrequencyWeekly, ScheduleWeekday: 1, ScheduleHour: 8}
	from := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Monday, next.Weekday())
	require.Equal(t, time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC), *next)
}

func TestNextRunMonthlyClampsToMonthEnd(t *testing.T) {
	feed := DataFeed{Frequency: FrequencyMonthly, ScheduleDay: 31, ScheduleHour: 2}

	// January 31 already passed: February run clamps to the 28th.
	from := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	next, err := NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 28, 2, 0, 0, 0, time.UTC), *next)
}

func TestNextRunMonthlyDecemberRollsOver(t *testing.T) {
	feed := DataFeed{Frequency: FrequencyMonthly, ScheduleDay: 5, ScheduleHour: 0}
	from := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	next, err := NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC), *next)
}

func TestNextRunCron(t *testing.T) {
	feed := DataFeed{Frequency: FrequencyCron, CronExpression: "30 4 * * 1-5"}
	// Friday evening: next run is Monday 04:30.
	from := time.Date(2026, 8, 28, 18, 0, 0, 0, time.UTC)

	next, err := NextRun(feed, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 31, 4, 30, 0, 0, time.UTC), *next)
}

func TestNextRunCronInvalid(t *testing.T) {
	feed := DataFeed{Frequency: FrequencyCron, CronExpression: "not a cron"}

	_, err := NextRun(feed, time.Now())
	require.Error(t, err)
}

func TestNextRunUnknownFrequency(t *testing.T) {
	_, err := NextRun(DataFeed{Frequency: "fortnightly"}, time.Now())
	require.Error(t, err)
}
