package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"tripbased.dev/core/schedule"
)

func weekdayCalendar(serviceID string) schedule.ServiceCalendar {
	cal := schedule.ServiceCalendar{
		ServiceID: serviceID,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i <= 5; i++ { // Monday..Friday
		cal.Weekday[i] = true
	}
	return cal
}

func simpleFeed() schedule.FeedInput {
	return schedule.FeedInput{
		FeedID:   "F",
		TimeZone: "America/Los_Angeles",
		Calendars: map[string]schedule.ServiceCalendar{
			"WEEKDAY": weekdayCalendar("WEEKDAY"),
		},
		Trips: []schedule.RawTrip{
			{
				TripID:    "X",
				RouteID:   "R1",
				ServiceID: "WEEKDAY",
				StopTimes: []schedule.RawStopTime{
					{StopSequence: 0, StopCode: "A", ArrivalSec: 8 * 3600, DepartureSec: 8*3600 + 300},
					{StopSequence: 1, StopCode: "B", ArrivalSec: 8*3600 + 900, DepartureSec: 8*3600 + 900},
					{StopSequence: 2, StopCode: "C", ArrivalSec: 8*3600 + 1800, DepartureSec: 8*3600 + 1800},
				},
			},
		},
	}
}

func TestBuildAndStopTimes(t *testing.T) {
	idx, err := schedule.Build(simpleFeed())
	require.NoError(t, err)

	trip := schedule.TripDescriptor{TripID: "X", RouteID: "R1"}
	sts, err := idx.StopTimes("F", trip)
	require.NoError(t, err)
	require.Len(t, sts, 3)
	require.Equal(t, "A", sts[0].StopID.Code)
	require.Equal(t, "C", sts[2].StopID.Code)
}

func TestUnknownTrip(t *testing.T) {
	idx, err := schedule.Build(simpleFeed())
	require.NoError(t, err)

	_, err = idx.StopTimes("F", schedule.TripDescriptor{TripID: "nope"})
	require.ErrorIs(t, err, schedule.ErrUnknownTrip)
}

func TestInconsistentSchedule(t *testing.T) {
	feed := simpleFeed()
	feed.Trips[0].StopTimes[1].ArrivalSec = 100 // goes backwards
	_, err := schedule.Build(feed)
	require.ErrorIs(t, err, schedule.ErrInconsistentSchedule)
}

func TestServiceMissing(t *testing.T) {
	feed := simpleFeed()
	feed.Trips[0].ServiceID = "GHOST"
	_, err := schedule.Build(feed)
	require.ErrorIs(t, err, schedule.ErrServiceMissing)
}

func TestServiceActive(t *testing.T) {
	idx, err := schedule.Build(simpleFeed())
	require.NoError(t, err)
	trip := schedule.TripDescriptor{TripID: "X", RouteID: "R1"}

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)

	active, err := idx.ServiceActive("F", trip, monday)
	require.NoError(t, err)
	require.True(t, active)

	active, err = idx.ServiceActive("F", trip, sunday)
	require.NoError(t, err)
	require.False(t, active)
}

func TestFrequencyExpansion(t *testing.T) {
	feed := schedule.FeedInput{
		FeedID:   "F",
		TimeZone: "UTC",
		Calendars: map[string]schedule.ServiceCalendar{
			"WEEKDAY": weekdayCalendar("WEEKDAY"),
		},
		Trips: []schedule.RawTrip{
			{
				TripID:    "FREQ",
				RouteID:   "R1",
				ServiceID: "WEEKDAY",
				StopTimes: []schedule.RawStopTime{
					{StopSequence: 0, StopCode: "A", ArrivalSec: 0, DepartureSec: 0},
					{StopSequence: 1, StopCode: "B", ArrivalSec: 600, DepartureSec: 600},
				},
				Frequencies: []schedule.RawFrequency{
					{StartSec: 8 * 3600, EndSec: 8*3600 + 1800, HeadwaySec: 600},
				},
			},
		},
	}
	idx, err := schedule.Build(feed)
	require.NoError(t, err)

	boardings, err := idx.BoardingsByPattern(schedule.StopId{FeedID: "F", Code: "A"})
	require.NoError(t, err)
	var all []schedule.StoppingEvent
	for _, v := range boardings {
		all = append(all, v...)
	}
	require.Len(t, all, 3) // 08:00, 08:10, 08:20 — not 08:30 (exclusive end)

	starts := map[int]bool{}
	for _, e := range all {
		require.True(t, e.Trip.HasStart)
		starts[e.Trip.StartTime] = true
	}
	require.True(t, starts[8*3600])
	require.True(t, starts[8*3600+600])
	require.True(t, starts[8*3600+1200])
	require.False(t, starts[8*3600+1800])
}

func TestBoardingsByPatternExcludesLastStop(t *testing.T) {
	idx, err := schedule.Build(simpleFeed())
	require.NoError(t, err)

	boardingsAtC, err := idx.BoardingsByPattern(schedule.StopId{FeedID: "F", Code: "C"})
	require.NoError(t, err)
	var total int
	for _, v := range boardingsAtC {
		total += len(v)
	}
	require.Zero(t, total, "the last stop of a trip is not a boarding")
}

func TestBoardingsByPatternConcurrentAtMostOnce(t *testing.T) {
	idx, err := schedule.Build(simpleFeed())
	require.NoError(t, err)

	const n = 50
	results := make([]map[schedule.PatternId][]schedule.StoppingEvent, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			m, err := idx.BoardingsByPattern(schedule.StopId{FeedID: "F", Code: "A"})
			require.NoError(t, err)
			results[i] = m
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for i := 1; i < n; i++ {
		require.Len(t, results[i], len(results[0]))
	}
}
