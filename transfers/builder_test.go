package transfers_test

import (
	"context"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transfers"
)

const testFeed = schedule.FeedId("F")

var testDay = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

func allDaysCalendar(serviceID string) schedule.ServiceCalendar {
	cal := schedule.ServiceCalendar{
		ServiceID: serviceID,
		StartDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := range cal.Weekday {
		cal.Weekday[i] = true
	}
	return cal
}

func buildIndex(t *testing.T, trips ...schedule.RawTrip) *schedule.Index {
	t.Helper()
	idx, err := schedule.Build(schedule.FeedInput{
		FeedID:    testFeed,
		TimeZone:  "UTC",
		Trips:     trips,
		Calendars: map[string]schedule.ServiceCalendar{"ALL": allDaysCalendar("ALL")},
	})
	require.NoError(t, err)
	return idx
}

func rawTrip(id, route string, stops ...schedule.RawStopTime) schedule.RawTrip {
	return schedule.RawTrip{TripID: id, RouteID: route, ServiceID: "ALL", StopTimes: stops}
}

func st(seq int, stop string, arr, dep int) schedule.RawStopTime {
	return schedule.RawStopTime{StopSequence: seq, StopCode: stop, ArrivalSec: arr, DepartureSec: dep}
}

// dumpOnFailure logs a full field dump of v, including unexported state, if
// t ends up failing.
func dumpOnFailure(t *testing.T, label string, v interface{}) {
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("%s:\n%s", label, spew.Sdump(v))
		}
	})
}

func TestSameStopTransferKept(t *testing.T) {
	idx := buildIndex(t,
		rawTrip("A", "R1", st(0, "A", 0, 0), st(1, "B", 100, 100)),
		rawTrip("B", "R2", st(0, "B", 200, 200), st(1, "C", 300, 300)),
	)
	b, err := transfers.NewBuilder(transfers.Config{Index: idx})
	require.NoError(t, err)

	tm, err := b.Build(context.Background(), testDay)
	require.NoError(t, err)

	origin := schedule.StoppingEvent{FeedID: testFeed, Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R1"}, StopSequence: 1}
	dst, ok := tm.Get(origin)
	require.True(t, ok)
	require.Len(t, dst, 1)
	require.Equal(t, "B", dst[0].Trip.TripID)
	require.Equal(t, 0, dst[0].StopSequence)
}

func TestMaximumTransferDurationExcludesLateDeparture(t *testing.T) {
	idx := buildIndex(t,
		rawTrip("A", "R1", st(0, "A", 0, 0), st(1, "B", 100, 100)),
		rawTrip("B", "R2", st(0, "B", 1000, 1000), st(1, "C", 1100, 1100)),
	)
	b, err := transfers.NewBuilder(transfers.Config{Index: idx})
	require.NoError(t, err)

	tm, err := b.Build(context.Background(), testDay)
	require.NoError(t, err)

	origin := schedule.StoppingEvent{FeedID: testFeed, Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R1"}, StopSequence: 1}
	dst, ok := tm.Get(origin)
	require.True(t, ok)
	require.Empty(t, dst)
}

func TestOvernightWrapAppliesToDownstreamStops(t *testing.T) {
	idx := buildIndex(t,
		rawTrip("A", "R1", st(0, "A", 0, 0), st(1, "B", 82800, 82800)),
		rawTrip("B", "R2", st(0, "B", 100, 82850), st(1, "C", 82900, 82900)),
	)
	b, err := transfers.NewBuilder(transfers.Config{Index: idx})
	require.NoError(t, err)

	tm, err := b.Build(context.Background(), testDay)
	require.NoError(t, err)

	origin := schedule.StoppingEvent{FeedID: testFeed, Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R1"}, StopSequence: 1}
	dst, ok := tm.Get(origin)
	require.True(t, ok)
	require.Len(t, dst, 1)
	require.Equal(t, "B", dst[0].Trip.TripID)
}

func TestDominanceKeepsOnlyEarliestBoardingPerPattern(t *testing.T) {
	idx := buildIndex(t,
		rawTrip("A", "R1", st(0, "A", 0, 0), st(1, "B", 100, 100)),
		rawTrip("B1", "R2", st(0, "B", 200, 200), st(1, "C", 300, 300)),
		rawTrip("B2", "R2", st(0, "B", 500, 500), st(1, "C", 600, 600)),
	)
	b, err := transfers.NewBuilder(transfers.Config{Index: idx})
	require.NoError(t, err)

	tm, err := b.Build(context.Background(), testDay)
	require.NoError(t, err)
	dumpOnFailure(t, "transfer map", tm)

	origin := schedule.StoppingEvent{FeedID: testFeed, Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R1"}, StopSequence: 1}
	dst, ok := tm.Get(origin)
	require.True(t, ok)
	require.Len(t, dst, 1)
	require.Equal(t, "B1", dst[0].Trip.TripID)
}

func TestExplicitTransferMinTimeExcludesTooSoonDeparture(t *testing.T) {
	idx := buildIndex(t,
		rawTrip("A", "R1", st(0, "A", 0, 0), st(1, "B", 100, 100)),
		rawTrip("B", "ROUTE_B", st(0, "B", 150, 150), st(1, "C", 250, 250)),
	)
	explicit := []transfers.ExplicitTransfer{
		{FromStop: schedule.StopId{FeedID: testFeed, Code: "B"}, ToStop: schedule.StopId{FeedID: testFeed, Code: "B"}, ToRouteID: "ROUTE_B", MinTransferTimeS: 100},
	}
	b, err := transfers.NewBuilder(transfers.Config{Index: idx, ExplicitTransfers: explicit})
	require.NoError(t, err)

	tm, err := b.Build(context.Background(), testDay)
	require.NoError(t, err)

	origin := schedule.StoppingEvent{FeedID: testFeed, Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R1"}, StopSequence: 1}
	dst, ok := tm.Get(origin)
	require.True(t, ok)
	require.Empty(t, dst)
}

func TestBuildUnknownIndexRejected(t *testing.T) {
	_, err := transfers.NewBuilder(transfers.Config{})
	require.Error(t, err)
}
