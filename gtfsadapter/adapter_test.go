package gtfsadapter_test

import (
	"testing"
	"time"

	gtfs "github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/require"
	"tripbased.dev/core/gtfsadapter"
	"tripbased.dev/core/schedule"
)

func TestFromStatic(t *testing.T) {
	route := gtfs.Route{Id: "R1"}
	service := gtfs.Service{
		Id:        "WEEKDAY",
		Monday:    true,
		Tuesday:   true,
		Wednesday: true,
		Thursday:  true,
		Friday:    true,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	stopA := gtfs.Stop{Id: "A"}
	stopB := gtfs.Stop{Id: "B"}

	trip := gtfs.ScheduledTrip{
		ID:      "X",
		Route:   &route,
		Service: &service,
		StopTimes: []gtfs.ScheduledStopTime{
			{Stop: &stopA, StopSequence: 0, ArrivalTime: 8 * time.Hour, DepartureTime: 8 * time.Hour},
			{Stop: &stopB, StopSequence: 1, ArrivalTime: 8*time.Hour + 10*time.Minute, DepartureTime: 8*time.Hour + 10*time.Minute},
		},
	}

	static := &gtfs.Static{
		Services: []gtfs.Service{service},
		Trips:    []gtfs.ScheduledTrip{trip},
	}

	input, err := gtfsadapter.FromStatic("F", "America/Los_Angeles", static)
	require.NoError(t, err)
	require.Equal(t, schedule.FeedId("F"), input.FeedID)
	require.Len(t, input.Trips, 1)
	require.Equal(t, "X", input.Trips[0].TripID)
	require.Equal(t, "R1", input.Trips[0].RouteID)
	require.Len(t, input.Trips[0].StopTimes, 2)
	require.Equal(t, 8*3600, input.Trips[0].StopTimes[0].ArrivalSec)

	idx, err := schedule.Build(input)
	require.NoError(t, err)
	sts, err := idx.StopTimes("F", schedule.TripDescriptor{TripID: "X", RouteID: "R1"})
	require.NoError(t, err)
	require.Len(t, sts, 2)
}

func TestFromStaticRejectsNil(t *testing.T) {
	_, err := gtfsadapter.FromStatic("F", "UTC", nil)
	require.Error(t, err)
}
