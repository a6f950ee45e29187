package transferstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transferstore"
	"tripbased.dev/core/transfers"
)

func TestMemoryStoreAbsentDayYieldsEmptyMap(t *testing.T) {
	s := transferstore.NewMemoryStore()
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	m, err := s.Get(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, 0, m.Len())
}

func TestMemoryStorePutThenGetRoundTrips(t *testing.T) {
	s := transferstore.NewMemoryStore()
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	origin := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "A"}, StopSequence: 1}
	dest := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "B"}, StopSequence: 0}
	m := transfers.FromSnapshot(map[schedule.StoppingEvent][]schedule.StoppingEvent{origin: {dest}})

	require.NoError(t, s.Put(context.Background(), day, m))

	got, err := s.Get(context.Background(), day)
	require.NoError(t, err)
	dst, ok := got.Get(origin)
	require.True(t, ok)
	require.Equal(t, []schedule.StoppingEvent{dest}, dst)
}

func TestStoppingEventCodecRoundTrips(t *testing.T) {
	e := schedule.StoppingEvent{
		FeedID:       "feed-1",
		Trip:         schedule.TripDescriptor{TripID: "trip-42", RouteID: "route-7", HasStart: true, StartTime: 28800},
		StopSequence: 3,
	}
	encoded := transferstore.EncodeStoppingEvent(e)
	decoded, n, err := transferstore.DecodeStoppingEvent(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, e, decoded)
}

func TestDestinationsCodecRoundTrips(t *testing.T) {
	dsts := []schedule.StoppingEvent{
		{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "A"}, StopSequence: 1},
		{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "B"}, StopSequence: 2},
	}
	encoded := transferstore.EncodeDestinations(dsts)
	decoded, err := transferstore.DecodeDestinations(encoded)
	require.NoError(t, err)
	require.Equal(t, dsts, decoded)
}
