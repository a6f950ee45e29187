package sqlitestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripbased.dev/core/internal/config"
	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transferstore/sqlitestore"
	"tripbased.dev/core/transfers"
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.NewStore(sqlitestore.Config{DBPath: ":memory:", Env: config.Test})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRejectsFileBackedTestEnv(t *testing.T) {
	_, err := sqlitestore.NewStore(sqlitestore.Config{DBPath: "/tmp/should-reject.db", Env: config.Test})
	require.Error(t, err)
}

func TestGetAbsentDayReturnsEmptyMap(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	m, err := s.Get(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, 0, m.Len())
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	origin := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R"}, StopSequence: 1}
	dest1 := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "B", RouteID: "R2"}, StopSequence: 0}
	dest2 := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "C", HasStart: true, StartTime: 3600}, StopSequence: 2}

	m := transfers.FromSnapshot(map[schedule.StoppingEvent][]schedule.StoppingEvent{
		origin: {dest1, dest2},
	})

	require.NoError(t, s.Put(context.Background(), day, m))

	got, err := s.Get(context.Background(), day)
	require.NoError(t, err)
	dst, ok := got.Get(origin)
	require.True(t, ok)
	require.Equal(t, []schedule.StoppingEvent{dest1, dest2}, dst)
}

// A file-backed store must survive a close and reopen: the zstd-compressed
// blob written by one process's Put must decompress correctly when read back
// by a fresh *Store over the same file.
func TestRoundTripsThroughCloseAndReopen(t *testing.T) {
	path := t.TempDir() + "/transfers.db"
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	origin := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "A", RouteID: "R"}, StopSequence: 1}
	dest := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "B", RouteID: "R2"}, StopSequence: 0}

	writer, err := sqlitestore.NewStore(sqlitestore.Config{DBPath: path, Env: config.Development})
	require.NoError(t, err)
	m := transfers.FromSnapshot(map[schedule.StoppingEvent][]schedule.StoppingEvent{origin: {dest}})
	require.NoError(t, writer.Put(context.Background(), day, m))
	require.NoError(t, writer.Close())

	reader, err := sqlitestore.NewStore(sqlitestore.Config{DBPath: path, Env: config.Development})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	got, err := reader.Get(context.Background(), day)
	require.NoError(t, err)
	dst, ok := got.Get(origin)
	require.True(t, ok)
	require.Equal(t, []schedule.StoppingEvent{dest}, dst)
}

func TestPutReplacesPreviousDayContents(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	origin := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "A"}, StopSequence: 1}
	dest := schedule.StoppingEvent{FeedID: "F", Trip: schedule.TripDescriptor{TripID: "B"}, StopSequence: 0}

	first := transfers.FromSnapshot(map[schedule.StoppingEvent][]schedule.StoppingEvent{origin: {dest}})
	require.NoError(t, s.Put(context.Background(), day, first))

	second := transfers.FromSnapshot(map[schedule.StoppingEvent][]schedule.StoppingEvent{})
	require.NoError(t, s.Put(context.Background(), day, second))

	got, err := s.Get(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, 0, got.Len())
}
