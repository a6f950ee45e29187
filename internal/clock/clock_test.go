package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripbased.dev/core/internal/clock"
)

func TestRealClockAdvances(t *testing.T) {
	c := clock.NewRealClock()
	first := c.Now()
	time.Sleep(time.Millisecond)
	require.True(t, c.Now().After(first) || c.Now().Equal(first))
}

func TestMockClockSetAndAdvance(t *testing.T) {
	base := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)
	c := clock.NewMockClock(base)
	require.Equal(t, base, c.Now())
	require.Equal(t, base.UnixMilli(), c.NowUnixMilli())

	next := base.Add(time.Hour)
	c.Set(next)
	require.Equal(t, next, c.Now())

	c.Advance(30 * time.Minute)
	require.Equal(t, next.Add(30*time.Minute), c.Now())
}
