package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripbased.dev/core/internal/config"
	"tripbased.dev/core/schedule"
)

func TestEnvironmentString(t *testing.T) {
	require.Equal(t, "development", config.Development.String())
	require.Equal(t, "test", config.Test.String())
	require.Equal(t, "production", config.Production.String())
}

func TestDefaultRouterConfig(t *testing.T) {
	c := config.DefaultRouterConfig()
	require.Equal(t, config.Production, c.Env)
	require.Equal(t, 3, c.MaxRounds)
}

func TestDefaultTransferBuilderConfig(t *testing.T) {
	c := config.DefaultTransferBuilderConfig()
	require.Equal(t, 900, c.MaxTransferDurationSeconds)
	require.Greater(t, c.Threads, 0)
	require.InDelta(t, 1.3, c.WalkingSpeedMetersPerSecond, 0.001)
	require.Zero(t, c.RateLimit)
}

func TestRouterConfigToRouterConfigCarriesRegistryAndMaxRounds(t *testing.T) {
	idx, err := schedule.Build(schedule.FeedInput{FeedID: "F", TimeZone: "UTC"})
	require.NoError(t, err)
	registry := schedule.NewRegistry(schedule.Snapshot{Index: idx})

	c := config.RouterConfig{MaxRounds: 5}
	rc := c.ToRouterConfig(registry)

	require.Same(t, registry, rc.Registry)
	require.Equal(t, 5, rc.MaxRounds)
}

func TestTransferBuilderConfigToBuilderConfigAppliesRateLimit(t *testing.T) {
	idx, err := schedule.Build(schedule.FeedInput{FeedID: "F", TimeZone: "UTC"})
	require.NoError(t, err)

	withoutLimit := config.TransferBuilderConfig{MaxTransferDurationSeconds: 600, Threads: 2}
	bc := withoutLimit.ToBuilderConfig(idx, nil, nil)
	require.Equal(t, idx, bc.Index)
	require.Equal(t, 600*time.Second, bc.MaxTransferDuration)
	require.Equal(t, 2, bc.Workers)
	require.Nil(t, bc.RateLimiter)

	withLimit := config.TransferBuilderConfig{RateLimit: 50}
	bc = withLimit.ToBuilderConfig(idx, nil, nil)
	require.NotNil(t, bc.RateLimiter)
}
