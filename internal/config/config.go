// Package config holds the small set of tunables the routing core and
// transfer builder need: an Environment enum plus a per-subsystem Config
// struct, the same grouping a GTFS ingestion service uses for its settings.
package config

import (
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"tripbased.dev/core/router"
	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transfers"
)

// Environment selects which defaults and validation strictness apply.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Development:
		return "development"
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// RouterConfig tunes TripBasedRouter.Route.
type RouterConfig struct {
	Env Environment

	// MaxRounds bounds how many transfer rounds Route performs before
	// giving up on finding additional Pareto-improving results.
	MaxRounds int
}

// DefaultRouterConfig returns production-sane defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{Env: Production, MaxRounds: 3}
}

// ToRouterConfig builds the router.Config this RouterConfig describes for
// the given registry. It is the bridge between this package's tunables and
// router.NewRouter's own independent Config type.
func (c RouterConfig) ToRouterConfig(registry *schedule.Registry) router.Config {
	return router.Config{
		Registry:  registry,
		MaxRounds: c.MaxRounds,
	}
}

// TransferBuilderConfig tunes transfers.Builder.
type TransferBuilderConfig struct {
	Env Environment

	// MaxTransferDurationSeconds caps how long after arriving at a stop the
	// builder will look for an onward boarding.
	MaxTransferDurationSeconds int

	// Threads sizes the per-trip worker pool.
	Threads int

	// WalkingSpeedMetersPerSecond feeds spatial.Graph's interpolated-transfer
	// walking-time estimate.
	WalkingSpeedMetersPerSecond float64

	// RateLimit caps dispatched trips per second; 0 means unlimited.
	RateLimit float64
}

// DefaultTransferBuilderConfig returns production-sane defaults: a 15-minute
// transfer cap, one worker per CPU, brisk-pedestrian walking speed, and no
// rate limit.
func DefaultTransferBuilderConfig() TransferBuilderConfig {
	return TransferBuilderConfig{
		Env:                         Production,
		MaxTransferDurationSeconds:  15 * 60,
		Threads:                     runtime.NumCPU(),
		WalkingSpeedMetersPerSecond: 1.3,
		RateLimit:                   0,
	}
}

// ToBuilderConfig builds the transfers.Config this TransferBuilderConfig
// describes for idx, pairing it with whatever explicit transfers and
// interpolated-transfer index the caller already built. TransferBuilder
// itself has no notion of walking speed; WalkingSpeedMetersPerSecond is
// consumed by the caller when constructing the spatial.Graph that in turn
// produces interpolated.
func (c TransferBuilderConfig) ToBuilderConfig(idx *schedule.Index, interpolated transfers.InterpolatedIndex, explicit []transfers.ExplicitTransfer) transfers.Config {
	var limiter *rate.Limiter
	if c.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RateLimit), 1)
	}
	return transfers.Config{
		Index:               idx,
		ExplicitTransfers:   explicit,
		Interpolated:        interpolated,
		MaxTransferDuration: time.Duration(c.MaxTransferDurationSeconds) * time.Second,
		Workers:             c.Threads,
		RateLimiter:         limiter,
	}
}
