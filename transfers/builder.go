package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"tripbased.dev/core/internal/logging"
	"tripbased.dev/core/internal/metrics"
	"tripbased.dev/core/schedule"
	"tripbased.dev/core/spatial"
)

// maximumTransferDuration bounds how far past a trip's arrival at a stop the
// builder will look for an onward boarding, per spec.md §4.2.
const maximumTransferDuration = 15 * 60

const secondsPerDay = 24 * 60 * 60

// InterpolatedIndex answers "which nearby stops can I reach on foot from
// this stop" during transfer precomputation. A spatial.Graph's Nearby
// results, precomputed per stop, satisfy this shape via NewInterpolatedIndex.
type InterpolatedIndex map[schedule.StopId][]spatial.InterpolatedTransfer

// NewInterpolatedIndex precomputes an InterpolatedIndex for every stop
// location using g, so the builder never calls into the spatial index while
// walking a trip backward.
func NewInterpolatedIndex(g *spatial.Graph, locs []schedule.StopLocation, radiusMeters float64) InterpolatedIndex {
	idx := make(InterpolatedIndex, len(locs))
	for _, l := range locs {
		if ts := g.Nearby(l.StopID, l.Latitude, l.Longitude, radiusMeters); len(ts) > 0 {
			idx[l.StopID] = ts
		}
	}
	return idx
}

// Config configures a Builder. Index is required; the rest have sane
// defaults matching internal/config's transfer-builder section.
type Config struct {
	Index               *schedule.Index
	ExplicitTransfers   []ExplicitTransfer
	Interpolated        InterpolatedIndex
	MaxTransferDuration time.Duration // default 15 minutes
	Workers             int           // default runtime.NumCPU()
	RateLimiter         *rate.Limiter // optional, throttles per-trip dispatch
	Metrics             *metrics.Metrics // optional
	Logger              *slog.Logger     // defaults to slog.Default()
}

// Builder precomputes, for a given traffic day, the transfer graph a
// TripBasedRouter walks during its transfer-enqueue phase (spec.md §4.2).
// One Builder may be reused across multiple calls to Build for different
// days; it holds no per-day mutable state itself.
type Builder struct {
	idx                 *schedule.Index
	explicitByFromStop  map[schedule.StopId][]ExplicitTransfer
	interpolated        InterpolatedIndex
	maxTransferDuration int // seconds
	workers             int
	limiter             *rate.Limiter
	metrics             *metrics.Metrics
	logger              *slog.Logger
}

// NewBuilder validates cfg and returns a ready-to-use Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("transfers: NewBuilder requires a non-nil Index")
	}
	maxDur := int(cfg.MaxTransferDuration / time.Second)
	if maxDur <= 0 {
		maxDur = maximumTransferDuration
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	explicitByFrom := make(map[schedule.StopId][]ExplicitTransfer, len(cfg.ExplicitTransfers))
	for _, et := range cfg.ExplicitTransfers {
		explicitByFrom[et.FromStop] = append(explicitByFrom[et.FromStop], et)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "transfer_builder"))

	return &Builder{
		idx:                 cfg.Index,
		explicitByFromStop:  explicitByFrom,
		interpolated:        cfg.Interpolated,
		maxTransferDuration: maxDur,
		workers:             workers,
		limiter:             cfg.RateLimiter,
		metrics:             cfg.Metrics,
		logger:              logger,
	}, nil
}

// Build precomputes the transfer map for every trip active on day across
// every feed in the Index, mirroring Trips.findAllTripTransfersInto. Trips
// are processed concurrently across a worker pool sized by Config.Workers.
//
// Build returns ErrServiceMissing if a trip's calendar cannot be resolved
// while filtering trips active on day, and ErrInconsistentStopTimes for any
// trip with fewer than two stop times.
func (b *Builder) Build(ctx context.Context, day time.Time) (*Map, error) {
	logging.LogOperation(b.logger, "transfer_build_started", slog.Time("day", day))

	result := NewMap()
	for _, feedID := range b.idx.Feeds() {
		if err := b.buildFeed(ctx, feedID, day, result); err != nil {
			logging.LogError(b.logger, "transfer build failed", err, slog.String("feed", string(feedID)))
			return nil, err
		}
	}

	if b.metrics != nil {
		edges := 0
		for _, dst := range result.Snapshot() {
			edges += len(dst)
		}
		b.metrics.TransfersBuilt.Add(float64(edges))
	}
	logging.LogOperation(b.logger, "transfer_build_completed",
		slog.Time("day", day), slog.Int("origins", result.Len()))

	return result, nil
}

func (b *Builder) buildFeed(ctx context.Context, feedID schedule.FeedId, day time.Time, result *Map) error {
	allTrips, err := b.idx.Trips(feedID)
	if err != nil {
		return err
	}

	var active []schedule.TripDescriptor
	for _, td := range allTrips {
		ok, err := b.idx.ServiceActive(feedID, td, day)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrServiceMissing, err)
		}
		if ok {
			active = append(active, td)
		}
	}

	p := pool.New().WithMaxGoroutines(b.workers)

	var mu sync.Mutex
	var firstErr error
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, td := range active {
		td := td
		p.Go(func() {
			mu.Lock()
			bail := firstErr != nil
			mu.Unlock()
			if bail || ctx.Err() != nil {
				return
			}
			if b.limiter != nil {
				if err := b.limiter.Wait(ctx); err != nil {
					setErr(err)
					return
				}
			}
			origins, err := b.findTripTransfers(feedID, td, day)
			if err != nil {
				setErr(err)
				return
			}
			for origin, destinations := range origins {
				if len(destinations) == 0 {
					// Record the origin with an empty collection so a prepared
					// day is distinguishable from an unprepared one in Get.
					result.mu.Lock()
					if _, seen := result.m[origin]; !seen {
						result.m[origin] = nil
					}
					result.mu.Unlock()
					continue
				}
				for _, dst := range destinations {
					result.insert(origin, dst)
				}
			}
		})
	}
	p.Wait()

	return firstErr
}

// findTripTransfers computes, for every stop-sequence of trip except its
// first (the last stop included), the onward stopping events reachable within the
// transfer-duration cap. Grounded on Trips.java's findTripTransfers.
func (b *Builder) findTripTransfers(feedID schedule.FeedId, trip schedule.TripDescriptor, day time.Time) (map[schedule.StoppingEvent][]schedule.StoppingEvent, error) {
	stopTimes, err := b.idx.StopTimes(feedID, trip)
	if err != nil {
		return nil, err
	}
	if len(stopTimes) < 2 {
		return nil, fmt.Errorf("%w: trip %s has %d stop times", ErrInconsistentStopTimes, trip.TripID, len(stopTimes))
	}

	// Indices 1..end skip the trip's first stop: no one transfers away from
	// where they just boarded within the same trip.
	rest := stopTimes[1:]

	arrivalTimes := make(map[schedule.StopId]int)
	for i := len(rest) - 1; i >= 0; i-- {
		st := rest[i]
		updateMin(arrivalTimes, st.StopID, st.ArrivalSec)
		for _, it := range b.interpolated[st.StopID] {
			updateMin(arrivalTimes, it.To, st.ArrivalSec+it.WalkingSecs)
		}
	}

	result := make(map[schedule.StoppingEvent][]schedule.StoppingEvent, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		st := rest[i]
		origin := schedule.StoppingEvent{FeedID: feedID, Trip: trip, StopSequence: st.StopSequence}

		byToStop := make(map[schedule.StopId][]ExplicitTransfer)
		for _, et := range b.explicitByFromStop[st.StopID] {
			byToStop[et.ToStop] = append(byToStop[et.ToStop], et)
		}

		var destinations []schedule.StoppingEvent
		if _, explicitOverridesSameStop := byToStop[st.StopID]; !explicitOverridesSameStop {
			dst, err := b.insertTripTransfers(day, arrivalTimes, st, st.StopID, 0, nil)
			if err != nil {
				return nil, err
			}
			destinations = append(destinations, dst...)
		}
		for toStop, ets := range byToStop {
			dst, err := b.insertTripTransfers(day, arrivalTimes, st, toStop, 0, ets)
			if err != nil {
				return nil, err
			}
			destinations = append(destinations, dst...)
		}
		for _, it := range b.interpolated[st.StopID] {
			dst, err := b.insertTripTransfers(day, arrivalTimes, st, it.To, it.WalkingSecs, nil)
			if err != nil {
				return nil, err
			}
			destinations = append(destinations, dst...)
		}

		result[origin] = destinations
	}
	return result, nil
}

// insertTripTransfers finds, for a single onward stop, the earliest
// dominant boarding per pattern and appends it to the destinations it
// returns. Grounded on Trips.java's insertTripTransfers.
func (b *Builder) insertTripTransfers(day time.Time, arrivalTimes map[schedule.StopId]int, arrivalStopTime schedule.StopTime, boardingStop schedule.StopId, streetTimeSecs int, routeTransfers []ExplicitTransfer) ([]schedule.StoppingEvent, error) {
	earliestDepartureTime := arrivalStopTime.ArrivalSec + streetTimeSecs

	boardingsByPattern, err := b.idx.BoardingsByPattern(boardingStop)
	if err != nil {
		return nil, err
	}

	var destinations []schedule.StoppingEvent

nextPattern:
	for _, candidates := range boardingsByPattern {
		for _, candidate := range candidates {
			candStopTimes, err := b.idx.StopTimes(candidate.FeedID, candidate.Trip)
			if err != nil {
				return nil, err
			}
			departureIdx, departureST, ok := stopTimeAtSequence(candStopTimes, candidate.StopSequence)
			if !ok {
				continue
			}

			if departureST.DepartureSec >= arrivalStopTime.ArrivalSec+b.maxTransferDuration {
				continue nextPattern
			}

			active, err := b.idx.ServiceActive(candidate.FeedID, candidate.Trip, day)
			if err != nil {
				return nil, err
			}
			if !active {
				continue
			}

			earliestDepartureForDestination := earliestDepartureTime
			if len(routeTransfers) > 0 {
				candRouteID, err := b.idx.RouteID(candidate.FeedID, candidate.Trip)
				if err != nil {
					return nil, err
				}
				for _, tr := range routeTransfers {
					if tr.ToRouteID == "" || tr.ToRouteID == candRouteID {
						earliestDepartureForDestination += tr.MinTransferTimeS
					}
				}
			}

			if departureST.DepartureSec < earliestDepartureForDestination {
				continue
			}

			keep := false
			overnight := false
			for i := departureIdx; i < len(candStopTimes); i++ {
				destST := candStopTimes[i]
				destArrival := destST.ArrivalSec
				if i == departureIdx {
					if destArrival < earliestDepartureTime {
						overnight = true
					}
					continue
				}
				if overnight {
					destArrival += secondsPerDay
				}
				oldArrival, had := arrivalTimes[destST.StopID]
				if !had {
					oldArrival = math.MaxInt
				}
				if destArrival < oldArrival {
					keep = true
					arrivalTimes[destST.StopID] = destArrival
				}
			}
			if keep {
				destinations = append(destinations, candidate)
			}
			continue nextPattern
		}
	}

	return destinations, nil
}

func updateMin(m map[schedule.StopId]int, key schedule.StopId, val int) {
	if old, ok := m[key]; !ok || val < old {
		m[key] = val
	}
}

// stopTimeAtSequence finds the stop time whose StopSequence equals seq,
// returning its position within stopTimes (sorted ascending by
// StopSequence). Positions, not raw sequence numbers, drive the onward walk
// since sequence numbers need not be contiguous.
func stopTimeAtSequence(stopTimes []schedule.StopTime, seq int) (int, schedule.StopTime, bool) {
	i := sort.Search(len(stopTimes), func(i int) bool { return stopTimes[i].StopSequence >= seq })
	if i < len(stopTimes) && stopTimes[i].StopSequence == seq {
		return i, stopTimes[i], true
	}
	return 0, schedule.StopTime{}, false
}
