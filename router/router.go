package router

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"tripbased.dev/core/internal/clock"
	"tripbased.dev/core/internal/logging"
	"tripbased.dev/core/internal/metrics"
	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transfers"
)

const secondsPerDay = 24 * 60 * 60

// Config configures a Router. Either Registry or Index is required. Index
// and Transfers are the plain-construction path: NewRouter wraps them in a
// freshly-made schedule.Registry holding the one snapshot the Router will
// ever see. Passing Registry directly instead lets a caller reload the
// index and transfer map the router queries without rebuilding the Router
// itself — every Route call re-reads the registry's current snapshot, the
// same mutex-guarded atomic hot-swap pattern a live GTFS feed replacement
// uses. A day with no precomputed TransferMap is not an error (spec.md
// §4.3) — pass transfers.NewMap() and the router falls back to
// direct-ride-only results (S6).
type Config struct {
	Registry *schedule.Registry // optional; if set, Index and Transfers below are ignored

	Index     *schedule.Index
	Transfers *transfers.Map

	// MaxRounds bounds the number of transfer rounds. Default 3.
	MaxRounds int

	Clock   clock.Clock      // default clock.NewRealClock()
	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger     // defaults to slog.Default()
}

// Router executes TripBasedRouter.Route (spec.md §4.4) against the
// (ScheduleIndex, TransferMap) pair currently held by its registry. A
// Router holds no per-query state: every Route call takes one snapshot from
// the registry and owns a fresh queryState, so one Router is safe for
// concurrent queries and concurrent Reload calls.
type Router struct {
	registry  *schedule.Registry
	maxRounds int
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRouter validates cfg and returns a ready-to-use Router.
func NewRouter(cfg Config) (*Router, error) {
	registry := cfg.Registry
	if registry == nil {
		if cfg.Index == nil {
			return nil, fmt.Errorf("router: NewRouter requires a non-nil Index or Registry")
		}
		tm := cfg.Transfers
		if tm == nil {
			tm = transfers.NewMap()
		}
		registry = schedule.NewRegistry(schedule.Snapshot{Index: cfg.Index, Transfers: tm})
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "trip_based_router"))

	return &Router{
		registry:  registry,
		maxRounds: maxRounds,
		clock:     clk,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Reload atomically installs a newly built (Index, TransferMap) pair,
// returning the snapshot it replaced. Queries already in flight keep using
// the snapshot they took when they started; every Route call after Reload
// returns observes the new pair.
func (r *Router) Reload(idx *schedule.Index, tm *transfers.Map) schedule.Snapshot {
	return r.registry.Swap(schedule.Snapshot{Index: idx, Transfers: tm})
}

// snapshot takes the registry's current (Index, TransferMap) pair for one
// query to use from start to finish.
func (r *Router) snapshot() (*schedule.Index, *transfers.Map) {
	snap := r.registry.Current()
	tm, _ := snap.Transfers.(*transfers.Map)
	if tm == nil {
		tm = transfers.NewMap()
	}
	return snap.Index, tm
}

// queryState holds everything mutated during a single Route call: the
// segment arena, earliestArrival, tripDoneFromIndex, and the accumulating
// result set (spec.md §4.4's "State per query"), plus the (Index,
// TransferMap) snapshot this particular call is scanning against.
type queryState struct {
	idx       *schedule.Index
	transfers *transfers.Map

	arena             arena
	earliestArrival   int
	tripDoneFromIndex map[schedule.TripDescriptor]int
	result            []ResultLabel
	egress            []EgressStop
}

// Route executes the round-based scan for q, returning its Pareto-optimal
// result set and the segment arena those results' Parent chains index into.
// An empty access or egress list yields an empty result, not an error
// (spec.md §4.4 "Failure modes").
func (r *Router) Route(ctx context.Context, q Query) (QueryResult, error) {
	start := r.clock.Now()

	if len(q.Access) == 0 || len(q.Egress) == 0 {
		return QueryResult{}, nil
	}

	filter := q.Filter
	if filter == nil {
		filter = AcceptAll()
	}

	idx, tm := r.snapshot()

	day, err := r.resolveServiceDay(idx, q.Access, q.InitialTime)
	if err != nil {
		return QueryResult{}, err
	}

	state := &queryState{
		idx:               idx,
		transfers:         tm,
		earliestArrival:   math.MaxInt,
		tripDoneFromIndex: make(map[schedule.TripDescriptor]int),
		egress:            q.Egress,
	}

	queue, err := r.seed(state, q, day, filter)
	if err != nil {
		return QueryResult{}, err
	}
	r.observeQueueDepth(0, len(queue))

	rounds := 0
	for k := 0; k < r.maxRounds && len(queue) > 0; k++ {
		if err := ctx.Err(); err != nil {
			logging.LogError(r.logger, "route aborted", err, slog.Int("round", k))
			return QueryResult{Labels: state.result, Segments: state.arena.segments}, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		queue = r.round(state, queue)
		rounds = k + 1
		r.observeQueueDepth(rounds, len(queue))
	}

	if r.metrics != nil {
		r.metrics.RoundsExecuted.Observe(float64(rounds))
		r.metrics.ResultLabels.Observe(float64(len(state.result)))
		r.metrics.QueryDuration.Observe(r.clock.Now().Sub(start).Seconds())
	}

	return QueryResult{Labels: state.result, Segments: state.arena.segments}, nil
}

// RouteNaiveProfile runs Route once per minute across
// [InitialTime, InitialTime+ProfileLength], latest instant first, folding
// every instant's results into one dominated set (spec.md §4.4). Each
// per-minute call owns its own segment arena, so merging renumbers every
// carried-over SegmentRef by the combined arena's length so far.
func (r *Router) RouteNaiveProfile(ctx context.Context, q Query) (QueryResult, error) {
	if q.ProfileLength <= 0 {
		return r.Route(ctx, q)
	}

	var all QueryResult
	for delta := q.ProfileLength; delta >= 0; delta -= time.Minute {
		sub := q
		sub.InitialTime = q.InitialTime.Add(delta)
		sub.ProfileLength = 0

		result, err := r.Route(ctx, sub)
		offset := SegmentRef(len(all.Segments))
		all.Segments = append(all.Segments, offsetSegments(result.Segments, offset)...)
		for _, l := range result.Labels {
			l.Parent = offsetRef(l.Parent, offset)
			all.Labels = insertDominant(all.Labels, l)
		}
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func offsetRef(ref SegmentRef, offset SegmentRef) SegmentRef {
	if ref == NoSegment {
		return NoSegment
	}
	return ref + offset
}

func offsetSegments(segments []EnqueuedTripSegment, offset SegmentRef) []EnqueuedTripSegment {
	out := make([]EnqueuedTripSegment, len(segments))
	for i, s := range segments {
		s.Parent = offsetRef(s.Parent, offset)
		out[i] = s
	}
	return out
}

func (r *Router) observeQueueDepth(round, depth int) {
	if r.metrics == nil {
		return
	}
	r.metrics.QueueDepth.WithLabelValues(strconv.Itoa(round)).Observe(float64(depth))
}

// resolveServiceDay derives the target service day from the first access
// stop's feed time zone, and rejects queries whose other access stops'
// feeds disagree on the calendar date for the same instant (spec.md §9's
// second Open Question: no silent guess across incompatible zones).
func (r *Router) resolveServiceDay(idx *schedule.Index, access []AccessStop, initialTime time.Time) (time.Time, error) {
	day, err := r.calendarDate(idx, access[0].Stop.FeedID, initialTime)
	if err != nil {
		return time.Time{}, err
	}
	for _, a := range access[1:] {
		d, err := r.calendarDate(idx, a.Stop.FeedID, initialTime)
		if err != nil {
			return time.Time{}, err
		}
		if !d.Equal(day) {
			return time.Time{}, fmt.Errorf("%w: %s vs %s", ErrIncompatibleServiceDay,
				day.Format("2006-01-02"), d.Format("2006-01-02"))
		}
	}
	return day, nil
}

func (r *Router) calendarDate(idx *schedule.Index, feedID schedule.FeedId, t time.Time) (time.Time, error) {
	loc, err := r.location(idx, feedID)
	if err != nil {
		return time.Time{}, err
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (r *Router) location(idx *schedule.Index, feedID schedule.FeedId) (*time.Location, error) {
	tz, err := idx.TimeZone(feedID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("router: load location %q: %w", tz, err)
	}
	return loc, nil
}

// seed performs Round 0: for each access stop, binary-search every pattern's
// sorted boardings for the first departure at or after the access-adjusted
// initial time whose service is active on day and which the filter accepts.
func (r *Router) seed(state *queryState, q Query, day time.Time, filter TripFilter) ([]SegmentRef, error) {
	var queue []SegmentRef

	for i := range q.Access {
		access := q.Access[i]
		loc, err := r.location(state.idx, access.Stop.FeedID)
		if err != nil {
			return nil, err
		}
		local := q.InitialTime.In(loc)
		earliestDepartureAtStop := local.Hour()*3600 + local.Minute()*60 + local.Second() + int(access.WalkDelta.Seconds())

		boardingsByPattern, err := state.idx.BoardingsByPattern(access.Stop)
		if err != nil {
			return nil, err
		}

		for _, candidates := range boardingsByPattern {
			ref, err := r.seedPattern(state, candidates, access, earliestDepartureAtStop, day, filter)
			if err != nil {
				return nil, err
			}
			if ref != NoSegment {
				queue = append(queue, ref)
			}
		}
	}

	sort.Slice(queue, func(i, j int) bool {
		return state.arena.get(queue[i]).DepartureSec < state.arena.get(queue[j]).DepartureSec
	})
	return queue, nil
}

func (r *Router) seedPattern(state *queryState, candidates []schedule.StoppingEvent, access AccessStop, earliestDepartureAtStop int, day time.Time, filter TripFilter) (SegmentRef, error) {
	i := sort.Search(len(candidates), func(i int) bool {
		dep, _, err := r.departureAt(state.idx, candidates[i])
		return err == nil && dep >= earliestDepartureAtStop
	})

	for ; i < len(candidates); i++ {
		candidate := candidates[i]
		dep, _, err := r.departureAt(state.idx, candidate)
		if err != nil {
			return NoSegment, err
		}

		active, err := state.idx.ServiceActive(candidate.FeedID, candidate.Trip, day)
		if err != nil {
			return NoSegment, err
		}
		if !active {
			continue
		}
		if !filter.Accept(r.metadata(state.idx, candidate)) {
			continue
		}

		seg := EnqueuedTripSegment{
			Event:              candidate,
			ToStopSequenceExcl: math.MaxInt,
			DepartureSec:       dep,
			Parent:             NoSegment,
			AccessStop:         &access,
		}
		return state.arena.add(seg), nil
	}
	return NoSegment, nil
}

func (r *Router) metadata(idx *schedule.Index, e schedule.StoppingEvent) TripMetadata {
	routeID, _ := idx.RouteID(e.FeedID, e.Trip)
	routeType, _ := idx.RouteType(e.FeedID, e.Trip)
	agencyID, _ := idx.AgencyID(e.FeedID, e.Trip)
	return TripMetadata{FeedID: e.FeedID, Trip: e.Trip, RouteID: routeID, RouteType: routeType, AgencyID: agencyID}
}

func (r *Router) departureAt(idx *schedule.Index, e schedule.StoppingEvent) (int, schedule.StopTime, error) {
	stopTimes, err := idx.StopTimes(e.FeedID, e.Trip)
	if err != nil {
		return 0, schedule.StopTime{}, err
	}
	_, st, ok := stopTimeAtSequence(stopTimes, e.StopSequence)
	if !ok {
		return 0, schedule.StopTime{}, fmt.Errorf("router: stop sequence %d not found on trip %s", e.StopSequence, e.Trip.TripID)
	}
	return st.DepartureSec, st, nil
}

// round performs one application of the two-pass scan (spec.md §4.4): Pass 1
// finds egress hits and prunes state.result; Pass 2 enqueues follow-on
// segments via the TransferMap. Pass 1 runs to completion across the whole
// queue before Pass 2 begins, so Pass 2's early-termination bound reflects
// every improvement Pass 1 found this round.
func (r *Router) round(state *queryState, queue []SegmentRef) []SegmentRef {
	for _, ref := range queue {
		r.scanEgress(state, ref)
	}

	var next []SegmentRef
	for _, ref := range queue {
		r.scanTransfers(state, ref, &next)
	}
	return next
}

func (r *Router) scanEgress(state *queryState, ref SegmentRef) {
	seg := state.arena.get(ref)
	stopTimes, err := state.idx.StopTimes(seg.Event.FeedID, seg.Event.Trip)
	if err != nil {
		return
	}

	for _, st := range stopTimes {
		if st.StopSequence <= seg.Event.StopSequence {
			continue
		}
		if st.StopSequence >= seg.ToStopSequenceExcl {
			break
		}
		absArrival := st.ArrivalSec + seg.DayOffset*secondsPerDay
		if absArrival >= state.earliestArrival {
			break
		}
		for _, eg := range state.egress {
			if st.StopID != eg.Stop {
				continue
			}
			withEgress := absArrival + int(eg.WalkDelta.Seconds())
			if withEgress >= state.earliestArrival {
				continue
			}
			state.earliestArrival = withEgress
			label := ResultLabel{
				Transfers:    seg.Transfers,
				EgressStop:   eg.Stop,
				FinalEvent:   schedule.StoppingEvent{FeedID: seg.Event.FeedID, Trip: seg.Event.Trip, StopSequence: st.StopSequence},
				ArrivalSec:   withEgress,
				DepartureSec: seg.DepartureSec,
				Parent:       ref,
			}
			state.result = insertDominant(state.result, label)
		}
	}
}

func (r *Router) scanTransfers(state *queryState, ref SegmentRef, next *[]SegmentRef) {
	seg := state.arena.get(ref)
	stopTimes, err := state.idx.StopTimes(seg.Event.FeedID, seg.Event.Trip)
	if err != nil {
		return
	}

	for _, st := range stopTimes {
		if st.StopSequence <= seg.Event.StopSequence {
			continue
		}
		if st.StopSequence >= seg.ToStopSequenceExcl {
			break
		}
		absArrival := st.ArrivalSec + seg.DayOffset*secondsPerDay
		if absArrival >= state.earliestArrival {
			break
		}

		origin := schedule.StoppingEvent{FeedID: seg.Event.FeedID, Trip: seg.Event.Trip, StopSequence: st.StopSequence}
		destinations, ok := state.transfers.Get(origin)
		if !ok {
			continue
		}
		for _, dst := range destinations {
			r.enqueue(state, next, dst, origin, seg, st, ref)
		}
	}
}

// enqueue implements spec.md §4.4's enqueue operation: prune against
// tripDoneFromIndex, append a new segment on acceptance, then mark every
// trip in dst's pattern from dst onward as done from dst's stop sequence.
func (r *Router) enqueue(state *queryState, next *[]SegmentRef, dst, origin schedule.StoppingEvent, parentSeg EnqueuedTripSegment, originStopTime schedule.StopTime, parentRef SegmentRef) {
	doneFrom, ok := state.tripDoneFromIndex[dst.Trip]
	if !ok {
		doneFrom = math.MaxInt
	}
	if dst.StopSequence >= doneFrom {
		return
	}

	destStopTimes, err := state.idx.StopTimes(dst.FeedID, dst.Trip)
	if err != nil {
		return
	}
	_, destST, found := stopTimeAtSequence(destStopTimes, dst.StopSequence)
	if !found {
		return
	}

	// If the destination trip's departure-of-day is numerically earlier
	// than the origin trip's arrival-of-day, the boarding happens after a
	// service-day boundary (spec.md §4.2's overnight rule, applied again
	// here since the transfer itself carries no day information).
	dayOffset := parentSeg.DayOffset
	if destST.DepartureSec < originStopTime.ArrivalSec {
		dayOffset++
	}

	originBlock, err := state.idx.BlockID(origin.FeedID, origin.Trip)
	if err != nil {
		return
	}
	destBlock, err := state.idx.BlockID(dst.FeedID, dst.Trip)
	if err != nil {
		return
	}
	transferCount := parentSeg.Transfers
	if !(originBlock != "" && originBlock == destBlock) {
		transferCount++
	}

	newSeg := EnqueuedTripSegment{
		Event:              dst,
		ToStopSequenceExcl: doneFrom,
		DayOffset:          dayOffset,
		Transfers:          transferCount,
		DepartureSec:       parentSeg.DepartureSec,
		TransferOrigin:     origin,
		HasTransferOrigin:  true,
		Parent:             parentRef,
	}
	ref := state.arena.add(newSeg)
	*next = append(*next, ref)

	r.markDone(state, dst)
}

// markDone implements "mark done" from spec.md §4.4: every trip in dst's
// pattern from dst onward (inclusive, in the pattern's departure order)
// dominates dst from dst.StopSequence onward, so future candidates on those
// trips are pruned at or before that sequence.
func (r *Router) markDone(state *queryState, dst schedule.StoppingEvent) {
	pattern, err := state.idx.PatternOf(dst.FeedID, dst.Trip)
	if err != nil {
		return
	}
	seenSelf := false
	for _, t := range pattern.Trips {
		if t == dst.Trip {
			seenSelf = true
		}
		if seenSelf {
			state.tripDoneFromIndex[t] = dst.StopSequence
		}
	}
}

// stopTimeAtSequence finds the stop time whose StopSequence equals seq
// within stopTimes (sorted ascending by StopSequence), via binary search
// rather than assuming stop sequences are contiguous array positions.
func stopTimeAtSequence(stopTimes []schedule.StopTime, seq int) (int, schedule.StopTime, bool) {
	i := sort.Search(len(stopTimes), func(i int) bool { return stopTimes[i].StopSequence >= seq })
	if i < len(stopTimes) && stopTimes[i].StopSequence == seq {
		return i, stopTimes[i], true
	}
	return 0, schedule.StopTime{}, false
}

// insertDominant inserts l into result under (arrival, transfers,
// -departure) dominance (spec.md §4.4 and §8 invariant 2): l is dropped if
// any existing label is at least as good in all three dimensions; otherwise
// every existing label l strictly dominates is removed before l is appended.
func insertDominant(result []ResultLabel, l ResultLabel) []ResultLabel {
	for _, existing := range result {
		if weaklyDominates(existing, l) {
			return result
		}
	}
	kept := result[:0]
	for _, existing := range result {
		if !weaklyDominates(l, existing) {
			kept = append(kept, existing)
		}
	}
	return append(kept, l)
}

// weaklyDominates reports whether a is at least as good as b in every
// dimension: earlier-or-equal arrival, fewer-or-equal transfers, and
// later-or-equal departure.
func weaklyDominates(a, b ResultLabel) bool {
	return a.ArrivalSec <= b.ArrivalSec && a.Transfers <= b.Transfers && a.DepartureSec >= b.DepartureSec
}
