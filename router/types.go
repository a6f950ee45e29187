// Package router executes the multi-round Trip-Based (TB) search: it scans
// enqueued trip segments round by round, records egress arrivals, and
// enqueues follow-on segments via a precomputed TransferMap (spec.md §4.4).
package router

import (
	"time"

	"tripbased.dev/core/schedule"
)

// SegmentRef indexes into a QueryResult's Segments slice. Exported so
// package journey can walk a ResultLabel's parent chain without the router
// package exposing its internal per-query arena type.
type SegmentRef int32

// NoSegment marks a root segment: its journey started at an access stop,
// not at a transfer.
const NoSegment SegmentRef = -1

// EnqueuedTripSegment is one entry of the round-based scan's frontier: a
// single trip ridden from Event's stop sequence up to (but not including)
// ToStopSequenceExcl. Segments form a tree via Parent, walked to reconstruct
// a journey. They live in a flat arena rather than as a pointer chain
// (spec.md §9's cache-friendliness note), so a query's entire working set is
// a handful of contiguous slices, trivially dropped when Route returns.
type EnqueuedTripSegment struct {
	Event              schedule.StoppingEvent
	ToStopSequenceExcl int

	// DayOffset counts how many service-day boundaries (spec.md §4.2's
	// overnight wrap) separate this segment's trip from the query's target
	// service day. Zero for every round-0 (access) segment.
	DayOffset int

	// Transfers is the number of real transfers taken to reach this
	// segment: a same-block_id continuation does not increment it
	// (spec.md §4.4 "Transfer counting"). It is the middle term of result
	// dominance.
	Transfers int

	// DepartureSec is the absolute, DayOffset-adjusted departure second of
	// the journey's very first boarding, propagated unchanged from the
	// root segment. It is the third (reversed) term of result dominance.
	DepartureSec int

	// TransferOrigin is the stopping event this segment was reached from,
	// valid iff HasTransferOrigin. A root segment has neither a
	// TransferOrigin nor a Parent; it has AccessStop instead.
	TransferOrigin    schedule.StoppingEvent
	HasTransferOrigin bool

	Parent     SegmentRef
	AccessStop *AccessStop
}

// arena owns every EnqueuedTripSegment allocated during one query.
type arena struct {
	segments []EnqueuedTripSegment
}

func (a *arena) add(s EnqueuedTripSegment) SegmentRef {
	a.segments = append(a.segments, s)
	return SegmentRef(len(a.segments) - 1)
}

func (a *arena) get(r SegmentRef) EnqueuedTripSegment {
	return a.segments[r]
}

// ResultLabel is a single Pareto-optimal (or not-yet-pruned) egress arrival,
// read only for result reporting. Its Parent, resolved against the sibling
// QueryResult.Segments slice, walks to the journey's root.
type ResultLabel struct {
	Transfers    int
	EgressStop   schedule.StopId
	FinalEvent   schedule.StoppingEvent
	ArrivalSec   int // absolute, DayOffset-adjusted arrival second
	DepartureSec int // absolute departure second of the journey's first boarding
	Parent       SegmentRef
}

// QueryResult is the outcome of one Route call: its Pareto-optimal labels,
// plus the segment arena they index into via Parent. Segments is addressed
// by SegmentRef; NoSegment (-1) marks a label or segment rooted directly at
// an access stop.
type QueryResult struct {
	Labels   []ResultLabel
	Segments []EnqueuedTripSegment
}

// AccessStop is one (stop, walking delta) pair a query may start from.
type AccessStop struct {
	Stop      schedule.StopId
	WalkDelta time.Duration
}

// EgressStop is one (stop, walking delta) pair a query may end at.
type EgressStop struct {
	Stop      schedule.StopId
	WalkDelta time.Duration
}

// Query is one request to Route: a set of access stops with walking deltas,
// a set of egress stops with walking deltas, an initial instant, an optional
// profile length for RouteNaiveProfile, and a trip filter.
type Query struct {
	Access        []AccessStop
	Egress        []EgressStop
	InitialTime   time.Time
	ProfileLength time.Duration
	Filter        TripFilter
}

// TripMetadata is what a TripFilter is asked to accept or reject.
type TripMetadata struct {
	FeedID    schedule.FeedId
	Trip      schedule.TripDescriptor
	RouteID   string
	RouteType schedule.RouteType
	AgencyID  string
}

// TripFilter is the router's one polymorphic capability (spec.md §9):
// testTrip(tripMetadata) -> bool, applied while selecting round-0 boardings.
type TripFilter interface {
	Accept(meta TripMetadata) bool
}

type tripFilterFunc func(TripMetadata) bool

func (f tripFilterFunc) Accept(m TripMetadata) bool { return f(m) }

// AcceptAll accepts every trip.
func AcceptAll() TripFilter {
	return tripFilterFunc(func(TripMetadata) bool { return true })
}

// ByRouteType accepts only trips whose route is one of the given types.
func ByRouteType(types ...schedule.RouteType) TripFilter {
	allowed := make(map[schedule.RouteType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return tripFilterFunc(func(m TripMetadata) bool { return allowed[m.RouteType] })
}

// ByAgencyAllowList accepts only trips whose route belongs to one of the
// given agencies.
func ByAgencyAllowList(agencyIDs ...string) TripFilter {
	allowed := make(map[string]bool, len(agencyIDs))
	for _, id := range agencyIDs {
		allowed[id] = true
	}
	return tripFilterFunc(func(m TripMetadata) bool { return allowed[m.AgencyID] })
}
