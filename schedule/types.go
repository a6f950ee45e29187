// Package schedule owns the immutable in-memory representation of one or
// more GTFS feeds: stop-times by (feed, trip), patterns, service calendars,
// and per-stop sorted boarding lists.
package schedule

import "time"

// FeedId identifies a GTFS feed. Immutable, opaque to this package.
type FeedId string

// StopId identifies a stop within a feed. Two stops are equal iff both
// components match.
type StopId struct {
	FeedID FeedId
	Code   string
}

// TripDescriptor identifies a trip, or a single departure of a frequency-based
// trip. Frequency-based trips are expanded at index-build time so that each
// (tripID, startTime) pair is a distinct descriptor; HasStart is false for
// trips that were not frequency-expanded.
type TripDescriptor struct {
	TripID    string
	RouteID   string
	HasStart  bool
	StartTime int // seconds-of-day of the first departure, valid iff HasStart
}

// RouteType is a GTFS route_type code (routes.txt), used by
// router.ByRouteType to restrict a query to e.g. rail-only journeys.
type RouteType int

const (
	RouteTypeTram      RouteType = 0
	RouteTypeSubway    RouteType = 1
	RouteTypeRail      RouteType = 2
	RouteTypeBus       RouteType = 3
	RouteTypeFerry     RouteType = 4
	RouteTypeCableTram RouteType = 5
	RouteTypeAerial    RouteType = 6
	RouteTypeFunicular RouteType = 7
	RouteTypeTrolley   RouteType = 11
	RouteTypeMonorail  RouteType = 12
)

// StopTime is one row of a trip's schedule. StopSequence is a trip-local index
// starting at 0 and strictly increasing along the trip. Arrival/Departure are
// seconds from service-day noon-minus-12h and may exceed 86400 for trips that
// cross midnight.
type StopTime struct {
	StopSequence int
	StopID       StopId
	ArrivalSec   int
	DepartureSec int
	PickupType   int
	DropOffType  int
}

// PatternId identifies the equivalence class of trips sharing an identical
// stop-id sequence and pickup/dropoff-type sequence.
type PatternId string

// Pattern is the identity of a stop sequence shared by multiple trips. Trips
// in a pattern are sorted by first-stop departure time.
type Pattern struct {
	ID    PatternId
	Stops []StopId
	// Trips is sorted ascending by first-stop departure time. Used both for
	// dominance pruning (§4.4) and for "mark done" propagation during
	// router enqueue.
	Trips []TripDescriptor
}

// StoppingEvent is the fundamental unit of the search: "trip T visits its
// stop-sequence s". Hashable and comparable so it can be used as a map key.
type StoppingEvent struct {
	FeedID       FeedId
	Trip         TripDescriptor
	StopSequence int
}

// ServiceCalendar is a predicate over dates, owned by each trip via its
// serviceId. AddedDates/RemovedDates override the weekly pattern for specific
// calendar dates (GTFS calendar_dates.txt semantics).
type ServiceCalendar struct {
	ServiceID string

	Weekday [7]bool // index 0 = Sunday, matching time.Weekday

	StartDate time.Time
	EndDate   time.Time

	AddedDates   map[string]bool // "YYYY-MM-DD" -> true
	RemovedDates map[string]bool
}

const dateLayout = "2006-01-02"

// ActiveOn reports whether the service operates on the given calendar date.
// Only the date portion of t is considered.
func (c ServiceCalendar) ActiveOn(t time.Time) bool {
	key := t.Format(dateLayout)
	if c.RemovedDates[key] {
		return false
	}
	if c.AddedDates[key] {
		return true
	}
	day := t.Truncate(24 * time.Hour)
	start := c.StartDate.Truncate(24 * time.Hour)
	end := c.EndDate.Truncate(24 * time.Hour)
	if day.Before(start) || day.After(end) {
		return false
	}
	return c.Weekday[int(t.Weekday())]
}
