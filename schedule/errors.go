package schedule

import "errors"

// Sentinel errors surfaced by ScheduleIndex operations, per spec.md §7.
var (
	// ErrUnknownFeed is returned when a FeedId has no ingested data.
	ErrUnknownFeed = errors.New("schedule: unknown feed")
	// ErrUnknownTrip is returned when a (feed, trip) pair has no stop times.
	ErrUnknownTrip = errors.New("schedule: unknown trip")
	// ErrUnknownStop names a StopId that was never seen in any ingested
	// trip. No Index method returns it: BoardingsByPattern yields an empty
	// map for such a stop.
	ErrUnknownStop = errors.New("schedule: unknown stop")
	// ErrInconsistentSchedule is returned at build time when a trip's stop
	// times fail the monotonicity invariant arrival[i] <= departure[i] <=
	// arrival[i+1], or when stop sequences are not strictly increasing.
	ErrInconsistentSchedule = errors.New("schedule: inconsistent stop times")
	// ErrServiceMissing is returned when a trip references a serviceId with
	// no corresponding ServiceCalendar.
	ErrServiceMissing = errors.New("schedule: service calendar missing")
)
