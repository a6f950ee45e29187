package transfers

import "errors"

// Sentinel errors of the transfer builder, per spec.md §7. Any error Build
// returns is fatal to the whole build: a transfer map built on top of
// missing or malformed schedule data cannot be trusted.
var (
	// ErrUnknownStop names an explicit transfer whose stop is absent from the
	// schedule index. Builder does not check explicit-transfer stops against
	// the index, so Build does not return it.
	ErrUnknownStop = errors.New("transfers: unknown stop")
	// ErrInconsistentStopTimes is returned when a trip's stop times cannot be
	// walked backward safely (fewer than two stops).
	ErrInconsistentStopTimes = errors.New("transfers: inconsistent stop times")
	// ErrServiceMissing is returned when a trip's service calendar could not
	// be resolved while checking activity for the traffic day.
	ErrServiceMissing = errors.New("transfers: service calendar missing")
)
