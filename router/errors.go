package router

import "errors"

// Sentinel errors surfaced by Route, per spec.md §7.
var (
	// ErrIncompatibleServiceDay is returned when a query's access stops
	// resolve, via their feeds' time zones, to different calendar dates for
	// the same initial instant (spec.md §9's second Open Question). Query
	// offers no option to reconcile them; such a query is always rejected.
	ErrIncompatibleServiceDay = errors.New("router: access stops imply different service days")

	// ErrAborted is returned when the query's cancellation context is
	// cancelled between rounds. The partial result computed so far is
	// still returned alongside it.
	ErrAborted = errors.New("router: query aborted")
)
