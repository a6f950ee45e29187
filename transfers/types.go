// Package transfers builds, offline and per service day, the mapping from
// each stopping event to the collection of onward stopping events reachable
// by a same-stop wait or a short interpolated walk (spec.md §4.2).
package transfers

import (
	"sync"

	"tripbased.dev/core/schedule"
)

// Transfer is a directed connection between two stopping events: after
// alighting at From one can reach To's boarding. StreetTimeSecs is 0 for a
// same-stop wait. MinTransferOverride, when non-nil, overrides the walking
// time with an explicit GTFS transfers.txt min_transfer_time.
type Transfer struct {
	From, To            schedule.StoppingEvent
	StreetTimeSecs      int
	MinTransferOverride *int
}

// ExplicitTransfer is a GTFS transfers.txt row scoped to a route pair,
// per spec.md §4.2 step 2(ii).
type ExplicitTransfer struct {
	FromStop, ToStop schedule.StopId
	ToRouteID        string // empty matches any route
	MinTransferTimeS int
}

// Map is the per-service-day mapping from a stopping event to the ordered
// collection of onward stopping events it can reach, per spec.md §3. It is
// built once by Builder.Build and is read-only thereafter; concurrent
// inserts during the build use insert, which is the only mutating method.
type Map struct {
	mu sync.Mutex
	m  map[schedule.StoppingEvent][]schedule.StoppingEvent
}

// NewMap returns an empty, ready-to-use Map.
func NewMap() *Map {
	return &Map{m: make(map[schedule.StoppingEvent][]schedule.StoppingEvent)}
}

// Get returns the onward stopping events reachable from origin, and whether
// origin has any entry at all (an absent entry means the day was never
// prepared for this origin's trip, per spec.md §4.3 — not an error).
func (t *Map) Get(origin schedule.StoppingEvent) ([]schedule.StoppingEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[origin]
	return v, ok
}

// Len reports the number of distinct origins with an entry, including
// origins whose collection of onward stopping events is empty.
func (t *Map) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// insert appends dst to origin's collection, preserving insertion order
// (spec.md §4.2's dominance tie-break rule). Safe for concurrent use across
// distinct origins and the same origin alike.
func (t *Map) insert(origin schedule.StoppingEvent, dst schedule.StoppingEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[origin] = append(t.m[origin], dst)
}

// snapshot returns the raw map for serialization by transferstore. Callers
// must not mutate the returned map.
func (t *Map) snapshot() map[schedule.StoppingEvent][]schedule.StoppingEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}

// Snapshot exposes the Map's contents for read-only iteration, e.g. by a
// TransferStore writer. The returned map must not be mutated.
func (t *Map) Snapshot() map[schedule.StoppingEvent][]schedule.StoppingEvent {
	return t.snapshot()
}

// FromSnapshot rebuilds a Map from a previously captured snapshot, e.g. one
// loaded from a TransferStore.
func FromSnapshot(snapshot map[schedule.StoppingEvent][]schedule.StoppingEvent) *Map {
	m := NewMap()
	for k, v := range snapshot {
		cp := make([]schedule.StoppingEvent, len(v))
		copy(cp, v)
		m.m[k] = cp
	}
	return m
}
