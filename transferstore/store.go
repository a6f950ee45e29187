// Package transferstore abstracts persistence of a day's precomputed
// TransferBuilder output behind get(day)/put(day, map), per spec.md §4.3.
// The store's on-disk layout is opaque to the routing core; this package
// only fixes the wire shape (codec.go) and provides an in-memory reference
// implementation. A file-backed implementation lives in sqlitestore.
package transferstore

import (
	"context"
	"time"

	"tripbased.dev/core/transfers"
)

const dayLayout = "2006-01-02"

// Store is the contract a TransferMap persistence layer must satisfy.
// Get on a day that was never Put returns an empty, non-nil Map and a nil
// error — the router treats an unprepared day as "skip transfer expansion",
// not as a failure.
type Store interface {
	Get(ctx context.Context, day time.Time) (*transfers.Map, error)
	Put(ctx context.Context, day time.Time, m *transfers.Map) error
}

func dayKey(day time.Time) string {
	return day.UTC().Format(dayLayout)
}
