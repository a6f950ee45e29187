// Package journey reconstructs a rider-facing itinerary from one of
// router's Pareto-optimal ResultLabels: an ordered list of transit rides and
// walking connections, with GTFS block continuations collapsed so a vehicle
// the rider never leaves doesn't read as a transfer.
package journey

import (
	"time"

	"tripbased.dev/core/schedule"
)

// Locator resolves a stop's coordinates, letting Reconstruct attach walking
// polylines and distances without package journey importing package spatial
// directly. *spatial.Graph satisfies this interface; pass nil to skip
// coordinate-dependent fields.
type Locator interface {
	Locate(stop schedule.StopId) (lat, lon float64, ok bool)
}

// defaultWalkingSpeedMetersPerSecond mirrors spatial.DefaultWalkingSpeedMetersPerSecond.
// Duplicated rather than imported so a caller with no spatial.Graph handy can
// still get a distance estimate from WalkDuration alone.
const defaultWalkingSpeedMetersPerSecond = 1.3

// LegKind distinguishes a ridden trip segment from a walking connection.
type LegKind int

const (
	LegTransit LegKind = iota
	LegAccess
	LegTransfer
	LegEgress
)

func (k LegKind) String() string {
	switch k {
	case LegTransit:
		return "transit"
	case LegAccess:
		return "access"
	case LegTransfer:
		return "transfer"
	case LegEgress:
		return "egress"
	default:
		return "unknown"
	}
}

// Leg is one segment of a Journey: either a ride (Kind == LegTransit) or a
// walking connection (any other Kind). Only the fields relevant to Kind are
// populated; the rest are zero.
type Leg struct {
	Kind LegKind

	// Transit fields, valid iff Kind == LegTransit.
	FeedID  schedule.FeedId
	Trip    schedule.TripDescriptor
	RouteID string
	BlockID string

	// BoardStop/AlightStop hold the ride's boarding/alighting stop for a
	// transit leg, or the walk's start/end stop for a walking leg.
	BoardStop  schedule.StopId
	AlightStop schedule.StopId

	// BoardSec/AlightSec are absolute, day-offset-adjusted seconds, valid
	// iff Kind == LegTransit.
	BoardSec  int
	AlightSec int

	// Walking fields, valid iff Kind != LegTransit.
	WalkDuration       time.Duration
	WalkDistanceMeters float64
	// Polyline is a Google-encoded two-point line between BoardStop and
	// AlightStop's coordinates, empty unless a Locator resolved both.
	Polyline string
}

// BlockRun groups consecutive transit legs riding the same GTFS block_id:
// the rider stays aboard the same vehicle across the run, so it is one
// continuous ride rather than a sequence of transfers (SPEC_FULL §4.4's
// transfer-counting rule already excludes these from Journey.Transfers).
type BlockRun struct {
	BlockID string
	Legs    []Leg
}

// Journey is one reconstructed itinerary: a ResultLabel's parent chain,
// walked back to its access stop and rendered as an ordered leg list
// bookended by an access walk and an egress walk.
type Journey struct {
	Legs         []Leg
	Transfers    int
	DepartureSec int
	ArrivalSec   int
}

// GroupByBlock collapses consecutive LegTransit legs sharing a non-empty
// BlockID into one BlockRun, in journey order. Walking legs are dropped from
// the grouping since a block run is by definition an uninterrupted ride.
func GroupByBlock(legs []Leg) []BlockRun {
	var runs []BlockRun
	for _, leg := range legs {
		if leg.Kind != LegTransit {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].BlockID != "" && runs[n-1].BlockID == leg.BlockID {
			runs[n-1].Legs = append(runs[n-1].Legs, leg)
			continue
		}
		runs = append(runs, BlockRun{BlockID: leg.BlockID, Legs: []Leg{leg}})
	}
	return runs
}
