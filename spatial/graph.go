// Package spatial derives the interpolated-transfer graph spec.md §4.2
// needs (a short walking connection between nearby stops) from stop
// coordinates, using an R-tree spatial index instead of an O(stops²) scan.
package spatial

import (
	"github.com/tidwall/rtree"
	"tripbased.dev/core/schedule"
)

// InterpolatedTransfer is a precomputed short walk between two stops with a
// fixed walking time, per spec.md §3.
type InterpolatedTransfer struct {
	From, To     schedule.StopId
	WalkingSecs  int
	DistanceMetr float64
}

type stopPoint struct {
	id       schedule.StopId
	lat, lon float64
}

// Graph indexes stop locations and answers "which stops are within walking
// radius" queries in O(log n + k) instead of comparing every pair of stops.
type Graph struct {
	tree      rtree.RTreeG[stopPoint]
	locations map[schedule.StopId]stopPoint
	speed     float64 // meters/second
}

// DefaultWalkingSpeedMetersPerSecond mirrors a brisk pedestrian pace
// (roughly 3mph), matching the SPEC_FULL §6 default.
const DefaultWalkingSpeedMetersPerSecond = 1.3

// NewGraph builds a Graph from stop locations. walkingSpeed must be positive;
// pass DefaultWalkingSpeedMetersPerSecond when the caller has no override.
func NewGraph(locs []schedule.StopLocation, walkingSpeedMetersPerSecond float64) *Graph {
	if walkingSpeedMetersPerSecond <= 0 {
		walkingSpeedMetersPerSecond = DefaultWalkingSpeedMetersPerSecond
	}
	g := &Graph{speed: walkingSpeedMetersPerSecond, locations: make(map[schedule.StopId]stopPoint, len(locs))}
	for _, l := range locs {
		p := stopPoint{id: l.StopID, lat: l.Latitude, lon: l.Longitude}
		g.tree.Insert([2]float64{l.Longitude, l.Latitude}, [2]float64{l.Longitude, l.Latitude}, p)
		g.locations[l.StopID] = p
	}
	return g
}

// Locate returns a stop's indexed coordinates. ok is false if the stop was
// never passed to NewGraph. Structurally satisfies journey.Locator, letting
// package journey resolve access/egress leg coordinates for polyline
// encoding without importing package spatial.
func (g *Graph) Locate(stop schedule.StopId) (lat, lon float64, ok bool) {
	p, ok := g.locations[stop]
	if !ok {
		return 0, 0, false
	}
	return p.lat, p.lon, true
}

// Nearby returns interpolated transfers from `from` to every other indexed
// stop within radiusMeters, sorted by ascending distance. `from` itself is
// excluded — a same-stop wait is not a walking transfer.
func (g *Graph) Nearby(from schedule.StopId, fromLat, fromLon, radiusMeters float64) []InterpolatedTransfer {
	minLat, minLon, maxLat, maxLon := boundsFor(fromLat, fromLon, radiusMeters)

	var out []InterpolatedTransfer
	g.tree.Search([2]float64{minLon, minLat}, [2]float64{maxLon, maxLat}, func(_, _ [2]float64, p stopPoint) bool {
		if p.id == from {
			return true
		}
		d := Distance(fromLat, fromLon, p.lat, p.lon)
		if d > radiusMeters {
			return true
		}
		out = append(out, InterpolatedTransfer{
			From:         from,
			To:           p.id,
			WalkingSecs:  walkingSeconds(d, g.speed),
			DistanceMetr: d,
		})
		return true
	})

	sortByDistance(out)
	return out
}

func walkingSeconds(distanceMeters, speed float64) int {
	if speed <= 0 {
		speed = DefaultWalkingSpeedMetersPerSecond
	}
	secs := int(distanceMeters / speed)
	if secs < 0 {
		secs = 0
	}
	return secs
}

func sortByDistance(ts []InterpolatedTransfer) {
	// Small fan-outs in practice (a handful of nearby stops); insertion
	// sort keeps this allocation-free versus pulling in sort.Slice's
	// reflection-based comparator for what is almost always < 20 elements.
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].DistanceMetr < ts[j-1].DistanceMetr; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
