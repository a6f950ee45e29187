package journey

import (
	"errors"
	"fmt"
	"time"

	"github.com/twpayne/go-polyline"

	"tripbased.dev/core/router"
	"tripbased.dev/core/schedule"
)

// ErrNoParent is returned for a ResultLabel reached directly at an access
// stop with no ridden trip at all (an empty journey has nothing to
// reconstruct).
var ErrNoParent = errors.New("journey: result label has no parent segment")

const secondsPerDay = 24 * 60 * 60

// Reconstruct walks label's Parent chain through result.Segments back to its
// root access stop, producing an ordered Journey. idx resolves each
// segment's board/alight stop and time; q is the Query that produced result,
// used to recover the egress stop's WalkDelta (ResultLabel itself doesn't
// carry it). loc, if non-nil, attaches walking polylines to the access,
// transfer, and egress legs whose stop coordinates it can resolve.
func Reconstruct(idx *schedule.Index, q router.Query, result router.QueryResult, label router.ResultLabel, loc Locator) (Journey, error) {
	if label.Parent == router.NoSegment {
		return Journey{}, ErrNoParent
	}
	egressDelta, err := egressWalkDelta(q, label.EgressStop)
	if err != nil {
		return Journey{}, err
	}

	// Walk backward leg by leg; transitLegs accumulates in reverse
	// (egress-most first) and is un-reversed by assembleLegs.
	var transitLegs []Leg
	ref := label.Parent
	alightStop := label.EgressStop
	alightSec := label.ArrivalSec

	for {
		if int(ref) < 0 || int(ref) >= len(result.Segments) {
			return Journey{}, fmt.Errorf("journey: segment ref %d out of range", ref)
		}
		seg := result.Segments[ref]

		boardStopTime, err := stopTimeAt(idx, seg.Event.FeedID, seg.Event.Trip, seg.Event.StopSequence)
		if err != nil {
			return Journey{}, err
		}
		routeID, err := idx.RouteID(seg.Event.FeedID, seg.Event.Trip)
		if err != nil {
			return Journey{}, err
		}
		blockID, err := idx.BlockID(seg.Event.FeedID, seg.Event.Trip)
		if err != nil {
			return Journey{}, err
		}

		transitLegs = append(transitLegs, Leg{
			Kind:       LegTransit,
			FeedID:     seg.Event.FeedID,
			Trip:       seg.Event.Trip,
			RouteID:    routeID,
			BlockID:    blockID,
			BoardStop:  boardStopTime.StopID,
			AlightStop: alightStop,
			BoardSec:   boardStopTime.DepartureSec + seg.DayOffset*secondsPerDay,
			AlightSec:  alightSec,
		})

		if seg.Parent == router.NoSegment {
			if seg.AccessStop == nil {
				return Journey{}, fmt.Errorf("journey: root segment missing access stop")
			}
			legs := assembleLegs(transitLegs, seg.AccessStop.Stop, seg.AccessStop.WalkDelta, label.EgressStop, egressDelta, loc)
			return Journey{
				Legs:         legs,
				Transfers:    label.Transfers,
				DepartureSec: label.DepartureSec,
				ArrivalSec:   label.ArrivalSec,
			}, nil
		}

		if !seg.HasTransferOrigin {
			return Journey{}, fmt.Errorf("journey: non-root segment missing transfer origin")
		}
		parent := result.Segments[seg.Parent]
		originStopTime, err := stopTimeAt(idx, seg.TransferOrigin.FeedID, seg.TransferOrigin.Trip, seg.TransferOrigin.StopSequence)
		if err != nil {
			return Journey{}, err
		}
		alightStop = originStopTime.StopID
		alightSec = originStopTime.ArrivalSec + parent.DayOffset*secondsPerDay
		ref = seg.Parent
	}
}

// stopTimeAt finds trip's StopTime at the given StopSequence by binary
// search, mirroring router's own stopTimeAtSequence idiom.
func stopTimeAt(idx *schedule.Index, feedID schedule.FeedId, trip schedule.TripDescriptor, seq int) (schedule.StopTime, error) {
	stopTimes, err := idx.StopTimes(feedID, trip)
	if err != nil {
		return schedule.StopTime{}, err
	}
	lo, hi := 0, len(stopTimes)
	for lo < hi {
		mid := (lo + hi) / 2
		if stopTimes[mid].StopSequence < seq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(stopTimes) || stopTimes[lo].StopSequence != seq {
		return schedule.StopTime{}, fmt.Errorf("journey: stop sequence %d not found on trip %s", seq, trip.TripID)
	}
	return stopTimes[lo], nil
}

func egressWalkDelta(q router.Query, stop schedule.StopId) (time.Duration, error) {
	for _, e := range q.Egress {
		if e.Stop == stop {
			return e.WalkDelta, nil
		}
	}
	return 0, fmt.Errorf("journey: query has no egress stop matching %+v", stop)
}

// assembleLegs takes transitLegs in reverse (egress-most first) chronological
// order and interleaves the access walk, any mid-journey transfer walks, and
// the egress walk, producing one chronologically-ordered leg list.
func assembleLegs(transitLegsReversed []Leg, accessStop schedule.StopId, accessDelta time.Duration, egressStop schedule.StopId, egressDelta time.Duration, loc Locator) []Leg {
	n := len(transitLegsReversed)
	transit := make([]Leg, n)
	for i, l := range transitLegsReversed {
		transit[n-1-i] = l
	}

	legs := make([]Leg, 0, 2*n+1)
	legs = append(legs, walkLeg(LegAccess, accessStop, transit[0].BoardStop, accessDelta, loc))
	legs = append(legs, transit[0])
	for i := 1; i < n; i++ {
		prev, cur := transit[i-1], transit[i]
		if prev.AlightStop != cur.BoardStop {
			legs = append(legs, walkLeg(LegTransfer, prev.AlightStop, cur.BoardStop, time.Duration(cur.BoardSec-prev.AlightSec)*time.Second, loc))
		}
		legs = append(legs, cur)
	}
	last := transit[n-1]
	legs = append(legs, walkLeg(LegEgress, last.AlightStop, egressStop, egressDelta, loc))
	return legs
}

func walkLeg(kind LegKind, from, to schedule.StopId, duration time.Duration, loc Locator) Leg {
	leg := Leg{
		Kind:               kind,
		BoardStop:          from,
		AlightStop:         to,
		WalkDuration:       duration,
		WalkDistanceMeters: duration.Seconds() * defaultWalkingSpeedMetersPerSecond,
	}
	if loc == nil {
		return leg
	}
	fromLat, fromLon, ok := loc.Locate(from)
	if !ok {
		return leg
	}
	toLat, toLon, ok := loc.Locate(to)
	if !ok {
		return leg
	}
	leg.Polyline = string(polyline.EncodeCoords([][]float64{{fromLat, fromLon}, {toLat, toLon}}))
	return leg
}
