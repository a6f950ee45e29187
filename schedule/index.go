package schedule

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type tripData struct {
	stopTimes []StopTime // sorted by StopSequence
	pattern   PatternId
	serviceID string
	routeID   string
	routeType RouteType
	agencyID  string
	blockID   string
}

type feedData struct {
	timeZone  string
	trips     map[TripDescriptor]*tripData
	patterns  map[PatternId]*Pattern
	calendars map[string]ServiceCalendar

	// boardings caches, per stop code, the pattern->sorted-boardings map.
	// Populated lazily and at most once per key: boardingEntry.once guards
	// the fill, so concurrent callers either block on the in-flight
	// computation or observe the completed result.
	boardingsMu sync.Mutex
	boardings   map[string]*boardingEntry
}

type boardingEntry struct {
	once sync.Once
	val  map[PatternId][]StoppingEvent
}

// Index is the immutable, in-memory representation of one or more GTFS
// feeds. It is safe for concurrent read access from multiple goroutines;
// nothing in a query mutates it except the lazy boarding cache, which is
// internally synchronized.
type Index struct {
	feeds map[FeedId]*feedData
}

// Build assembles a queryable Index from raw feed inputs. Frequency
// expansion and pattern assignment happen here, once, at build time —
// downstream code never re-expands a frequency-based trip.
//
// Build returns ErrInconsistentSchedule for the first trip whose stop times
// fail the monotonicity invariant, and ErrServiceMissing for the first trip
// whose serviceId has no corresponding calendar.
func Build(inputs ...FeedInput) (*Index, error) {
	idx := &Index{feeds: make(map[FeedId]*feedData, len(inputs))}

	for _, in := range inputs {
		fd := &feedData{
			timeZone:  in.TimeZone,
			trips:     make(map[TripDescriptor]*tripData),
			patterns:  make(map[PatternId]*Pattern),
			calendars: in.Calendars,
			boardings: make(map[string]*boardingEntry),
		}

		for _, raw := range in.Trips {
			if _, ok := fd.calendars[raw.ServiceID]; !ok {
				return nil, fmt.Errorf("%w: trip %s service %s", ErrServiceMissing, raw.TripID, raw.ServiceID)
			}
			if err := validateMonotonic(raw); err != nil {
				return nil, fmt.Errorf("%w: trip %s: %v", ErrInconsistentSchedule, raw.TripID, err)
			}

			descriptors := expandFrequencies(raw)
			baseStopTimes := toStopTimes(in.FeedID, raw.StopTimes)

			for _, td := range descriptors {
				stopTimes := baseStopTimes
				if td.HasStart {
					// A frequency-expanded descriptor's stop_times.txt row is a
					// relative-time template anchored at the pattern's first
					// stop; each generated departure shifts that template so
					// its first stop departs at the descriptor's own StartTime.
					stopTimes = shiftStopTimes(baseStopTimes, td.StartTime-baseStopTimes[0].DepartureSec)
				}
				fd.trips[td] = &tripData{
					stopTimes: stopTimes,
					serviceID: raw.ServiceID,
					routeID:   raw.RouteID,
					routeType: raw.RouteType,
					agencyID:  raw.AgencyID,
					blockID:   raw.BlockID,
				}
			}
		}

		assignPatterns(fd)
		idx.feeds[in.FeedID] = fd
	}

	return idx, nil
}

func validateMonotonic(raw RawTrip) error {
	prevSeq := -1
	prevDep := -1
	first := true
	for _, st := range raw.StopTimes {
		if !first && st.StopSequence <= prevSeq {
			return fmt.Errorf("stop_sequence %d does not strictly increase from %d", st.StopSequence, prevSeq)
		}
		if st.ArrivalSec > st.DepartureSec {
			return fmt.Errorf("stop_sequence %d: arrival %d > departure %d", st.StopSequence, st.ArrivalSec, st.DepartureSec)
		}
		if !first && st.ArrivalSec < prevDep {
			return fmt.Errorf("stop_sequence %d: arrival %d precedes previous departure %d", st.StopSequence, st.ArrivalSec, prevDep)
		}
		prevSeq, prevDep, first = st.StopSequence, st.DepartureSec, false
	}
	return nil
}

func toStopTimes(feedID FeedId, raw []RawStopTime) []StopTime {
	out := make([]StopTime, len(raw))
	for i, r := range raw {
		out[i] = StopTime{
			StopSequence: r.StopSequence,
			StopID:       StopId{FeedID: feedID, Code: r.StopCode},
			ArrivalSec:   r.ArrivalSec,
			DepartureSec: r.DepartureSec,
			PickupType:   r.PickupType,
			DropOffType:  r.DropOffType,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StopSequence < out[j].StopSequence })
	return out
}

// shiftStopTimes returns a copy of base with every arrival/departure moved
// by offset seconds, used to anchor a frequency-expanded trip's relative
// stop_times.txt template to one generated departure's absolute start time.
func shiftStopTimes(base []StopTime, offset int) []StopTime {
	out := make([]StopTime, len(base))
	for i, st := range base {
		out[i] = st
		out[i].ArrivalSec += offset
		out[i].DepartureSec += offset
	}
	return out
}

// expandFrequencies turns a frequency-based RawTrip into one TripDescriptor
// per generated departure. A conventionally-scheduled trip yields exactly one
// descriptor with HasStart=false.
func expandFrequencies(raw RawTrip) []TripDescriptor {
	if len(raw.Frequencies) == 0 {
		return []TripDescriptor{{TripID: raw.TripID, RouteID: raw.RouteID}}
	}
	var out []TripDescriptor
	for _, f := range raw.Frequencies {
		for t := f.StartSec; t < f.EndSec; t += f.HeadwaySec {
			out = append(out, TripDescriptor{
				TripID:    raw.TripID,
				RouteID:   raw.RouteID,
				HasStart:  true,
				StartTime: t,
			})
		}
	}
	return out
}

// patternKey derives a stable identity for a stop sequence + pickup/dropoff
// sequence, per spec.md §4.1's pattern-assignment rule.
func patternKey(st []StopTime) PatternId {
	h := sha1.New()
	for _, s := range st {
		h.Write([]byte(s.StopID.FeedID))
		h.Write([]byte{0})
		h.Write([]byte(s.StopID.Code))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(s.PickupType)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(s.DropOffType)))
		h.Write([]byte{'|'})
	}
	return PatternId(hex.EncodeToString(h.Sum(nil)))
}

func assignPatterns(fd *feedData) {
	for descriptor, td := range fd.trips {
		key := patternKey(td.stopTimes)
		td.pattern = key
		p, ok := fd.patterns[key]
		if !ok {
			stops := make([]StopId, len(td.stopTimes))
			for i, st := range td.stopTimes {
				stops[i] = st.StopID
			}
			p = &Pattern{ID: key, Stops: stops}
			fd.patterns[key] = p
		}
		p.Trips = append(p.Trips, descriptor)
	}

	for _, p := range fd.patterns {
		trips := p.Trips
		sort.Slice(trips, func(i, j int) bool {
			return fd.trips[trips[i]].stopTimes[0].DepartureSec < fd.trips[trips[j]].stopTimes[0].DepartureSec
		})
	}
}

// StopTimes returns the ordered stop times for a trip.
func (idx *Index) StopTimes(feedID FeedId, trip TripDescriptor) ([]StopTime, error) {
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return nil, err
	}
	return td.stopTimes, nil
}

// PatternOf returns the pattern a trip belongs to.
func (idx *Index) PatternOf(feedID FeedId, trip TripDescriptor) (Pattern, error) {
	fd, ok := idx.feeds[feedID]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return Pattern{}, err
	}
	p, ok := fd.patterns[td.pattern]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: pattern for trip %s missing", ErrInconsistentSchedule, trip.TripID)
	}
	return *p, nil
}

// RouteID returns the route a trip belongs to.
func (idx *Index) RouteID(feedID FeedId, trip TripDescriptor) (string, error) {
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return "", err
	}
	return td.routeID, nil
}

// RouteType returns the GTFS route_type of a trip's route.
func (idx *Index) RouteType(feedID FeedId, trip TripDescriptor) (RouteType, error) {
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return 0, err
	}
	return td.routeType, nil
}

// AgencyID returns the GTFS agency_id of a trip's route, or "" if the feed's
// routes.txt omitted it.
func (idx *Index) AgencyID(feedID FeedId, trip TripDescriptor) (string, error) {
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return "", err
	}
	return td.agencyID, nil
}

// BlockID returns the GTFS block_id a trip participates in, or "" if none.
func (idx *Index) BlockID(feedID FeedId, trip TripDescriptor) (string, error) {
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return "", err
	}
	return td.blockID, nil
}

// ServiceActive reports whether a trip's service operates on the given date.
// Only the date portion of date is considered.
func (idx *Index) ServiceActive(feedID FeedId, trip TripDescriptor, date time.Time) (bool, error) {
	fd, ok := idx.feeds[feedID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	td, err := idx.trip(feedID, trip)
	if err != nil {
		return false, err
	}
	cal, ok := fd.calendars[td.serviceID]
	if !ok {
		return false, fmt.Errorf("%w: service %s", ErrServiceMissing, td.serviceID)
	}
	return cal.ActiveOn(date), nil
}

// Feeds returns the identifiers of every feed ingested into this Index, in
// no particular order.
func (idx *Index) Feeds() []FeedId {
	out := make([]FeedId, 0, len(idx.feeds))
	for id := range idx.feeds {
		out = append(out, id)
	}
	return out
}

// Trips returns every trip descriptor known for a feed, in no particular
// order. Used by transfer precomputation to enumerate the trips it must
// walk for a traffic day.
func (idx *Index) Trips(feedID FeedId) ([]TripDescriptor, error) {
	fd, ok := idx.feeds[feedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	out := make([]TripDescriptor, 0, len(fd.trips))
	for td := range fd.trips {
		out = append(out, td)
	}
	return out, nil
}

// TimeZone returns the IANA time zone declared for a feed.
func (idx *Index) TimeZone(feedID FeedId) (string, error) {
	fd, ok := idx.feeds[feedID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	return fd.timeZone, nil
}

func (idx *Index) trip(feedID FeedId, trip TripDescriptor) (*tripData, error) {
	fd, ok := idx.feeds[feedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	td, ok := fd.trips[trip]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTrip, feedID, trip.TripID)
	}
	return td, nil
}

// BoardingsByPattern returns, for a stop, a map from pattern to the list of
// boardings at that stop sorted ascending by departure time of day. The
// result is memoised per stopId: the first caller for a given stop computes
// it, concurrent callers block until that computation finishes and then all
// observe the same result. There is no data race and no duplicate work.
func (idx *Index) BoardingsByPattern(stopID StopId) (map[PatternId][]StoppingEvent, error) {
	fd, ok := idx.feeds[stopID.FeedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, stopID.FeedID)
	}

	fd.boardingsMu.Lock()
	entry, ok := fd.boardings[stopID.Code]
	if !ok {
		entry = &boardingEntry{}
		fd.boardings[stopID.Code] = entry
	}
	fd.boardingsMu.Unlock()

	entry.once.Do(func() {
		entry.val = computeBoardings(fd, stopID)
	})
	return entry.val, nil
}

func computeBoardings(fd *feedData, stopID StopId) map[PatternId][]StoppingEvent {
	result := make(map[PatternId][]StoppingEvent)
	for descriptor, td := range fd.trips {
		for _, st := range td.stopTimes {
			if st.StopID != stopID {
				continue
			}
			// A boarding cannot occur at the last stop of a trip.
			if st.StopSequence == td.stopTimes[len(td.stopTimes)-1].StopSequence {
				continue
			}
			result[td.pattern] = append(result[td.pattern], StoppingEvent{
				FeedID:       stopID.FeedID,
				Trip:         descriptor,
				StopSequence: st.StopSequence,
			})
		}
	}
	for pattern, events := range result {
		sort.Slice(events, func(i, j int) bool {
			return departureAt(fd, events[i]) < departureAt(fd, events[j])
		})
		result[pattern] = events
	}
	return result
}

func departureAt(fd *feedData, e StoppingEvent) int {
	td := fd.trips[e.Trip]
	for _, st := range td.stopTimes {
		if st.StopSequence == e.StopSequence {
			return st.DepartureSec
		}
	}
	return 0
}

