package schedule

// FeedInput is the shape an external GTFS parser (out of scope for this
// package, see spec.md §1) must produce for one feed. Build assembles one or
// more FeedInputs into a queryable ScheduleIndex.
type FeedInput struct {
	FeedID    FeedId
	TimeZone  string // IANA zone name, e.g. "America/Los_Angeles"
	Trips     []RawTrip
	Calendars map[string]ServiceCalendar // keyed by serviceId
}

// RawTrip is one GTFS trip (or the template for a frequency-based trip)
// before frequency expansion and pattern assignment.
type RawTrip struct {
	TripID      string
	RouteID     string
	RouteType   RouteType // GTFS routes.txt route_type
	AgencyID    string    // empty if the feed's routes.txt omits agency_id
	ServiceID   string
	BlockID     string // empty if the trip does not participate in a block
	StopTimes   []RawStopTime
	Frequencies []RawFrequency // empty for a conventionally-scheduled trip
}

// RawStopTime is one row of trip_stop_times.
type RawStopTime struct {
	StopSequence int
	StopCode     string
	ArrivalSec   int
	DepartureSec int
	PickupType   int
	DropOffType  int
}

// RawFrequency describes a GTFS frequencies.txt row: distinct trips are
// generated for times start, start+headway, ... < end.
type RawFrequency struct {
	StartSec   int
	EndSec     int
	HeadwaySec int
}
