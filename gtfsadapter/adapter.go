// Package gtfsadapter is the single seam between the ScheduleIndex and a
// parsed GTFS static feed. Reading GTFS files off disk or HTTP is out of
// scope for this module (spec.md §1); this package only translates already-
// parsed github.com/OneBusAway/go-gtfs types into schedule.FeedInput. Nothing
// downstream of this package imports go-gtfs.
package gtfsadapter

import (
	"fmt"
	"time"

	gtfs "github.com/OneBusAway/go-gtfs"
	"tripbased.dev/core/schedule"
)

// FromStatic converts one parsed GTFS static feed into a schedule.FeedInput
// under the given feed identity. timeZone is the feed's default IANA zone
// (agency.txt's agency_timezone) since go-gtfs does not surface it uniformly
// across agencies.
func FromStatic(feedID schedule.FeedId, timeZone string, static *gtfs.Static) (schedule.FeedInput, error) {
	if static == nil {
		return schedule.FeedInput{}, fmt.Errorf("gtfsadapter: nil static feed for %s", feedID)
	}

	input := schedule.FeedInput{
		FeedID:    feedID,
		TimeZone:  timeZone,
		Calendars: make(map[string]schedule.ServiceCalendar, len(static.Services)),
	}

	for _, svc := range static.Services {
		input.Calendars[svc.Id] = toCalendar(svc)
	}

	input.Trips = make([]schedule.RawTrip, 0, len(static.Trips))
	for i := range static.Trips {
		trip := &static.Trips[i]
		raw, err := toRawTrip(trip)
		if err != nil {
			return schedule.FeedInput{}, fmt.Errorf("gtfsadapter: feed %s: %w", feedID, err)
		}
		input.Trips = append(input.Trips, raw)
	}

	return input, nil
}

func toCalendar(svc gtfs.Service) schedule.ServiceCalendar {
	cal := schedule.ServiceCalendar{
		ServiceID: svc.Id,
		StartDate: svc.StartDate,
		EndDate:   svc.EndDate,
	}
	cal.Weekday[0] = svc.Sunday
	cal.Weekday[1] = svc.Monday
	cal.Weekday[2] = svc.Tuesday
	cal.Weekday[3] = svc.Wednesday
	cal.Weekday[4] = svc.Thursday
	cal.Weekday[5] = svc.Friday
	cal.Weekday[6] = svc.Saturday

	if len(svc.AddedDates) > 0 {
		cal.AddedDates = make(map[string]bool, len(svc.AddedDates))
		for _, d := range svc.AddedDates {
			cal.AddedDates[d.Format("2006-01-02")] = true
		}
	}
	if len(svc.RemovedDates) > 0 {
		cal.RemovedDates = make(map[string]bool, len(svc.RemovedDates))
		for _, d := range svc.RemovedDates {
			cal.RemovedDates[d.Format("2006-01-02")] = true
		}
	}
	return cal
}

func toRawTrip(trip *gtfs.ScheduledTrip) (schedule.RawTrip, error) {
	if trip.Route == nil {
		return schedule.RawTrip{}, fmt.Errorf("trip %s has no route", trip.ID)
	}
	if trip.Service == nil {
		return schedule.RawTrip{}, fmt.Errorf("trip %s has no service", trip.ID)
	}

	raw := schedule.RawTrip{
		TripID:    trip.ID,
		RouteID:   trip.Route.Id,
		RouteType: schedule.RouteType(trip.Route.Type),
		ServiceID: trip.Service.Id,
		BlockID:   trip.BlockID,
	}
	if trip.Route.Agency != nil {
		raw.AgencyID = trip.Route.Agency.Id
	}

	raw.StopTimes = make([]schedule.RawStopTime, len(trip.StopTimes))
	for i, st := range trip.StopTimes {
		if st.Stop == nil {
			return schedule.RawTrip{}, fmt.Errorf("trip %s stop_sequence %d has no stop", trip.ID, st.StopSequence)
		}
		raw.StopTimes[i] = schedule.RawStopTime{
			StopSequence: st.StopSequence,
			StopCode:     st.Stop.Id,
			ArrivalSec:   toSeconds(st.ArrivalTime),
			DepartureSec: toSeconds(st.DepartureTime),
		}
	}

	// Frequency-based trips: go-gtfs does not surface frequencies.txt rows on
	// ScheduledTrip in a form this adapter can rely on, so every trip here
	// is treated as conventionally scheduled. schedule.Build still supports
	// RawTrip.Frequencies for callers that source frequency data separately.
	return raw, nil
}

// toSeconds accommodates the time.Duration-based encoding used by upstream
// go-gtfs (seconds-of-day since noon-minus-12h, per GTFS convention, may
// exceed 24h for trips crossing midnight).
func toSeconds(d time.Duration) int {
	return int(d / time.Second)
}
