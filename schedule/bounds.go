package schedule

// StopLocation is a stop's coordinate, supplied alongside FeedInput by the
// caller (GTFS stops.txt is out of scope for this package; only the
// coordinates needed to size a spatial index are captured here).
type StopLocation struct {
	StopID    StopId
	Latitude  float64
	Longitude float64
}

// Bounds is a geographic bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// ComputeBounds returns the bounding box spanning every stop location, or
// the zero Bounds if locs is empty.
func ComputeBounds(locs []StopLocation) Bounds {
	if len(locs) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinLat: locs[0].Latitude, MaxLat: locs[0].Latitude,
		MinLon: locs[0].Longitude, MaxLon: locs[0].Longitude,
	}
	for _, l := range locs[1:] {
		if l.Latitude < b.MinLat {
			b.MinLat = l.Latitude
		}
		if l.Latitude > b.MaxLat {
			b.MaxLat = l.Latitude
		}
		if l.Longitude < b.MinLon {
			b.MinLon = l.Longitude
		}
		if l.Longitude > b.MaxLon {
			b.MaxLon = l.Longitude
		}
	}
	return b
}
