package trip

// Stop is an ordered intermediate waypoint between pickup and dropoff,
// stored in the `trip_stops` table.
type Stop struct {
	ID      string
	TripID  string
	Seq     int
	Address string
	Lat     float64
	Lng     float64
}
