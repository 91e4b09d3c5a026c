package worker

import "time"

// BlacklistEntry is a time-boxed exclusion of one worker from one client's
// exact route, created after a worker-initiated cancellation. Matching is on
// literal origin/destination address strings: the exclusion scopes to "this
// route with this client", not a generic cooldown.
type BlacklistEntry struct {
	WorkerID      string
	ClientID      string
	OriginAddress string
	DestAddress   string
	TripID        string
	Reason        string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Active reports whether the exclusion is still in force at now.
func (e BlacklistEntry) Active(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
