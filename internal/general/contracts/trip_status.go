package contracts

import "time"

// TripStatusMessage is published on every trip state change.
// Routing key: "trip.status.{state}" on ExchangeTripTopic.
type TripStatusMessage struct {
	TripID    string    `json:"trip_id"`
	State     string    `json:"state"` // pending|accepted|en_route_pickup|arrived_pickup|in_progress|completed|cancelled
	WorkerID  string    `json:"worker_id,omitempty"`
	FinalFare *float64  `json:"final_fare,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
