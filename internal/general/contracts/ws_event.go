package contracts

import "encoding/json"

// Every realtime message, both directions, is a Frame: {"type": ..., "data": {...}}.

// Frame is the inbound envelope; Data stays raw until the type is known.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutFrame is the outbound envelope with a concrete payload.
type OutFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound message types.
const (
	MsgIdentify       = "identify"
	MsgPing           = "ping"
	MsgLocationUpdate = "location-update" // also used outbound
	MsgFollowStart    = "follow-start"
	MsgFollowStop     = "follow-stop"
)

// Outbound message types.
const (
	MsgConnectionEstablished = "connection-established"
	MsgIdentified            = "identified"
	MsgPong                  = "pong"
	MsgNewRequest            = "new_request"
	MsgTripTaken             = "trip_taken"
	MsgDriverCancelled       = "driver_cancelled"
	MsgDriverFound           = "driver_found"
	MsgError                 = "error"
)

// IdentifyData is the payload of the inbound identify message. Kind selects
// the driver/delivery/client variant; the token must belong to the actor.
type IdentifyData struct {
	Kind    string `json:"kind"` // driver | delivery | client
	ActorID string `json:"actor_id"`
	Token   string `json:"token"` // "Bearer <jwt>" or raw JWT
}

// IdentifiedData acknowledges a successful identify.
type IdentifiedData struct {
	Kind         string `json:"kind"`
	ActorID      string `json:"actor_id"`
	ConnectionID string `json:"connection_id"`
}

// ConnectionEstablishedData is sent immediately after the upgrade.
type ConnectionEstablishedData struct {
	ConnectionID string `json:"connection_id"`
}

// FollowData starts or stops following a worker's live position (clients only).
type FollowData struct {
	TargetKind string `json:"target_kind"` // driver | delivery
	WorkerID   string `json:"worker_id"`
}

// NewRequestData is broadcast to every eligible, connected worker.
type NewRequestData struct {
	TripID          string      `json:"trip_id"`
	TripNumber      string      `json:"trip_number"`
	Kind            string      `json:"kind"` // ride | delivery
	Pickup          GeoPoint    `json:"pickup"`
	Dropoff         GeoPoint    `json:"dropoff"`
	Stops           []StopPoint `json:"stops,omitempty"`
	Fare            *float64    `json:"fare,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	DistanceKM      float64     `json:"distance_km"`
	DurationMinutes int         `json:"duration_minutes"`
	Envelope
}

// TripTakenData tells a previously-notified worker that someone else won.
type TripTakenData struct {
	TripID   string `json:"trip_id"`
	WinnerID string `json:"winner_id"`
	Envelope
}

// DriverFoundData tells the client a worker accepted the trip.
type DriverFoundData struct {
	TripID   string      `json:"trip_id"`
	Worker   WorkerBrief `json:"worker"`
	Position *Position   `json:"position,omitempty"`
	Envelope
}

// DriverCancelledData tells the client the assigned worker backed out and a
// new search is already under way.
type DriverCancelledData struct {
	TripID  string `json:"trip_id"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Envelope
}

// LocationUpdateData carries a live position, inbound from workers and
// outbound to following clients.
type LocationUpdateData struct {
	Kind     string   `json:"kind,omitempty"` // outbound only
	WorkerID string   `json:"worker_id,omitempty"`
	Position Position `json:"position"`
}

// ErrorData is the outbound error frame payload.
type ErrorData struct {
	Error string `json:"error"`
}
