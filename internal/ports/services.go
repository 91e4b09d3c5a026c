package ports

import (
	"context"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/general/contracts"
)

// Notifier abstracts the connection registry for outbound pushes. Send
// reports delivery as a boolean: an unreachable actor is a soft failure,
// never an error that aborts the surrounding operation.
type Notifier interface {
	Send(kind contracts.ActorKind, actorID string, frame contracts.OutFrame) bool
	IsConnected(kind contracts.ActorKind, actorID string) bool
}

// EventPublisher publishes lifecycle events to the message broker.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// ----- DTOs for the Dispatch Service -----

// StopInput is one intermediate waypoint in a submit request.
type StopInput struct {
	Address string
	Lat     float64
	Lng     float64
}

// SubmitTripInput is the validated input required to create a trip.
type SubmitTripInput struct {
	ClientID       string
	Kind           trip.Kind
	PaymentMethod  trip.PaymentMethod
	PickupAddress  string
	PickupLat      float64
	PickupLng      float64
	DropoffAddress string
	DropoffLat     float64
	DropoffLng     float64
	Stops          []StopInput
	Fare           *float64
	SilentMode     bool
}

// SubmitTripResult is returned by DispatchService.SubmitTrip.
type SubmitTripResult struct {
	TripID          string   `json:"trip_id"`
	TripNumber      string   `json:"trip_number"`
	SessionID       string   `json:"session_id"`
	State           string   `json:"state"`
	DistanceKM      float64  `json:"distance_km"`
	DurationMinutes int      `json:"duration_minutes"`
	Fare            *float64 `json:"fare,omitempty"`
	Currency        string   `json:"currency"`
}

// PollSessionResult reflects the client's in-flight search attempt.
type PollSessionResult struct {
	SessionID string  `json:"session_id"`
	Status    string  `json:"status"` // searching | driver_found | no_drivers | cancelled
	TripID    string  `json:"trip_id"`
	WorkerID  *string `json:"worker_id,omitempty"`
}

// CancelSessionResult is returned after a client abandons a search.
type CancelSessionResult struct {
	SessionID string `json:"session_id"`
	TripID    string `json:"trip_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// AcceptResult is returned to the winning worker.
type AcceptResult struct {
	TripID   string `json:"trip_id"`
	State    string `json:"state"`
	WorkerID string `json:"worker_id"`
	Message  string `json:"message"`
}

// WorkerCancelResult is returned after a worker-initiated cancellation.
type WorkerCancelResult struct {
	TripID  string `json:"trip_id"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// UpdateStatusInput is the validated input for a forward state transition.
type UpdateStatusInput struct {
	WorkerID string
	TripID   string
	Target   trip.State
}

// UpdateStatusResult reflects the applied transition.
type UpdateStatusResult struct {
	TripID    string    `json:"trip_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// CompleteTripInput is the validated input for completing a trip.
type CompleteTripInput struct {
	WorkerID         string
	TripID           string
	ActualDistanceKM float64
}

// CompleteTripResult reflects the settlement.
type CompleteTripResult struct {
	TripID    string  `json:"trip_id"`
	State     string  `json:"state"`
	FinalFare float64 `json:"final_fare"`
	Currency  string  `json:"currency"`
	Message   string  `json:"message"`
}

// AvailabilityResult is returned by the online/offline toggles.
type AvailabilityResult struct {
	WorkerID  string `json:"worker_id"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// ----- Dispatch Service Interface -----

// DispatchService exposes the boundary for the dispatch core.
type DispatchService interface {
	SubmitTrip(ctx context.Context, in SubmitTripInput) (SubmitTripResult, error)
	PollSession(ctx context.Context, sessionID string) (PollSessionResult, error)
	CancelSession(ctx context.Context, sessionID string) (CancelSessionResult, error)
	AttemptAccept(ctx context.Context, workerID, tripID string) (AcceptResult, error)
	WorkerCancel(ctx context.Context, workerID, tripID, reason string) (WorkerCancelResult, error)
	UpdateStatus(ctx context.Context, in UpdateStatusInput) (UpdateStatusResult, error)
	CompleteTrip(ctx context.Context, in CompleteTripInput) (CompleteTripResult, error)
	SetWorkerAvailability(ctx context.Context, workerID string, available bool) (AvailabilityResult, error)
	RunBackgroundConsumers(ctx context.Context)
}
