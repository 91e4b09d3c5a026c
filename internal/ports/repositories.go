package ports

import (
	"context"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
)

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TripRepository defines the methods for managing trip data.
type TripRepository interface {
	Create(ctx context.Context, t *trip.Trip) error
	GetByID(ctx context.Context, id string) (*trip.Trip, error)

	// AcceptIfPending performs the compare-and-swap claim: it assigns workerID
	// and moves the trip to accepted only if the row is still pending with no
	// worker assigned. Returns false when the guard matched zero rows, i.e.
	// the caller lost the race.
	AcceptIfPending(ctx context.Context, tripID, workerID string, at time.Time) (bool, error)

	// Advance moves the trip from the exact predecessor state to the next one
	// and stamps the transition timestamp column.
	Advance(ctx context.Context, tripID string, from, to trip.State, at time.Time) error

	// Reopen reverts an accepted trip to pending: state, assigned worker, and
	// accepted_at are all cleared in one statement.
	Reopen(ctx context.Context, tripID string) error

	Complete(ctx context.Context, tripID string, finalFare float64, at time.Time) error
	Cancel(ctx context.Context, tripID, reason string, at time.Time) error
}

// StopRepository manages ordered intermediate stops.
type StopRepository interface {
	Insert(ctx context.Context, tripID string, stops []trip.Stop) error
	ListByTrip(ctx context.Context, tripID string) ([]trip.Stop, error)
}

// WorkerRepository defines the methods for managing worker data.
type WorkerRepository interface {
	GetByID(ctx context.Context, id string) (*worker.Worker, error)
	SetAvailability(ctx context.Context, id string, available bool) error

	// ListEligible returns the ids of workers allowed to see the trip:
	// available, approved, of the matching kind, and not blacklisted for this
	// client and exact route.
	ListEligible(ctx context.Context, t *trip.Trip) ([]string, error)

	IncrementOnComplete(ctx context.Context, id string, earnings float64) error
}

// BlacklistRepository manages per-route worker exclusions.
type BlacklistRepository interface {
	// Upsert inserts or refreshes the entry keyed by (worker_id, trip_id).
	Upsert(ctx context.Context, e worker.BlacklistEntry) error

	// PurgeExpired lazily garbage-collects rows whose expiry passed before
	// the given instant. Expired rows are already inert at read time.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
