package trip

import (
	"errors"
	"strings"
	"time"
)

// Trip is the domain entity corresponding to the `trips` table.
// A trip is either a ride or a package delivery awaiting or undergoing fulfillment.
type Trip struct {
	// Identity & audit
	ID         string
	TripNumber string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Actors
	ClientID string
	WorkerID *string // nil until accepted

	// Core state
	Kind          Kind
	State         State
	PaymentMethod PaymentMethod
	SilentMode    bool

	// Route
	PickupAddress  string
	PickupLat      float64
	PickupLng      float64
	DropoffAddress string
	DropoffLat     float64
	DropoffLng     float64

	// Money
	Fare     *float64
	Currency string

	// Lifecycle timestamps
	RequestedAt     time.Time
	AcceptedAt      *time.Time
	ArrivedPickupAt *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time

	CancellationReason *string
}

var (
	ErrClientRequired     = errors.New("client id is required")
	ErrWorkerRequired     = errors.New("worker id is required")
	ErrTripNumberRequired = errors.New("trip number is required")
	ErrAddressRequired    = errors.New("pickup and dropoff addresses are required")
	ErrInvalidTransition  = errors.New("invalid trip state transition")
	ErrAlreadyAssigned    = errors.New("worker already assigned")
	ErrNoWorkerAssigned   = errors.New("no worker assigned")
	ErrNotAssignedWorker  = errors.New("caller is not the assigned worker")
)

// NewTrip creates a new trip in pending state.
func NewTrip(tripNumber, clientID string, kind Kind, pm PaymentMethod, pickupAddr string, pickupLat, pickupLng float64, dropoffAddr string, dropoffLat, dropoffLng float64) (*Trip, error) {
	if tripNumber = strings.TrimSpace(tripNumber); tripNumber == "" {
		return nil, ErrTripNumberRequired
	}
	if clientID = strings.TrimSpace(clientID); clientID == "" {
		return nil, ErrClientRequired
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !pm.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	pickupAddr = strings.TrimSpace(pickupAddr)
	dropoffAddr = strings.TrimSpace(dropoffAddr)
	if pickupAddr == "" || dropoffAddr == "" {
		return nil, ErrAddressRequired
	}

	now := time.Now().UTC()
	return &Trip{
		TripNumber:     tripNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
		ClientID:       clientID,
		Kind:           kind,
		State:          StatePending,
		PaymentMethod:  pm,
		PickupAddress:  pickupAddr,
		PickupLat:      pickupLat,
		PickupLng:      pickupLng,
		DropoffAddress: dropoffAddr,
		DropoffLat:     dropoffLat,
		DropoffLng:     dropoffLng,
		Currency:       "XOF",
		RequestedAt:    now,
	}, nil
}

// Accept assigns the worker and moves pending -> accepted.
func (t *Trip) Accept(workerID string) error {
	if workerID == "" {
		return ErrWorkerRequired
	}
	if t.WorkerID != nil && *t.WorkerID != "" {
		return ErrAlreadyAssigned
	}
	if t.State != StatePending {
		return ErrInvalidTransition
	}

	t.WorkerID = &workerID
	now := time.Now().UTC()
	t.AcceptedAt = &now
	t.setState(StateAccepted)
	return nil
}

// Advance moves the trip one forward step to target, which must be the exact
// successor of the current state, and requires workerID to be the assignee.
func (t *Trip) Advance(workerID string, target State) error {
	if t.WorkerID == nil || *t.WorkerID == "" {
		return ErrNoWorkerAssigned
	}
	if *t.WorkerID != workerID {
		return ErrNotAssignedWorker
	}
	succ, ok := t.State.Successor()
	if !ok || target != succ {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	switch target {
	case StateArrivedPickup:
		t.ArrivedPickupAt = &now
	case StateInProgress:
		t.StartedAt = &now
	case StateCompleted:
		t.CompletedAt = &now
	}
	t.setState(target)
	return nil
}

// Complete transitions in_progress -> completed and settles the final fare.
func (t *Trip) Complete(finalFare float64) error {
	if t.State != StateInProgress {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.Fare = &finalFare
	t.setState(StateCompleted)
	return nil
}

// Cancel transitions to cancelled where still allowed.
func (t *Trip) Cancel(reason string) error {
	if !t.State.Cancellable() {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	t.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		t.CancellationReason = &rs
	}
	t.setState(StateCancelled)
	return nil
}

// Reopen reverts an accepted trip back to pending after a worker cancellation.
// The assignment and accepted timestamp are cleared so the trip re-enters the
// matching cycle.
func (t *Trip) Reopen() error {
	switch t.State {
	case StateAccepted, StateEnRoutePickup, StateArrivedPickup:
	default:
		return ErrInvalidTransition
	}
	t.WorkerID = nil
	t.AcceptedAt = nil
	t.ArrivedPickupAt = nil
	t.setState(StatePending)
	return nil
}

// AssignedTo reports whether workerID currently owns the trip.
func (t *Trip) AssignedTo(workerID string) bool {
	return t.WorkerID != nil && *t.WorkerID == workerID
}

// ----- internal helpers -----

func (t *Trip) setState(state State) {
	t.State = state
	t.touch()
}

func (t *Trip) touch() {
	t.UpdatedAt = time.Now().UTC()
}
