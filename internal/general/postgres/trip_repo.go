package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// TripRepo persists trips using pgx and plain SQL.
type TripRepo struct{}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo() ports.TripRepository {
	return &TripRepo{}
}

// Create inserts a new trip row and writes an initial TRIP_REQUESTED event.
func (repo *TripRepo) Create(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// insert only the columns we actually have values for at creation time
	err = tx.QueryRow(ctx, `
		INSERT INTO trips (
			trip_number, client_id, kind, state, payment_method, silent_mode,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			fare, currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at, requested_at
	`,
		t.TripNumber,
		t.ClientID,
		t.Kind.String(),
		t.State.String(), // "pending" at creation
		t.PaymentMethod.String(),
		t.SilentMode,
		t.PickupAddress,
		t.PickupLat,
		t.PickupLng,
		t.DropoffAddress,
		t.DropoffLat,
		t.DropoffLng,
		t.Fare, // nil means "fare not yet known"
		t.Currency,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}

	eventData := map[string]any{
		"new_state":      t.State.String(),
		"kind":           t.Kind.String(),
		"payment_method": t.PaymentMethod.String(),
	}

	// insert TRIP_REQUESTED event
	if err := insertTripEvent(ctx, tx, t.ID, "TRIP_REQUESTED", eventData); err != nil {
		return err
	}

	return nil
}

// GetByID fetches a trip by primary key (uuid).
func (repo *TripRepo) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out trip.Trip
	var kind, state, paymentMethod string

	// fetch all columns
	err = tx.QueryRow(ctx, `
		SELECT
			id, created_at, updated_at, trip_number, client_id, assigned_worker,
			kind, state, payment_method, silent_mode,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			fare, currency, requested_at, accepted_at, arrived_pickup_at,
			started_at, completed_at, cancelled_at, cancellation_reason
		FROM trips
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.TripNumber, &out.ClientID, &out.WorkerID,
		&kind, &state, &paymentMethod, &out.SilentMode,
		&out.PickupAddress, &out.PickupLat, &out.PickupLng,
		&out.DropoffAddress, &out.DropoffLat, &out.DropoffLng,
		&out.Fare, &out.Currency, &out.RequestedAt, &out.AcceptedAt, &out.ArrivedPickupAt,
		&out.StartedAt, &out.CompletedAt, &out.CancelledAt, &out.CancellationReason,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, err
	}
	out.Kind = trip.Kind(kind)
	out.State = trip.State(state)
	out.PaymentMethod = trip.PaymentMethod(paymentMethod)

	return &out, nil
}

// AcceptIfPending is the atomic claim. The conditional UPDATE succeeds for at
// most one caller: the guard re-checks state and assignment inside the
// statement, so concurrent accepts resolve to exactly one winner no matter
// how many arrive at once.
func (repo *TripRepo) AcceptIfPending(ctx context.Context, tripID, workerID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET assigned_worker = $1,
		    state = 'accepted',
		    accepted_at = $2,
		    updated_at = now()
		WHERE id = $3
		  AND state = 'pending'
		  AND assigned_worker IS NULL
	`, workerID, at, tripID)
	if err != nil {
		return false, err
	}

	// zero rows means the guard failed: someone else won, or the trip left pending
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	eventData := map[string]any{
		"old_state":   "pending",
		"new_state":   "accepted",
		"worker_id":   workerID,
		"accepted_at": at.UTC().Format(time.RFC3339),
	}
	if err := insertTripEvent(ctx, tx, tripID, "WORKER_ACCEPTED", eventData); err != nil {
		return false, err
	}

	return true, nil
}

// Advance moves the trip from the exact predecessor state to the next one and
// stamps the matching timeline column.
func (repo *TripRepo) Advance(ctx context.Context, tripID string, from, to trip.State, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	// lock the row and read current state to enforce transitions
	var current string
	err = tx.QueryRow(ctx, `
		SELECT state
		FROM trips
		WHERE id = $1
		FOR UPDATE
	`, tripID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == to.String() {
		return nil
	}

	if current != from.String() {
		return fmt.Errorf("trip is %s, expected %s: %w", current, from, trip.ErrInvalidTransition)
	}

	query, args := advanceUpdate(to, at, tripID)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return err
	}

	// insert state change event
	evType := eventTypeFor(to)
	eventData := map[string]any{
		"old_state": current,
		"new_state": to.String(),
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	if err := insertTripEvent(ctx, tx, tripID, evType, eventData); err != nil {
		return err
	}

	return nil
}

// Reopen reverts a claimed trip back to pending after a worker cancellation.
// Assignment and the accepted/arrived stamps are cleared in one statement so
// the trip re-enters matching clean.
func (repo *TripRepo) Reopen(ctx context.Context, tripID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	var existingWorker *string
	err = tx.QueryRow(ctx, `
		SELECT state, assigned_worker
		FROM trips
		WHERE id = $1
		FOR UPDATE
	`, tripID).Scan(&current, &existingWorker)
	if err != nil {
		return err
	}

	// only pre-pickup states can be reopened
	switch current {
	case "accepted", "en_route_pickup", "arrived_pickup":
	default:
		return fmt.Errorf("cannot reopen trip in state %s: %w", current, trip.ErrInvalidTransition)
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET state = 'pending',
		    assigned_worker = NULL,
		    accepted_at = NULL,
		    arrived_pickup_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, tripID)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"old_state": current,
		"new_state": "pending",
	}
	if existingWorker != nil {
		eventData["released_worker"] = *existingWorker
	}
	if err := insertTripEvent(ctx, tx, tripID, "TRIP_REOPENED", eventData); err != nil {
		return err
	}

	return nil
}

// Complete finalizes a trip with the settled fare, stamps completed_at, and
// moves to completed.
func (repo *TripRepo) Complete(ctx context.Context, tripID string, finalFare float64, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT state
		FROM trips
		WHERE id = $1
		FOR UPDATE
	`, tripID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == "completed" {
		return nil
	}

	if current == "cancelled" {
		return errors.New("cannot complete a cancelled trip")
	}

	// only allow from in_progress -> completed
	if current != "in_progress" {
		return errors.New("complete is only allowed from in_progress")
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET state = 'completed',
		    fare = $1,
		    completed_at = $2,
		    updated_at = now()
		WHERE id = $3
	`, finalFare, at, tripID)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"old_state":    current,
		"new_state":    "completed",
		"final_fare":   finalFare,
		"completed_at": at.UTC().Format(time.RFC3339),
	}
	if err := insertTripEvent(ctx, tx, tripID, "TRIP_COMPLETED", eventData); err != nil {
		return err
	}

	return nil
}

// Cancel sets cancellation_reason, stamps cancelled_at, and moves to cancelled.
func (repo *TripRepo) Cancel(ctx context.Context, tripID, reason string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRow(ctx, `
		SELECT state
		FROM trips
		WHERE id = $1
		FOR UPDATE
	`, tripID).Scan(&current)
	if err != nil {
		return err
	}

	// idempotent success
	if current == "cancelled" {
		return nil
	}

	// cannot cancel a completed trip, and in_progress trips must finish
	if current == "completed" {
		return errors.New("cannot cancel a completed trip")
	}
	if current == "in_progress" {
		return errors.New("cannot cancel a trip in progress")
	}

	_, err = tx.Exec(ctx, `
		UPDATE trips
		SET state = 'cancelled',
		    cancellation_reason = $1,
		    cancelled_at = $2,
		    updated_at = now()
		WHERE id = $3
	`, reason, at, tripID)
	if err != nil {
		return err
	}

	eventData := map[string]any{
		"old_state":    current,
		"new_state":    "cancelled",
		"reason":       reason,
		"cancelled_at": at.UTC().Format(time.RFC3339),
	}
	if err := insertTripEvent(ctx, tx, tripID, "TRIP_CANCELLED", eventData); err != nil {
		return err
	}

	return nil
}

// --- helpers ---

// insertTripEvent writes a row into trip_events with encoded event_data.
func insertTripEvent(ctx context.Context, tx pgx.Tx, tripID, eventType string, eventData any) error {
	body, err := json.Marshal(eventData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trip_events (trip_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
	`, tripID, eventType, string(body))
	return err
}

// advanceUpdate builds the UPDATE for a forward transition, with the argument
// list matching the placeholders exactly. States without a dedicated timeline
// column must not bind the timestamp: Postgres rejects a statement whose
// parameter is never referenced.
func advanceUpdate(to trip.State, at time.Time, tripID string) (string, []any) {
	if col := timelineColumnFor(to); col != "" {
		return `
			UPDATE trips
			SET state = $1,
			    ` + col + ` = $2,
			    updated_at = now()
			WHERE id = $3
		`, []any{to.String(), at, tripID}
	}
	return `
		UPDATE trips
		SET state = $1,
		    updated_at = now()
		WHERE id = $2
	`, []any{to.String(), tripID}
}

// timelineColumnFor maps a state to its timeline column, or "" when the state
// has none (en_route_pickup only bumps updated_at).
func timelineColumnFor(state trip.State) string {
	switch state {
	case trip.StateAccepted:
		return "accepted_at"
	case trip.StateArrivedPickup:
		return "arrived_pickup_at"
	case trip.StateInProgress:
		return "started_at"
	case trip.StateCompleted:
		return "completed_at"
	case trip.StateCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

// eventTypeFor returns a more precise event name when appropriate.
func eventTypeFor(state trip.State) string {
	switch state {
	case trip.StateAccepted:
		return "WORKER_ACCEPTED"
	case trip.StateEnRoutePickup:
		return "WORKER_EN_ROUTE"
	case trip.StateArrivedPickup:
		return "WORKER_ARRIVED"
	case trip.StateInProgress:
		return "TRIP_STARTED"
	case trip.StateCompleted:
		return "TRIP_COMPLETED"
	case trip.StateCancelled:
		return "TRIP_CANCELLED"
	default:
		return "STATE_CHANGED"
	}
}
