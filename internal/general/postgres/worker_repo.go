package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/ports"
)

// WorkerRepo persists workers using pgx and plain SQL.
type WorkerRepo struct{}

// NewWorkerRepo constructs a new WorkerRepo.
func NewWorkerRepo() ports.WorkerRepository {
	return &WorkerRepo{}
}

// GetByID fetches a worker by primary key (uuid).
func (repo *WorkerRepo) GetByID(ctx context.Context, id string) (*worker.Worker, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out worker.Worker
	var kind string
	var attrsRaw []byte

	err = tx.QueryRow(ctx, `
		SELECT
			id, created_at, updated_at, name, phone, kind, vehicle_attrs,
			rating, total_trips, total_earnings, is_available, is_approved
		FROM workers
		WHERE id = $1
	`, id).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Name, &out.Phone, &kind, &attrsRaw,
		&out.Rating, &out.TotalTrips, &out.TotalEarnings, &out.Available, &out.Approved,
	)
	if err != nil {
		return nil, err
	}
	out.Kind = worker.Kind(kind)

	if len(attrsRaw) > 0 {
		if err := json.Unmarshal(attrsRaw, &out.VehicleAttrs); err != nil {
			return nil, fmt.Errorf("decode vehicle_attrs: %w", err)
		}
	}

	return &out, nil
}

// SetAvailability flips the broadcast-availability flag.
func (repo *WorkerRepo) SetAvailability(ctx context.Context, id string, available bool) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE workers
		SET is_available = $1,
		    updated_at = now()
		WHERE id = $2
	`, available, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("worker %s not found", id)
	}

	return nil
}

// ListEligible returns the ids of workers allowed to see the trip: available,
// approved, of the matching kind, and not blacklisted for this exact client
// and route. Blacklist matching is on literal address strings; an entry only
// suppresses the same client going the same way, and expired entries are
// inert without any cleanup pass.
func (repo *WorkerRepo) ListEligible(ctx context.Context, t *trip.Trip) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT w.id
		FROM workers w
		WHERE w.is_available = TRUE
		  AND w.is_approved = TRUE
		  AND w.kind = $1
		  AND NOT EXISTS (
			SELECT 1
			FROM worker_blacklist b
			WHERE b.worker_id = w.id
			  AND b.client_id = $2
			  AND b.origin_address = $3
			  AND b.dest_address = $4
			  AND b.expires_at > now()
		  )
	`, workerKindFor(t.Kind), t.ClientID, t.PickupAddress, t.DropoffAddress)
	if err != nil {
		return nil, fmt.Errorf("query eligible workers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan worker id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// IncrementOnComplete bumps the settlement counters after a completed trip.
func (repo *WorkerRepo) IncrementOnComplete(ctx context.Context, id string, earnings float64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE workers
		SET total_trips = total_trips + 1,
		    total_earnings = total_earnings + $1,
		    updated_at = now()
		WHERE id = $2
	`, earnings, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("worker %s not found", id)
	}

	return nil
}

// workerKindFor maps a trip kind onto the worker kind that serves it.
func workerKindFor(k trip.Kind) string {
	if k == trip.KindDelivery {
		return worker.KindDelivery.String()
	}
	return worker.KindDriver.String()
}
