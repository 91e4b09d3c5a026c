package postgres

import (
	"context"
	"fmt"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

// StopRepo persists ordered intermediate stops using pgx and plain SQL.
type StopRepo struct{}

// NewStopRepo constructs a new StopRepo.
func NewStopRepo() ports.StopRepository {
	return &StopRepo{}
}

// Insert writes the stops for a trip, preserving submission order via seq.
func (repo *StopRepo) Insert(ctx context.Context, tripID string, stops []trip.Stop) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	for i, s := range stops {
		_, err := tx.Exec(ctx, `
			INSERT INTO trip_stops (trip_id, seq, address, lat, lng)
			VALUES ($1, $2, $3, $4, $5)
		`, tripID, i, s.Address, s.Lat, s.Lng)
		if err != nil {
			return fmt.Errorf("insert stop %d: %w", i, err)
		}
	}

	return nil
}

// ListByTrip returns the stops in submission order.
func (repo *StopRepo) ListByTrip(ctx context.Context, tripID string) ([]trip.Stop, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, trip_id, seq, address, lat, lng
		FROM trip_stops
		WHERE trip_id = $1
		ORDER BY seq ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query trip stops: %w", err)
	}
	defer rows.Close()

	var stops []trip.Stop
	for rows.Next() {
		var s trip.Stop
		if err := rows.Scan(&s.ID, &s.TripID, &s.Seq, &s.Address, &s.Lat, &s.Lng); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		stops = append(stops, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stops, nil
}
