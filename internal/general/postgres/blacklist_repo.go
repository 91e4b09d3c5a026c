package postgres

import (
	"context"
	"time"

	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/ports"
)

// BlacklistRepo persists per-route worker exclusions using pgx and plain SQL.
type BlacklistRepo struct{}

// NewBlacklistRepo constructs a new BlacklistRepo.
func NewBlacklistRepo() ports.BlacklistRepository {
	return &BlacklistRepo{}
}

// Upsert inserts the exclusion, or refreshes reason and expiry if the same
// worker cancels the same trip again after a re-accept.
func (repo *BlacklistRepo) Upsert(ctx context.Context, e worker.BlacklistEntry) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO worker_blacklist (
			worker_id, client_id, origin_address, dest_address,
			trip_id, reason, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (worker_id, trip_id)
		DO UPDATE SET reason = EXCLUDED.reason,
		              expires_at = EXCLUDED.expires_at
	`,
		e.WorkerID,
		e.ClientID,
		e.OriginAddress,
		e.DestAddress,
		e.TripID,
		e.Reason,
		e.ExpiresAt,
	)
	return err
}

// PurgeExpired deletes rows whose expiry passed before the given instant.
// Purely housekeeping: eligibility queries already ignore expired rows.
func (repo *BlacklistRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM worker_blacklist
		WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
