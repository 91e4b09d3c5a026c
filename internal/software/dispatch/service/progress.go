package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// UpdateStatus applies one forward step of the trip state machine on behalf
// of the assigned worker. Skipping states is rejected; each step must go
// through its exact predecessor.
func (s *Service) UpdateStatus(ctx context.Context, in ports.UpdateStatusInput) (ports.UpdateStatusResult, error) {
	ctx = s.logger.WithTripID(ctx, in.TripID)

	switch in.Target {
	case trip.StateEnRoutePickup, trip.StateArrivedPickup, trip.StateInProgress:
	default:
		return ports.UpdateStatusResult{}, fmt.Errorf("%w: target state %s is not a worker transition", ErrValidation, in.Target)
	}

	now := time.Now().UTC()
	var t *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: trip %s", ErrNotFound, in.TripID)
			}
			return err
		}
		if !t.AssignedTo(in.WorkerID) {
			return fmt.Errorf("%w: trip is not assigned to this worker", ErrWorkerNotEligible)
		}
		if succ, ok := t.State.Successor(); !ok || in.Target != succ {
			return fmt.Errorf("%w: cannot move from %s to %s", ErrWrongState, t.State, in.Target)
		}

		return s.trips.Advance(txCtx, in.TripID, t.State, in.Target, now)
	})
	if err != nil {
		return ports.UpdateStatusResult{}, err
	}

	t.State = in.Target
	s.logger.Info(ctx, "trip_status_updated", "Trip advanced one state", map[string]any{
		"worker_id": in.WorkerID,
		"state":     in.Target.String(),
	})
	s.publishTripStatus(ctx, t)

	return ports.UpdateStatusResult{
		TripID:    in.TripID,
		State:     in.Target.String(),
		Timestamp: now,
	}, nil
}

// CompleteTrip settles a trip: the agreed fare if one was set at submission,
// otherwise the per-kind fallback fare from the actually driven distance.
// The worker's counters bump and the worker rejoins the available pool.
func (s *Service) CompleteTrip(ctx context.Context, in ports.CompleteTripInput) (ports.CompleteTripResult, error) {
	ctx = s.logger.WithTripID(ctx, in.TripID)

	if in.ActualDistanceKM < 0 {
		return ports.CompleteTripResult{}, fmt.Errorf("%w: distance cannot be negative", ErrValidation)
	}

	now := time.Now().UTC()
	var (
		t         *trip.Trip
		finalFare float64
	)
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.trips.GetByID(txCtx, in.TripID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: trip %s", ErrNotFound, in.TripID)
			}
			return err
		}
		if !t.AssignedTo(in.WorkerID) {
			return fmt.Errorf("%w: trip is not assigned to this worker", ErrWorkerNotEligible)
		}
		if t.State != trip.StateInProgress {
			return fmt.Errorf("%w: complete is only allowed from in_progress", ErrWrongState)
		}

		if t.Fare != nil {
			finalFare = *t.Fare
		} else {
			finalFare = trip.FallbackFare(t.Kind, in.ActualDistanceKM)
		}

		if err := s.trips.Complete(txCtx, in.TripID, finalFare, now); err != nil {
			return err
		}
		if err := s.workers.IncrementOnComplete(txCtx, in.WorkerID, finalFare); err != nil {
			return err
		}
		return s.workers.SetAvailability(txCtx, in.WorkerID, true)
	})
	if err != nil {
		return ports.CompleteTripResult{}, err
	}

	t.State = trip.StateCompleted
	t.Fare = &finalFare
	t.CompletedAt = &now

	s.logger.Info(ctx, "trip_completed", "Trip settled", map[string]any{
		"worker_id":  in.WorkerID,
		"final_fare": finalFare,
		"currency":   t.Currency,
	})
	s.publishTripStatus(ctx, t)

	return ports.CompleteTripResult{
		TripID:    in.TripID,
		State:     t.State.String(),
		FinalFare: finalFare,
		Currency:  t.Currency,
		Message:   "trip completed",
	}, nil
}

// SetWorkerAvailability is the online/offline toggle.
func (s *Service) SetWorkerAvailability(ctx context.Context, workerID string, available bool) (ports.AvailabilityResult, error) {
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.workers.GetByID(txCtx, workerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
			}
			return err
		}
		return s.workers.SetAvailability(txCtx, workerID, available)
	})
	if err != nil {
		return ports.AvailabilityResult{}, err
	}

	s.logger.Info(ctx, "worker_availability_set", "Worker availability toggled", map[string]any{
		"worker_id": workerID,
		"available": available,
	})

	msg := "you are now offline"
	if available {
		msg = "you are now online"
	}
	return ports.AvailabilityResult{
		WorkerID:  workerID,
		Available: available,
		Message:   msg,
	}, nil
}
