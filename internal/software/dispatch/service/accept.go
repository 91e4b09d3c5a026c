package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// AttemptAccept is the claim path. Any number of workers may race here for
// the same trip; the conditional UPDATE inside AcceptIfPending guarantees at
// most one of them wins, and everyone else gets ErrAlreadyTaken regardless of
// arrival order. An accept on an already claimed trip always fails the same
// way, the winner's own retry included.
func (s *Service) AttemptAccept(ctx context.Context, workerID, tripID string) (ports.AcceptResult, error) {
	ctx = s.logger.WithTripID(ctx, tripID)

	var (
		w *worker.Worker
		t *trip.Trip
	)
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		w, err = s.workers.GetByID(txCtx, workerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
			}
			return err
		}

		t, err = s.trips.GetByID(txCtx, tripID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: trip %s", ErrNotFound, tripID)
			}
			return err
		}
		if err := claimable(t); err != nil {
			return err
		}
		if !w.Eligible() {
			return fmt.Errorf("%w: worker is offline or not approved", ErrWorkerNotEligible)
		}

		won, err := s.trips.AcceptIfPending(txCtx, tripID, workerID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !won {
			// lost the race between the read and the claim; say which way
			t, err = s.trips.GetByID(txCtx, tripID)
			if err != nil {
				return err
			}
			if cerr := claimable(t); cerr != nil {
				return cerr
			}
			// claimed and reopened between the two reads
			return ErrAlreadyTaken
		}

		// winner stops receiving broadcasts until the trip settles
		if err := s.workers.SetAvailability(txCtx, workerID, false); err != nil {
			return err
		}

		t, err = s.trips.GetByID(txCtx, tripID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTaken) {
			observability.AcceptConflicts.Inc()
			s.logger.Info(ctx, "accept_conflict", "Worker lost the accept race", map[string]any{
				"worker_id": workerID,
			})
		}
		return ports.AcceptResult{}, err
	}

	observability.TripsMatched.WithLabelValues(t.Kind.String()).Inc()
	s.logger.Info(ctx, "trip_accepted", "Worker claimed the trip", map[string]any{
		"worker_id":   workerID,
		"trip_number": t.TripNumber,
	})

	s.sessions.MarkFound(tripID, workerID)
	s.notifyAcceptOutcome(ctx, t, w)
	s.publishTripStatus(ctx, t)

	return ports.AcceptResult{
		TripID:   t.ID,
		State:    t.State.String(),
		WorkerID: workerID,
		Message:  "trip accepted",
	}, nil
}

// claimable reports why a trip cannot be claimed. Accepted or assigned trips
// always read as taken, no matter who asks.
func claimable(t *trip.Trip) error {
	if t.State == trip.StateAccepted || (t.WorkerID != nil && *t.WorkerID != "") {
		return ErrAlreadyTaken
	}
	if t.State != trip.StatePending {
		return fmt.Errorf("%w: trip is %s", ErrWrongState, t.State)
	}
	return nil
}

// notifyAcceptOutcome tells the losers the trip is gone and the client that a
// worker was found. Both pushes are soft: a disconnected recipient learns the
// outcome from polling instead.
func (s *Service) notifyAcceptOutcome(ctx context.Context, t *trip.Trip, w *worker.Worker) {
	winnerID := w.ID

	taken := contracts.OutFrame{
		Type: contracts.MsgTripTaken,
		Data: contracts.TripTakenData{TripID: t.ID, WinnerID: winnerID, Envelope: s.envelope()},
	}
	for loserID, kind := range s.offers.losers(t.ID, winnerID) {
		s.notifier.Send(kind, loserID, taken)
	}

	found := contracts.DriverFoundData{
		TripID:   t.ID,
		Worker:   workerBrief(w, t.SilentMode),
		Envelope: s.envelope(),
	}

	// enrich with the worker's last known position when we have one
	actorKind := actorKindFor(t.Kind)
	if reg, ok := s.notifier.(interface {
		LastKnownPosition(contracts.ActorKind, string) (contracts.Position, bool)
	}); ok {
		if pos, ok := reg.LastKnownPosition(actorKind, winnerID); ok {
			found.Position = &pos
		}
	}
	if found.Position == nil && s.positions != nil {
		if pos, ok := s.positions.Get(ctx, winnerID); ok {
			found.Position = &pos
		}
	}

	s.notifier.Send(contracts.ActorClient, t.ClientID, contracts.OutFrame{
		Type: contracts.MsgDriverFound,
		Data: found,
	})
}

// workerBrief shapes the worker profile for the client push. Silent mode
// withholds the phone number; contact goes through the app instead.
func workerBrief(w *worker.Worker, silentMode bool) contracts.WorkerBrief {
	brief := contracts.WorkerBrief{
		WorkerID: w.ID,
		Name:     w.Name,
		Rating:   w.Rating,
	}
	if !silentMode {
		brief.Phone = w.Phone
	}
	if len(w.VehicleAttrs) > 0 {
		brief.Vehicle = &contracts.VehicleInfo{
			Make:  attrString(w.VehicleAttrs, "make"),
			Model: attrString(w.VehicleAttrs, "model"),
			Color: attrString(w.VehicleAttrs, "color"),
			Plate: attrString(w.VehicleAttrs, "plate"),
		}
	}
	return brief
}

func attrString(attrs worker.Attrs, key string) string {
	if v, ok := attrs[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
