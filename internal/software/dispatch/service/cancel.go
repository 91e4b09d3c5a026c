package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"trip-dispatch/internal/domain/geo"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// WorkerCancel handles a worker backing out of a claimed trip before pickup.
// In one transaction the trip reopens, the worker returns to the available
// pool, and a time-boxed blacklist entry keeps this worker from seeing the
// same client's route again. Matching restarts immediately afterwards.
func (s *Service) WorkerCancel(ctx context.Context, workerID, tripID, reason string) (ports.WorkerCancelResult, error) {
	ctx = s.logger.WithTripID(ctx, tripID)

	var (
		t     *trip.Trip
		stops []trip.Stop
	)
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.trips.GetByID(txCtx, tripID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: trip %s", ErrNotFound, tripID)
			}
			return err
		}
		if !t.AssignedTo(workerID) {
			return fmt.Errorf("%w: trip is not assigned to this worker", ErrWorkerNotEligible)
		}
		switch t.State {
		case trip.StateAccepted, trip.StateEnRoutePickup, trip.StateArrivedPickup:
		default:
			return fmt.Errorf("%w: cannot cancel from %s", ErrWrongState, t.State)
		}

		if err := s.trips.Reopen(txCtx, tripID); err != nil {
			return err
		}
		if err := s.workers.SetAvailability(txCtx, workerID, true); err != nil {
			return err
		}

		// the exclusion scopes to this client and this literal route, not to
		// the worker in general
		now := time.Now().UTC()
		if err := s.blacklist.Upsert(txCtx, worker.BlacklistEntry{
			WorkerID:      workerID,
			ClientID:      t.ClientID,
			OriginAddress: t.PickupAddress,
			DestAddress:   t.DropoffAddress,
			TripID:        tripID,
			Reason:        reason,
			ExpiresAt:     now.Add(s.cfg.Dispatch.BlacklistTTL.Std()),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		stops, err = s.stops.ListByTrip(txCtx, tripID)
		return err
	})
	if err != nil {
		return ports.WorkerCancelResult{}, err
	}

	observability.WorkerCancellations.Inc()
	s.logger.Info(ctx, "worker_cancelled", "Worker released the trip; search restarting", map[string]any{
		"worker_id": workerID,
		"reason":    reason,
	})

	// reflect the reopened row
	t.WorkerID = nil
	t.AcceptedAt = nil
	t.ArrivedPickupAt = nil
	t.State = trip.StatePending

	s.sessions.Resume(tripID)

	s.notifier.Send(contracts.ActorClient, t.ClientID, contracts.OutFrame{
		Type: contracts.MsgDriverCancelled,
		Data: contracts.DriverCancelledData{
			TripID:   tripID,
			Reason:   reason,
			Message:  "the worker cancelled; searching for a new one",
			Envelope: s.envelope(),
		},
	})

	s.publishTripStatus(ctx, t)

	distanceKM := routeDistanceForTrip(t, stops)
	bg := context.WithoutCancel(ctx)
	go s.dispatchTrip(bg, t, stops, distanceKM, geo.EstimateDurationMinutes(distanceKM))

	return ports.WorkerCancelResult{
		TripID:  tripID,
		State:   t.State.String(),
		Message: "trip released; a new search has started",
	}, nil
}

// CancelSession lets the client abandon a search. The trip is cancelled if it
// has not progressed past pickup; any previously assigned worker returns to
// the pool and workers still holding the offer see it withdrawn. The session
// is only removed once the trip change commits: a rejected cancel leaves the
// session reflecting the trip that is still running.
func (s *Service) CancelSession(ctx context.Context, sessionID string) (ports.CancelSessionResult, error) {
	tripID, ok := s.sessions.TripFor(sessionID)
	if !ok {
		return ports.CancelSessionResult{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	ctx = s.logger.WithTripID(ctx, tripID)

	var t *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.trips.GetByID(txCtx, tripID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: trip %s", ErrNotFound, tripID)
			}
			return err
		}
		if t.State.Terminal() {
			// already settled; nothing to undo
			return nil
		}
		if !t.State.Cancellable() {
			return fmt.Errorf("%w: cannot cancel from %s", ErrWrongState, t.State)
		}

		if err := s.trips.Cancel(txCtx, tripID, "cancelled_by_client", time.Now().UTC()); err != nil {
			return err
		}
		if t.WorkerID != nil && *t.WorkerID != "" {
			return s.workers.SetAvailability(txCtx, *t.WorkerID, true)
		}
		return nil
	})
	if err != nil {
		return ports.CancelSessionResult{}, err
	}

	// drop the session; later polls read not-found
	s.sessions.Cancel(sessionID)

	s.logger.Info(ctx, "session_cancelled", "Client abandoned the search", map[string]any{
		"session_id": sessionID,
	})

	// withdraw the offer from every worker still holding it
	withdrawn := contracts.OutFrame{
		Type: contracts.MsgTripTaken,
		Data: contracts.TripTakenData{TripID: tripID, Envelope: s.envelope()},
	}
	for workerID, kind := range s.offers.clear(tripID) {
		s.notifier.Send(kind, workerID, withdrawn)
	}
	if t.WorkerID != nil && *t.WorkerID != "" {
		s.notifier.Send(actorKindFor(t.Kind), *t.WorkerID, withdrawn)
	}

	if !t.State.Terminal() {
		t.State = trip.StateCancelled
		s.publishTripStatus(ctx, t)
	}

	return ports.CancelSessionResult{
		SessionID: sessionID,
		TripID:    tripID,
		Status:    SessionCancelled,
		Message:   "search cancelled",
	}, nil
}

// routeDistanceForTrip recomputes the route distance from persisted data.
func routeDistanceForTrip(t *trip.Trip, stops []trip.Stop) float64 {
	lat, lng := t.PickupLat, t.PickupLng
	total := 0.0
	for _, st := range stops {
		total += geo.HaversineKM(lat, lng, st.Lat, st.Lng)
		lat, lng = st.Lat, st.Lng
	}
	total += geo.HaversineKM(lat, lng, t.DropoffLat, t.DropoffLng)
	return math.Round(total*100) / 100
}
