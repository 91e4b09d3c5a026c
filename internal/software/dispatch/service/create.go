package service

import (
	"context"
	"fmt"

	"trip-dispatch/internal/domain/geo"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"
)

// SubmitTrip validates and persists a new trip, opens a search session, and
// kicks off matching in the background. The client gets the session id back
// immediately and polls it for progress.
func (s *Service) SubmitTrip(ctx context.Context, in ports.SubmitTripInput) (ports.SubmitTripResult, error) {
	if err := validateSubmit(in); err != nil {
		return ports.SubmitTripResult{}, err
	}

	t, err := trip.NewTrip(
		generateTripNumber(), in.ClientID, in.Kind, in.PaymentMethod,
		in.PickupAddress, in.PickupLat, in.PickupLng,
		in.DropoffAddress, in.DropoffLat, in.DropoffLng,
	)
	if err != nil {
		return ports.SubmitTripResult{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	t.SilentMode = in.SilentMode
	if in.Fare != nil {
		fare := *in.Fare
		t.Fare = &fare
	}

	stops := make([]trip.Stop, 0, len(in.Stops))
	for i, st := range in.Stops {
		stops = append(stops, trip.Stop{Seq: i, Address: st.Address, Lat: st.Lat, Lng: st.Lng})
	}

	distanceKM := routeDistanceKM(in)
	durationMinutes := geo.EstimateDurationMinutes(distanceKM)

	err = s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.trips.Create(txCtx, t); err != nil {
			return err
		}
		if len(stops) > 0 {
			return s.stops.Insert(txCtx, t.ID, stops)
		}
		return nil
	})
	if err != nil {
		return ports.SubmitTripResult{}, fmt.Errorf("create trip: %w", err)
	}

	ctx = s.logger.WithTripID(ctx, t.ID)
	sessionID := s.sessions.Start(t.ID, t.Kind)
	observability.TripsSubmitted.WithLabelValues(t.Kind.String()).Inc()

	s.logger.Info(ctx, "trip_submitted", "Trip created; search session opened", map[string]any{
		"trip_number": t.TripNumber,
		"session_id":  sessionID,
		"kind":        t.Kind.String(),
		"distance_km": distanceKM,
	})

	s.publishTripStatus(ctx, t)

	// matching happens off the request path
	bg := context.WithoutCancel(ctx)
	go s.dispatchTrip(bg, t, stops, distanceKM, durationMinutes)

	return ports.SubmitTripResult{
		TripID:          t.ID,
		TripNumber:      t.TripNumber,
		SessionID:       sessionID,
		State:           t.State.String(),
		DistanceKM:      distanceKM,
		DurationMinutes: durationMinutes,
		Fare:            t.Fare,
		Currency:        t.Currency,
	}, nil
}

// validateSubmit applies input checks beyond what the entity constructor does.
func validateSubmit(in ports.SubmitTripInput) error {
	if !geo.ValidCoordinate(in.PickupLat, in.PickupLng) {
		return fmt.Errorf("%w: pickup coordinates out of range", ErrValidation)
	}
	if !geo.ValidCoordinate(in.DropoffLat, in.DropoffLng) {
		return fmt.Errorf("%w: dropoff coordinates out of range", ErrValidation)
	}
	for i, st := range in.Stops {
		if st.Address == "" {
			return fmt.Errorf("%w: stop %d address is required", ErrValidation, i)
		}
		if !geo.ValidCoordinate(st.Lat, st.Lng) {
			return fmt.Errorf("%w: stop %d coordinates out of range", ErrValidation, i)
		}
	}
	if in.Fare != nil && *in.Fare <= 0 {
		return fmt.Errorf("%w: fare must be positive when provided", ErrValidation)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: invalid trip kind", ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: invalid payment method", ErrValidation)
	}
	return nil
}

// PollSession reports the state of an in-flight search. Unknown session ids
// read as not-found, which includes sessions already swept after retention.
func (s *Service) PollSession(ctx context.Context, sessionID string) (ports.PollSessionResult, error) {
	snap, ok := s.sessions.Get(sessionID)
	if !ok {
		return ports.PollSessionResult{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	return ports.PollSessionResult{
		SessionID: snap.ID,
		Status:    snap.Status,
		TripID:    snap.TripID,
		WorkerID:  snap.WorkerID,
	}, nil
}
