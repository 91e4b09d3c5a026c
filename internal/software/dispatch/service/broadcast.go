package service

import (
	"context"
	"sync"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/observability"
)

// offerLog remembers which workers saw the new_request broadcast for each
// trip, so that when one of them wins the losers can be told explicitly.
type offerLog struct {
	mu     sync.Mutex
	byTrip map[string]map[string]contracts.ActorKind // trip id -> worker id -> kind
}

func newOfferLog() *offerLog {
	return &offerLog{byTrip: make(map[string]map[string]contracts.ActorKind)}
}

// record adds one notified worker for the trip.
func (o *offerLog) record(tripID, workerID string, kind contracts.ActorKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.byTrip[tripID] == nil {
		o.byTrip[tripID] = make(map[string]contracts.ActorKind)
	}
	o.byTrip[tripID][workerID] = kind
}

// losers returns every notified worker except the winner and clears the log
// entry for the trip.
func (o *offerLog) losers(tripID, winnerID string) map[string]contracts.ActorKind {
	o.mu.Lock()
	defer o.mu.Unlock()

	set := o.byTrip[tripID]
	delete(o.byTrip, tripID)

	out := make(map[string]contracts.ActorKind, len(set))
	for id, kind := range set {
		if id != winnerID {
			out[id] = kind
		}
	}
	return out
}

// clear drops the log entry without producing losers (trip cancelled).
func (o *offerLog) clear(tripID string) map[string]contracts.ActorKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	set := o.byTrip[tripID]
	delete(o.byTrip, tripID)
	return set
}

// dispatchTrip finds eligible workers and fans the new_request frame out to
// every one of them that is connected. Runs in its own goroutine after
// SubmitTrip commits, and again after a worker cancellation reopens a trip.
func (s *Service) dispatchTrip(ctx context.Context, t *trip.Trip, stops []trip.Stop, distanceKM float64, durationMinutes int) {
	ctx = s.logger.WithTripID(ctx, t.ID)

	var eligible []string
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		eligible, err = s.workers.ListEligible(txCtx, t)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "eligibility_query_failed", "Failed to list eligible workers", err, nil)
		return
	}

	if len(eligible) == 0 {
		s.logger.Info(ctx, "no_eligible_workers", "No worker is eligible for this trip", map[string]any{
			"kind": t.Kind.String(),
		})
		return
	}

	frame := contracts.OutFrame{
		Type: contracts.MsgNewRequest,
		Data: s.newRequestData(t, stops, distanceKM, durationMinutes),
	}
	actorKind := actorKindFor(t.Kind)

	notified := 0
	for _, workerID := range eligible {
		// disconnected workers are skipped, not errors
		if s.notifier.Send(actorKind, workerID, frame) {
			s.offers.record(t.ID, workerID, actorKind)
			notified++
		}
	}
	observability.WorkersNotified.Add(float64(notified))

	s.logger.Info(ctx, "trip_broadcast", "Broadcast new_request to eligible workers", map[string]any{
		"eligible": len(eligible),
		"notified": notified,
	})
}

// newRequestData builds the broadcast payload for a trip.
func (s *Service) newRequestData(t *trip.Trip, stops []trip.Stop, distanceKM float64, durationMinutes int) contracts.NewRequestData {
	data := contracts.NewRequestData{
		TripID:          t.ID,
		TripNumber:      t.TripNumber,
		Kind:            t.Kind.String(),
		Pickup:          contracts.GeoPoint{Lat: t.PickupLat, Lng: t.PickupLng, Address: t.PickupAddress},
		Dropoff:         contracts.GeoPoint{Lat: t.DropoffLat, Lng: t.DropoffLng, Address: t.DropoffAddress},
		Fare:            t.Fare,
		Currency:        t.Currency,
		PaymentMethod:   t.PaymentMethod.String(),
		DistanceKM:      distanceKM,
		DurationMinutes: durationMinutes,
		Envelope:        s.envelope(),
	}
	for _, st := range stops {
		data.Stops = append(data.Stops, contracts.StopPoint{Seq: st.Seq, Address: st.Address, Lat: st.Lat, Lng: st.Lng})
	}
	return data
}

// actorKindFor maps trip kind onto the worker population that serves it.
func actorKindFor(k trip.Kind) contracts.ActorKind {
	if k == trip.KindDelivery {
		return contracts.ActorDelivery
	}
	return contracts.ActorDriver
}
