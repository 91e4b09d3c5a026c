package service

import (
	"context"
	"testing"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/general/contracts"
)

func TestDispatchNotifiesOnlyConnected(t *testing.T) {
	env := newTestEnv()
	tr := env.seedTrip("client-1", trip.KindRide)
	env.seedWorker("driver-1", worker.KindDriver, true, true)
	env.seedWorker("driver-2", worker.KindDriver, true, true)
	env.seedWorker("driver-3", worker.KindDriver, true, true)
	env.notifier.disconnect("driver-2")

	env.svc.dispatchTrip(context.Background(), tr, nil, 7.5, 22)

	for _, id := range []string{"driver-1", "driver-3"} {
		frames := env.notifier.framesTo(id)
		if len(frames) != 1 || frames[0].Type != contracts.MsgNewRequest {
			t.Fatalf("%s: expected one new_request, got %v", id, frames)
		}
	}
	if frames := env.notifier.framesTo("driver-2"); len(frames) != 0 {
		t.Fatalf("disconnected worker received frames: %v", frames)
	}

	// only delivered offers land in the log
	losers := env.svc.offers.losers(tr.ID, "driver-1")
	if len(losers) != 1 {
		t.Fatalf("expected 1 loser, got %v", losers)
	}
	if _, ok := losers["driver-3"]; !ok {
		t.Fatalf("driver-3 missing from losers: %v", losers)
	}
}

func TestDispatchMatchesWorkerKind(t *testing.T) {
	env := newTestEnv()
	tr := env.seedTrip("client-1", trip.KindDelivery)
	env.seedWorker("driver-1", worker.KindDriver, true, true)
	env.seedWorker("courier-1", worker.KindDelivery, true, true)

	env.svc.dispatchTrip(context.Background(), tr, nil, 3.0, 9)

	if frames := env.notifier.framesTo("driver-1"); len(frames) != 0 {
		t.Fatalf("ride driver received a delivery broadcast: %v", frames)
	}
	frames := env.notifier.framesTo("courier-1")
	if len(frames) != 1 {
		t.Fatalf("courier should have been notified, got %v", frames)
	}
	data := frames[0].Data.(contracts.NewRequestData)
	if data.Kind != trip.KindDelivery.String() {
		t.Fatalf("broadcast carries wrong kind: %s", data.Kind)
	}
}

func TestDispatchNoEligibleWorkers(t *testing.T) {
	env := newTestEnv()
	tr := env.seedTrip("client-1", trip.KindRide)
	env.seedWorker("driver-1", worker.KindDriver, true, false) // not approved

	env.svc.dispatchTrip(context.Background(), tr, nil, 7.5, 22)

	if frames := env.notifier.framesTo("driver-1"); len(frames) != 0 {
		t.Fatalf("unapproved worker received frames: %v", frames)
	}
}

func TestOfferLogLifecycle(t *testing.T) {
	log := newOfferLog()
	log.record("trip-1", "a", contracts.ActorDriver)
	log.record("trip-1", "b", contracts.ActorDriver)
	log.record("trip-1", "c", contracts.ActorDriver)
	log.record("trip-2", "d", contracts.ActorDelivery)

	losers := log.losers("trip-1", "b")
	if len(losers) != 2 {
		t.Fatalf("expected 2 losers, got %v", losers)
	}
	if _, ok := losers["b"]; ok {
		t.Fatal("winner listed among losers")
	}

	// losers consumed the entry
	if again := log.losers("trip-1", "b"); len(again) != 0 {
		t.Fatalf("log entry not cleared: %v", again)
	}

	// clear returns the full set without picking a winner
	set := log.clear("trip-2")
	if len(set) != 1 || set["d"] != contracts.ActorDelivery {
		t.Fatalf("clear returned %v", set)
	}
	if set := log.clear("trip-2"); len(set) != 0 {
		t.Fatalf("clear not idempotent: %v", set)
	}
}

// hasOfferEntry reports whether the offer log still tracks the trip.
func hasOfferEntry(s *Service, tripID string) bool {
	s.offers.mu.Lock()
	defer s.offers.mu.Unlock()
	_, ok := s.offers.byTrip[tripID]
	return ok
}

func TestOfferLogClearedOnSearchTimeout(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, true, true)
	tr := env.seedTrip("client-1", trip.KindRide)
	sessionID := env.sessions.Start(tr.ID, tr.Kind)

	env.svc.dispatchTrip(context.Background(), tr, nil, 5.0, 15)
	if !hasOfferEntry(env.svc, tr.ID) {
		t.Fatal("offer entry missing after broadcast")
	}

	// the next poll past the deadline settles no_drivers and must release
	// the broadcast bookkeeping with it
	env.sessions.now = func() time.Time { return time.Now().UTC().Add(3 * time.Minute) }
	snap, ok := env.sessions.Get(sessionID)
	if !ok || snap.Status != SessionNoDrivers {
		t.Fatalf("expected no_drivers, got %+v ok=%v", snap, ok)
	}
	if hasOfferEntry(env.svc, tr.ID) {
		t.Fatal("offer entry retained after search timed out")
	}
}

func TestOfferLogClearedBySweep(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, true, true)
	tr := env.seedTrip("client-1", trip.KindRide)
	env.sessions.Start(tr.ID, tr.Kind)

	env.svc.dispatchTrip(context.Background(), tr, nil, 5.0, 15)
	if !hasOfferEntry(env.svc, tr.ID) {
		t.Fatal("offer entry missing after broadcast")
	}

	// nobody ever polls; the sweep settles the timeout and the offer set
	// must not outlive it
	env.sessions.now = func() time.Time { return time.Now().UTC().Add(3 * time.Minute) }
	env.sessions.Sweep()
	if hasOfferEntry(env.svc, tr.ID) {
		t.Fatal("offer entry retained after sweep")
	}
}
