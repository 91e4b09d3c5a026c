package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/domain/worker"
	"trip-dispatch/internal/ports"
)

func TestUpdateStatusWalksExactSuccessors(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)
	ctx := context.Background()

	for _, target := range []trip.State{
		trip.StateEnRoutePickup,
		trip.StateArrivedPickup,
		trip.StateInProgress,
	} {
		res, err := env.svc.UpdateStatus(ctx, ports.UpdateStatusInput{
			WorkerID: "driver-1", TripID: tr.ID, Target: target,
		})
		if err != nil {
			t.Fatalf("advance to %s failed: %v", target, err)
		}
		if res.State != target.String() {
			t.Fatalf("expected %s, got %s", target, res.State)
		}
	}
}

func TestUpdateStatusRejectsSkippedState(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)

	// accepted -> in_progress skips two states
	_, err := env.svc.UpdateStatus(context.Background(), ports.UpdateStatusInput{
		WorkerID: "driver-1", TripID: tr.ID, Target: trip.StateInProgress,
	})
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestUpdateStatusRejectsNonWorkerTargets(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)

	for _, target := range []trip.State{trip.StateCompleted, trip.StateCancelled, trip.StatePending} {
		_, err := env.svc.UpdateStatus(context.Background(), ports.UpdateStatusInput{
			WorkerID: "driver-1", TripID: tr.ID, Target: target,
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("target %s: expected ErrValidation, got %v", target, err)
		}
	}
}

func TestUpdateStatusByWrongWorker(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	env.seedWorker("driver-2", worker.KindDriver, true, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)

	_, err := env.svc.UpdateStatus(context.Background(), ports.UpdateStatusInput{
		WorkerID: "driver-2", TripID: tr.ID, Target: trip.StateEnRoutePickup,
	})
	if !errors.Is(err, ErrWorkerNotEligible) {
		t.Fatalf("expected ErrWorkerNotEligible, got %v", err)
	}
}

func inProgressTrip(t *testing.T, env *testEnv, fare *float64) *trip.Trip {
	t.Helper()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)
	if fare != nil {
		env.trips.mu.Lock()
		f := *fare
		env.trips.rows[tr.ID].Fare = &f
		env.trips.mu.Unlock()
	}
	ctx := context.Background()
	for _, step := range []struct{ from, to trip.State }{
		{trip.StateAccepted, trip.StateEnRoutePickup},
		{trip.StateEnRoutePickup, trip.StateArrivedPickup},
		{trip.StateArrivedPickup, trip.StateInProgress},
	} {
		if err := env.trips.Advance(ctx, tr.ID, step.from, step.to, time.Now().UTC()); err != nil {
			t.Fatal(err)
		}
	}
	return tr
}

func TestCompleteUsesAgreedFare(t *testing.T) {
	env := newTestEnv()
	agreed := 4200.0
	tr := inProgressTrip(t, env, &agreed)

	res, err := env.svc.CompleteTrip(context.Background(), ports.CompleteTripInput{
		WorkerID: "driver-1", TripID: tr.ID, ActualDistanceKM: 2.0,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if res.FinalFare != 4200 {
		t.Fatalf("agreed fare should win: got %f", res.FinalFare)
	}
	if res.State != trip.StateCompleted.String() {
		t.Fatalf("expected completed, got %s", res.State)
	}
}

func TestCompleteFallsBackToDistanceFare(t *testing.T) {
	env := newTestEnv()
	tr := inProgressTrip(t, env, nil)

	res, err := env.svc.CompleteTrip(context.Background(), ports.CompleteTripInput{
		WorkerID: "driver-1", TripID: tr.ID, ActualDistanceKM: 10.0,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	// ride fallback: 250 XOF/km
	if res.FinalFare != 2500 {
		t.Fatalf("expected 2500, got %f", res.FinalFare)
	}

	// worker counters bump and availability is restored
	w, err := env.workers.GetByID(context.Background(), "driver-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.TotalTrips != 1 || w.TotalEarnings != 2500 {
		t.Fatalf("counters not bumped: trips=%d earnings=%f", w.TotalTrips, w.TotalEarnings)
	}
	if !w.Available {
		t.Fatal("worker should rejoin the pool after completing")
	}
}

func TestCompleteShortTripHitsMinimumFare(t *testing.T) {
	env := newTestEnv()
	tr := inProgressTrip(t, env, nil)

	res, err := env.svc.CompleteTrip(context.Background(), ports.CompleteTripInput{
		WorkerID: "driver-1", TripID: tr.ID, ActualDistanceKM: 0.8,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalFare != 1000 {
		t.Fatalf("expected the 1000 XOF ride minimum, got %f", res.FinalFare)
	}
}

func TestCompleteRequiresInProgress(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)
	tr := env.seedAcceptedTrip("client-1", "driver-1", trip.KindRide)

	_, err := env.svc.CompleteTrip(context.Background(), ports.CompleteTripInput{
		WorkerID: "driver-1", TripID: tr.ID, ActualDistanceKM: 5,
	})
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
}

func TestCompleteRejectsNegativeDistance(t *testing.T) {
	env := newTestEnv()
	tr := inProgressTrip(t, env, nil)

	_, err := env.svc.CompleteTrip(context.Background(), ports.CompleteTripInput{
		WorkerID: "driver-1", TripID: tr.ID, ActualDistanceKM: -1,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSetWorkerAvailability(t *testing.T) {
	env := newTestEnv()
	env.seedWorker("driver-1", worker.KindDriver, false, true)

	res, err := env.svc.SetWorkerAvailability(context.Background(), "driver-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Available {
		t.Fatalf("unexpected result: %+v", res)
	}
	w, _ := env.workers.GetByID(context.Background(), "driver-1")
	if !w.Available {
		t.Fatal("availability not persisted")
	}

	if _, err := env.svc.SetWorkerAvailability(context.Background(), "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
