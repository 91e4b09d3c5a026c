package trip

import (
	"errors"
	"testing"
)

func newPendingTrip(t *testing.T) *Trip {
	t.Helper()
	tr, err := NewTrip("TRIP_20260831_abc123", "client-1", KindRide, PaymentCash,
		"Plateau, Dakar", 14.6671, -17.4331, "Almadies, Dakar", 14.7447, -17.5097)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestNewTripDefaults(t *testing.T) {
	tr := newPendingTrip(t)

	if tr.State != StatePending {
		t.Fatalf("new trip should be pending, got %s", tr.State)
	}
	if tr.WorkerID != nil {
		t.Fatal("new trip should have no worker")
	}
	if tr.Currency != "XOF" {
		t.Fatalf("expected XOF, got %s", tr.Currency)
	}
	if tr.RequestedAt.IsZero() {
		t.Fatal("requested_at not stamped")
	}
}

func TestNewTripValidation(t *testing.T) {
	cases := []struct {
		name    string
		tripNum string
		client  string
		kind    Kind
		pm      PaymentMethod
		pickup  string
		dropoff string
		want    error
	}{
		{"missing trip number", "", "c", KindRide, PaymentCash, "a", "b", ErrTripNumberRequired},
		{"missing client", "T1", "  ", KindRide, PaymentCash, "a", "b", ErrClientRequired},
		{"bad kind", "T1", "c", "horse", PaymentCash, "a", "b", ErrInvalidKind},
		{"bad payment", "T1", "c", KindRide, "IOU", "a", "b", ErrInvalidPaymentMethod},
		{"missing pickup", "T1", "c", KindRide, PaymentCash, "", "b", ErrAddressRequired},
		{"missing dropoff", "T1", "c", KindRide, PaymentCash, "a", " ", ErrAddressRequired},
	}

	for _, tc := range cases {
		_, err := NewTrip(tc.tripNum, tc.client, tc.kind, tc.pm, tc.pickup, 0, 0, tc.dropoff, 0, 0)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAcceptAndAdvance(t *testing.T) {
	tr := newPendingTrip(t)

	if err := tr.Accept("driver-1"); err != nil {
		t.Fatal(err)
	}
	if tr.State != StateAccepted || !tr.AssignedTo("driver-1") {
		t.Fatalf("accept did not claim: %s %v", tr.State, tr.WorkerID)
	}
	if tr.AcceptedAt == nil {
		t.Fatal("accepted_at not stamped")
	}

	// a second accept must fail
	if err := tr.Accept("driver-2"); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}

	// forward walk through the full lifecycle
	for _, target := range []State{StateEnRoutePickup, StateArrivedPickup, StateInProgress, StateCompleted} {
		if err := tr.Advance("driver-1", target); err != nil {
			t.Fatalf("advance to %s: %v", target, err)
		}
	}
	if tr.CompletedAt == nil || tr.StartedAt == nil || tr.ArrivedPickupAt == nil {
		t.Fatal("timeline stamps missing")
	}
}

func TestAdvanceRejectsSkipsAndStrangers(t *testing.T) {
	tr := newPendingTrip(t)
	if err := tr.Accept("driver-1"); err != nil {
		t.Fatal(err)
	}

	if err := tr.Advance("driver-1", StateInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skipping states should fail, got %v", err)
	}
	if err := tr.Advance("driver-2", StateEnRoutePickup); !errors.Is(err, ErrNotAssignedWorker) {
		t.Fatalf("stranger advance should fail, got %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	tr := newPendingTrip(t)
	if err := tr.Cancel("changed my mind"); err != nil {
		t.Fatalf("pending trip should cancel: %v", err)
	}
	if tr.State != StateCancelled || tr.CancelledAt == nil {
		t.Fatalf("cancel incomplete: %+v", tr)
	}
	if tr.CancellationReason == nil || *tr.CancellationReason != "changed my mind" {
		t.Fatalf("reason lost: %v", tr.CancellationReason)
	}

	// in-progress trips cannot be cancelled
	tr2 := newPendingTrip(t)
	_ = tr2.Accept("driver-1")
	_ = tr2.Advance("driver-1", StateEnRoutePickup)
	_ = tr2.Advance("driver-1", StateArrivedPickup)
	_ = tr2.Advance("driver-1", StateInProgress)
	if err := tr2.Cancel("too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("in-progress cancel should fail, got %v", err)
	}
}

func TestReopenClearsAssignment(t *testing.T) {
	tr := newPendingTrip(t)
	_ = tr.Accept("driver-1")

	if err := tr.Reopen(); err != nil {
		t.Fatal(err)
	}
	if tr.State != StatePending || tr.WorkerID != nil || tr.AcceptedAt != nil {
		t.Fatalf("reopen incomplete: %+v", tr)
	}

	// a reopened trip can be claimed again
	if err := tr.Accept("driver-2"); err != nil {
		t.Fatalf("re-accept after reopen failed: %v", err)
	}
}

func TestReopenOnlyBeforePickup(t *testing.T) {
	tr := newPendingTrip(t)
	_ = tr.Accept("driver-1")
	_ = tr.Advance("driver-1", StateEnRoutePickup)
	_ = tr.Advance("driver-1", StateArrivedPickup)
	_ = tr.Advance("driver-1", StateInProgress)

	if err := tr.Reopen(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("in-progress reopen should fail, got %v", err)
	}
}

func TestStateMachineHelpers(t *testing.T) {
	if succ, ok := StatePending.Successor(); !ok || succ != StateAccepted {
		t.Fatalf("pending successor: %s %v", succ, ok)
	}
	if _, ok := StateCompleted.Successor(); ok {
		t.Fatal("completed has no successor")
	}
	if !StateArrivedPickup.Cancellable() {
		t.Fatal("arrived_pickup should be cancellable")
	}
	if StateInProgress.Cancellable() {
		t.Fatal("in_progress must not be cancellable")
	}
	if !StateCompleted.Terminal() || !StateCancelled.Terminal() {
		t.Fatal("terminal states misreported")
	}
	if StatePending.Assigned() || !StateAccepted.Assigned() {
		t.Fatal("assignment invariant misreported")
	}
	if !StateAccepted.CanTransitionTo(StateCancelled) {
		t.Fatal("accepted should allow cancellation")
	}
	if StateAccepted.CanTransitionTo(StateInProgress) {
		t.Fatal("skips must be rejected")
	}
}

func TestParseState(t *testing.T) {
	if s, err := ParseState("  En_Route_Pickup "); err != nil || s != StateEnRoutePickup {
		t.Fatalf("parse failed: %s %v", s, err)
	}
	if _, err := ParseState("flying"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestFallbackFare(t *testing.T) {
	cases := []struct {
		kind Kind
		km   float64
		want float64
	}{
		{KindRide, 10, 2500},
		{KindRide, 1, 1000},  // minimum kicks in
		{KindRide, 0, 1000},  // zero distance still pays the minimum
		{KindRide, -5, 1000}, // negative clamped
		{KindDelivery, 10, 2000},
		{KindDelivery, 2, 750}, // delivery minimum
	}
	for _, tc := range cases {
		if got := FallbackFare(tc.kind, tc.km); got != tc.want {
			t.Errorf("FallbackFare(%s, %v) = %v, want %v", tc.kind, tc.km, got, tc.want)
		}
	}
}
