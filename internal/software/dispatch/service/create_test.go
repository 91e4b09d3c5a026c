package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/ports"
)

func validSubmitInput() ports.SubmitTripInput {
	return ports.SubmitTripInput{
		ClientID:       "client-1",
		Kind:           trip.KindRide,
		PaymentMethod:  trip.PaymentCash,
		PickupAddress:  "Plateau, Dakar",
		PickupLat:      14.6671,
		PickupLng:      -17.4331,
		DropoffAddress: "Almadies, Dakar",
		DropoffLat:     14.7447,
		DropoffLng:     -17.5097,
	}
}

func TestSubmitTripOpensSession(t *testing.T) {
	env := newTestEnv()

	res, err := env.svc.SubmitTrip(context.Background(), validSubmitInput())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.TripID == "" || res.SessionID == "" {
		t.Fatalf("missing ids in result: %+v", res)
	}
	if res.State != trip.StatePending.String() {
		t.Fatalf("new trip should be pending, got %s", res.State)
	}
	if !strings.HasPrefix(res.TripNumber, "TRIP_") {
		t.Fatalf("unexpected trip number %q", res.TripNumber)
	}
	if res.DistanceKM <= 0 || res.DurationMinutes <= 0 {
		t.Fatalf("route estimate missing: %+v", res)
	}
	if res.Currency != "XOF" {
		t.Fatalf("expected XOF, got %s", res.Currency)
	}

	stored, err := env.trips.GetByID(context.Background(), res.TripID)
	if err != nil {
		t.Fatalf("trip not persisted: %v", err)
	}
	if stored.State != trip.StatePending {
		t.Fatalf("persisted state %s", stored.State)
	}

	poll, err := env.svc.PollSession(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if poll.Status != SessionSearching || poll.TripID != res.TripID {
		t.Fatalf("unexpected poll result: %+v", poll)
	}

	// lifecycle publication for the pending state
	var published bool
	for _, key := range env.publisher.routingKeys() {
		if key == "trip.status.pending" {
			published = true
		}
	}
	if !published {
		t.Fatalf("trip.status.pending not published: %v", env.publisher.routingKeys())
	}
}

func TestSubmitTripWithStops(t *testing.T) {
	env := newTestEnv()

	in := validSubmitInput()
	in.Stops = []ports.StopInput{
		{Address: "Medina, Dakar", Lat: 14.6800, Lng: -17.4500},
		{Address: "Ouakam, Dakar", Lat: 14.7200, Lng: -17.4900},
	}

	res, err := env.svc.SubmitTrip(context.Background(), in)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	stops, err := env.stops.ListByTrip(context.Background(), res.TripID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(stops))
	}
	if stops[0].Seq != 0 || stops[1].Seq != 1 {
		t.Fatalf("stop order not preserved: %+v", stops)
	}

	// the multi-stop route is longer than the direct one
	direct, err := env.svc.SubmitTrip(context.Background(), validSubmitInput())
	if err != nil {
		t.Fatal(err)
	}
	if res.DistanceKM <= direct.DistanceKM {
		t.Fatalf("stops should add distance: %f vs %f", res.DistanceKM, direct.DistanceKM)
	}
}

func TestSubmitTripValidation(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name   string
		mutate func(*ports.SubmitTripInput)
	}{
		{"bad pickup lat", func(in *ports.SubmitTripInput) { in.PickupLat = 91 }},
		{"bad dropoff lng", func(in *ports.SubmitTripInput) { in.DropoffLng = -181 }},
		{"zero fare", func(in *ports.SubmitTripInput) { zero := 0.0; in.Fare = &zero }},
		{"negative fare", func(in *ports.SubmitTripInput) { f := -100.0; in.Fare = &f }},
		{"bad kind", func(in *ports.SubmitTripInput) { in.Kind = "horse" }},
		{"bad payment", func(in *ports.SubmitTripInput) { in.PaymentMethod = "IOU" }},
		{"empty client", func(in *ports.SubmitTripInput) { in.ClientID = "" }},
		{"stop without address", func(in *ports.SubmitTripInput) {
			in.Stops = []ports.StopInput{{Lat: 14.68, Lng: -17.45}}
		}},
		{"stop out of range", func(in *ports.SubmitTripInput) {
			in.Stops = []ports.StopInput{{Address: "x", Lat: 95, Lng: 0}}
		}},
	}

	for _, tc := range cases {
		in := validSubmitInput()
		tc.mutate(&in)
		if _, err := env.svc.SubmitTrip(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestSubmitTripKeepsAgreedFare(t *testing.T) {
	env := newTestEnv()

	in := validSubmitInput()
	fare := 3500.0
	in.Fare = &fare

	res, err := env.svc.SubmitTrip(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fare == nil || *res.Fare != 3500 {
		t.Fatalf("agreed fare lost: %v", res.Fare)
	}
}

func TestPollUnknownSession(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.PollSession(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
