package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"trip-dispatch/internal/domain/geo"
	"trip-dispatch/internal/domain/trip"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/ports"

	"github.com/google/uuid"
)

// generateTripNumber produces a human-quotable trip number like
// TRIP_20260831_a1b2c3d4.
func generateTripNumber() string {
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("TRIP_%s_%s", time.Now().UTC().Format("20060102"), short)
}

// envelope stamps the common message headers.
func (s *Service) envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}

// publishTripStatus emits trip.status.{state} on the trip topic. Broker
// trouble is logged, never propagated: lifecycle publication is advisory.
func (s *Service) publishTripStatus(ctx context.Context, t *trip.Trip) {
	msg := contracts.TripStatusMessage{
		TripID:    t.ID,
		State:     t.State.String(),
		Timestamp: time.Now().UTC(),
		Envelope:  s.envelope(),
	}
	if t.WorkerID != nil {
		msg.WorkerID = *t.WorkerID
	}
	if t.State == trip.StateCompleted {
		msg.FinalFare = t.Fare
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, "trip_status_encode_failed", "Failed to encode trip status message", err, nil)
		return
	}

	routingKey := contracts.RouteTripStatusPrefix + t.State.String()
	if err := s.publisher.Publish(contracts.ExchangeTripTopic, routingKey, body); err != nil {
		s.logger.Error(ctx, "trip_status_publish_failed", "Failed to publish trip status", err, map[string]any{
			"routing_key": routingKey,
		})
		return
	}

	s.logger.Info(ctx, "trip_status_published", "Published trip status", map[string]any{
		"routing_key": routingKey,
		"state":       t.State.String(),
	})
}

// routeDistanceKM sums leg distances pickup -> stops (in order) -> dropoff.
func routeDistanceKM(in ports.SubmitTripInput) float64 {
	lat, lng := in.PickupLat, in.PickupLng
	total := 0.0
	for _, st := range in.Stops {
		total += geo.HaversineKM(lat, lng, st.Lat, st.Lng)
		lat, lng = st.Lat, st.Lng
	}
	total += geo.HaversineKM(lat, lng, in.DropoffLat, in.DropoffLng)
	return math.Round(total*100) / 100
}
