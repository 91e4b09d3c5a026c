package service

import (
	"context"
	"encoding/json"
	"time"

	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundConsumers drains the trip status queue and feeds the state
// counters. Blocks until ctx is cancelled; reconnect gaps are retried with a
// fixed delay since the underlying client re-establishes topology itself.
func (s *Service) RunBackgroundConsumers(ctx context.Context) {
	if s.mq == nil {
		s.logger.Info(ctx, "consumers_disabled", "No broker client; background consumers not started", nil)
		return
	}

	for {
		err := s.mq.Consume(ctx, contracts.QueueTripStatus, "dispatch-status-metrics", 16, s.onTripStatus)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error(ctx, "status_consumer_stopped", "Trip status consumer stopped; retrying", err, nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// onTripStatus handles one trip status delivery.
func (s *Service) onTripStatus(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.TripStatusMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		s.logger.Error(ctx, "status_decode_failed", "Dropping malformed trip status message", err, map[string]any{
			"routing_key": d.RoutingKey,
			"size":        len(d.Body),
		})
		return err
	}

	observability.TripStatusConsumed.WithLabelValues(msg.State).Inc()
	return nil
}
