package rabbitmq

import (
	"fmt"

	"trip-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	if err := ch.ExchangeDeclare(contracts.ExchangeTripTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.ExchangeTripTopic, err)
	}

	// 2. Queues
	if _, err := ch.QueueDeclare(contracts.QueueTripStatus, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.QueueTripStatus, err)
	}

	// 3. Bindings: every trip.status.{state} message lands in the status queue
	if err := ch.QueueBind(contracts.QueueTripStatus, contracts.RouteTripStatusPrefix+"*", contracts.ExchangeTripTopic, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", contracts.QueueTripStatus, contracts.ExchangeTripTopic, err)
	}

	return nil
}
