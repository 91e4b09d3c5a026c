package contracts

import (
	"errors"
	"strings"
)

// Exchanges
const (
	ExchangeTripTopic = "trip_topic"
)

// Queues
const (
	QueueTripStatus = "trip_status"
)

// Routing patterns
const (
	RouteTripStatusPrefix = "trip.status." // {state}
)

// ActorKind identifies one of the three actor populations on the realtime
// channel. Workers come in two kinds; clients are the third.
type ActorKind string

const (
	ActorDriver   ActorKind = "driver"
	ActorDelivery ActorKind = "delivery"
	ActorClient   ActorKind = "client"
)

var ErrInvalidActorKind = errors.New("invalid actor kind")

// ParseActorKind normalizes (lowercases+trims) and validates an actor kind string.
func ParseActorKind(in string) (ActorKind, error) {
	k := ActorKind(strings.ToLower(strings.TrimSpace(in)))
	if k.Valid() {
		return k, nil
	}
	return "", ErrInvalidActorKind
}

// Valid reports whether k is one of the allowed actor kind constants.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorDriver, ActorDelivery, ActorClient:
		return true
	default:
		return false
	}
}

// Worker reports whether the kind is a fulfilling worker (not a client).
func (k ActorKind) Worker() bool {
	return k == ActorDriver || k == ActorDelivery
}

// String returns the string representation of the ActorKind.
func (k ActorKind) String() string {
	return string(k)
}
