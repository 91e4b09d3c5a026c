package worker

import (
	"errors"
	"strings"
)

// Kind is the worker category: taxi drivers fulfill rides, delivery agents
// fulfill deliveries.
type Kind string

const (
	KindDriver   Kind = "driver"
	KindDelivery Kind = "delivery"
)

var ErrInvalidKind = errors.New("invalid worker kind")

// ParseKind normalizes (lowercases+trims) and validates a kind string.
func ParseKind(in string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(in)))
	if kind.Valid() {
		return kind, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether kind is one of the allowed worker kind constants.
func (kind Kind) Valid() bool {
	switch kind {
	case KindDriver, KindDelivery:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Kind.
func (kind Kind) String() string {
	return string(kind)
}
