package trip

import (
	"errors"
	"strings"
)

// Kind distinguishes ride trips from package deliveries.
type Kind string

const (
	KindRide     Kind = "ride"
	KindDelivery Kind = "delivery"
)

var ErrInvalidKind = errors.New("invalid trip kind")

// ParseKind normalizes (lowercases+trims) and validates a kind string.
func ParseKind(in string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(in)))
	if kind.Valid() {
		return kind, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether kind is one of the allowed trip kind constants.
func (kind Kind) Valid() bool {
	switch kind {
	case KindRide, KindDelivery:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Kind.
func (kind Kind) String() string {
	return string(kind)
}
