package trip

import (
	"errors"
	"strings"
)

// State is a trip lifecycle state as stored in the `trips` table.
type State string

const (
	StatePending       State = "pending"
	StateAccepted      State = "accepted"
	StateEnRoutePickup State = "en_route_pickup"
	StateArrivedPickup State = "arrived_pickup"
	StateInProgress    State = "in_progress"
	StateCompleted     State = "completed"
	StateCancelled     State = "cancelled"
)

var ErrInvalidState = errors.New("invalid trip state")

// ParseState normalizes (lowercases+trims) and validates a state string.
func ParseState(in string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(in)))
	if state.Valid() {
		return state, nil
	}
	return "", ErrInvalidState
}

// Valid reports whether state is one of the allowed trip state constants.
func (state State) Valid() bool {
	switch state {
	case StatePending, StateAccepted, StateEnRoutePickup, StateArrivedPickup,
		StateInProgress, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the State.
func (state State) String() string {
	return string(state)
}

// Successor returns the forward transition target for the state machine.
// Each forward step must go through its exact predecessor; no skipping.
func (state State) Successor() (State, bool) {
	switch state {
	case StatePending:
		return StateAccepted, true
	case StateAccepted:
		return StateEnRoutePickup, true
	case StateEnRoutePickup:
		return StateArrivedPickup, true
	case StateArrivedPickup:
		return StateInProgress, true
	case StateInProgress:
		return StateCompleted, true
	default:
		return "", false
	}
}

// CanTransitionTo specifies whether the state can move to the next state.
func (state State) CanTransitionTo(next State) bool {
	if succ, ok := state.Successor(); ok && next == succ {
		return true
	}
	if next == StateCancelled {
		return state.Cancellable()
	}
	return false
}

// Cancellable reports whether a trip in this state may still be cancelled.
// In-progress and terminal trips cannot be.
func (state State) Cancellable() bool {
	switch state {
	case StatePending, StateAccepted, StateEnRoutePickup, StateArrivedPickup:
		return true
	default:
		return false
	}
}

// Assigned reports whether a trip in this state must have a worker assigned.
func (state State) Assigned() bool {
	switch state {
	case StateAccepted, StateEnRoutePickup, StateArrivedPickup, StateInProgress, StateCompleted:
		return true
	default:
		return false
	}
}

// Terminal indicates whether the state is final.
func (state State) Terminal() bool {
	return state == StateCompleted || state == StateCancelled
}
