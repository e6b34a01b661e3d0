package commission

import (
	ledgererrors "partnerledger/core/errors"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusPaid, StatusCancelled},
}

// ValidateTransition ensures the move follows the commission state machine.
// PAID and CANCELLED are terminal.
func ValidateTransition(id string, current, next Status) error {
	for _, state := range allowedTransitions[current] {
		if state == next {
			return nil
		}
	}
	return &ledgererrors.InvalidStateTransitionError{
		Entity: "commission",
		ID:     id,
		From:   string(current),
		To:     string(next),
	}
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(status Status) bool {
	_, ok := allowedTransitions[status]
	return !ok
}
