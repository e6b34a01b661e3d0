package withdrawal

import ledgererrors "partnerledger/core/errors"

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusCompleted},
}

// ValidateTransition ensures the move follows the withdrawal state machine.
// COMPLETED and REJECTED are terminal.
func ValidateTransition(id string, current, next Status) error {
	for _, state := range allowedTransitions[current] {
		if state == next {
			return nil
		}
	}
	return &ledgererrors.InvalidStateTransitionError{
		Entity: "withdrawal",
		ID:     id,
		From:   string(current),
		To:     string(next),
	}
}

// IsOpen reports whether the request still holds funds.
func IsOpen(status Status) bool {
	for _, s := range OpenStatuses {
		if s == status {
			return true
		}
	}
	return false
}
