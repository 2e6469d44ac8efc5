package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// ErrInvalidStatus is returned when a status value is outside the enumerated
// set, or when the requested transition is not allowed from the current state.
var ErrInvalidStatus = errors.New("invalid order status")

// transitions enumerates the allowed next states. Delivered and Cancelled are
// terminal: fulfillment commits inventory permanently, and cancelled orders
// stay cancelled.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ParseStatus validates a raw status string against the enumerated set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", errors.Wrapf(ErrInvalidStatus, "unknown status %q", raw)
	}
	return s, nil
}

// CanTransitionTo reports whether moving from s to target is a legal
// transition. Self-transitions are not listed here; the service treats them
// as idempotent no-ops before consulting this table.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError indicates a target status that exists but is not
// reachable from the order's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Unwrap lets callers match the error against ErrInvalidStatus.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStatus
}
