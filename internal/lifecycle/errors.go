package lifecycle

import (
	"errors"
	"fmt"

	"orderFulfillmentTracking/models"
)

// ErrConcurrentConflict reports a lost compare-and-set race: another actor
// advanced the status between read and write. The caller must re-read the
// order and decide whether to retry or surface the conflict.
var ErrConcurrentConflict = errors.New("order status changed concurrently")

// ErrOrderNotFound reports a transition request against an unknown order.
var ErrOrderNotFound = errors.New("order not found")

// IllegalTransitionError reports a requested edge that is not in the
// transition table. The order is left untouched.
type IllegalTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// ValidationError reports missing or malformed transition metadata. The
// order is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transition metadata: %s %s", e.Field, e.Reason)
}
