// Package ticket holds the queue rules shared by the server and its clients:
// display numbering, next-ticket selection, lifecycle transitions and the
// statistics derived from ticket timestamps.
package ticket

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad or missing caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidType is returned for a ticket type outside the closed set.
	ErrInvalidType = fmt.Errorf("%w: invalid ticket type", ErrValidation)
	// ErrInvalidStatus is returned for an unknown or non-target status.
	ErrInvalidStatus = fmt.Errorf("%w: invalid ticket status", ErrValidation)
	// ErrCounterRequired is returned when a call omits the service point.
	ErrCounterRequired = fmt.Errorf("%w: counter is required", ErrValidation)
	// ErrInvalidTransition is returned when a status change would skip or
	// reverse the WAITING→CALLED→FINISHED order.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPermissionDenied is returned when the tenant's permission flag for
	// the operation is off.
	ErrPermissionDenied = errors.New("permission denied")
)
