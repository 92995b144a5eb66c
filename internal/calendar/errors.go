package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCalendar means the property has no external calendar configured.
	ErrNoCalendar = errors.New("property has no calendar")
	// ErrPropertyNotFound means no property matches the given reference.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrBookingNotFound means no booking matches the given reference.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrMalformedEvent means a provider event failed shape validation.
	ErrMalformedEvent = errors.New("malformed event")
)

// FatalError is returned once a recoverable condition has exhausted its
// bounded retries. Callers report it and move on; retrying is pointless.
type FatalError struct {
	Op         string
	PropertyID string
	Attempts   int
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s for property %s failed after %d attempts: %v", e.Op, e.PropertyID, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ErrExternalBooking means a projection was requested for a booking that
// came from the provider; it already has its event.
var ErrExternalBooking = errors.New("booking is externally sourced")
