package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInvalidPrice    = fmt.Errorf("%w: invalid price", ErrInvalidInput)
	ErrStartInPast     = fmt.Errorf("%w: start in past", ErrInvalidInput)
	ErrStartTooFar     = fmt.Errorf("%w: start too far", ErrInvalidInput)
	ErrBookingConflict = fmt.Errorf("%w: booking id already used", ErrConflict)
	ErrNoPaidPayment   = fmt.Errorf("%w: no paid payment record", ErrConflict)
)

// SlotUnavailableError reports a hold attempt against a slot that is not
// effectively open, carrying the status the caller observed so the UI can
// offer another time.
type SlotUnavailableError struct {
	Status SlotStatus
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot not open: %s", e.Status)
}

func (e *SlotUnavailableError) Is(target error) bool {
	return target == ErrConflict
}
