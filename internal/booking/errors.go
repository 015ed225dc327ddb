package booking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotTaken               = errors.New("slot is already booked")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

type Reason string

const (
	ReasonMissing     Reason = "missing"
	ReasonMalformed   Reason = "malformed"
	ReasonUnsupported Reason = "unsupported"
	ReasonNotInGrid   Reason = "not_in_grid"
)

// ValidationError is a user-correctable problem with one request field.
type ValidationError struct {
	Field  string
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return fmt.Sprintf("%s is required", e.Field)
	case ReasonNotInGrid:
		return fmt.Sprintf("%s %s is not a bookable slot", e.Field, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: ReasonMissing}
}

func malformed(field, detail string) error {
	return &ValidationError{Field: field, Reason: ReasonMalformed, Detail: detail}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
