package booking

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for booking failures. Only ErrTransient is retryable;
// conflicts are reported through ConflictError so callers also get the
// offending range.
var (
	// ErrInvalidInterval covers end <= start.
	ErrInvalidInterval = errors.New("end time must be after start time")
	// ErrPastStart covers a start before the transaction's observed clock.
	ErrPastStart = errors.New("start time is in the past")
	// ErrNotFound covers a missing doctor, patient, service or appointment.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a store-level concurrency failure. The booking did
	// not happen and the caller may safely retry.
	ErrTransient = errors.New("transient store error, retry")
	// ErrAlreadyCancelled is returned when cancelling a cancelled appointment.
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
)

// ConflictReason distinguishes why a requested interval cannot be booked.
type ConflictReason string

const (
	// ReasonOutsideWorkingHours: no weekly template entry covers the whole
	// requested interval on that calendar day.
	ReasonOutsideWorkingHours ConflictReason = "outside_working_hours"
	// ReasonExceptionConflict: a full-day or partial exception intersects the
	// requested interval.
	ReasonExceptionConflict ConflictReason = "exception_conflict"
	// ReasonAppointmentConflict: a non-cancelled appointment overlaps the
	// requested interval.
	ReasonAppointmentConflict ConflictReason = "appointment_conflict"
	// ReasonInvalidTransition: the requested status change is not allowed by
	// the state machine.
	ReasonInvalidTransition ConflictReason = "invalid_transition"
)

// ConflictError reports a rejected booking together with the offending range,
// so the caller can re-query availability instead of guessing.
type ConflictError struct {
	Reason ConflictReason `json:"reason"`
	Start  time.Time      `json:"start,omitempty"`
	End    time.Time      `json:"end,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	if !e.Start.IsZero() {
		return fmt.Sprintf("%s: conflicting range %s - %s", e.Reason,
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return string(e.Reason)
}

// IsConflict reports whether err is a booking conflict, optionally matching
// specific reasons.
func IsConflict(err error, reasons ...ConflictReason) bool {
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return false
	}
	if len(reasons) == 0 {
		return true
	}
	for _, r := range reasons {
		if conflict.Reason == r {
			return true
		}
	}
	return false
}
