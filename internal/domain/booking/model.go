// Package booking implements the availability and conflict-resolution engine:
// it resolves which intervals of a doctor's calendar are actually bookable
// once weekly templates, exceptions and existing appointments are overlaid,
// and commits new bookings atomically against that state.
package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of appointment states. Status changes go through
// CanTransition; no call site compares raw strings.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// transitions is the allowed state machine: pending -> confirmed|cancelled,
// confirmed -> cancelled|completed|no_show. Terminal states have no exits.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Blocks reports whether an appointment in this status occupies its time
// range. Cancelled and no-show appointments free their range immediately.
func (s Status) Blocks() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table. Start/End are absolute instants;
// the half-open interval [Start, End) is what occupies the doctor's calendar.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	ServiceID uuid.UUID `db:"service_id" json:"service_id"`
	Status    Status    `db:"status" json:"status"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the appointment's interval intersects
// [start, end). Two intervals conflict unless one ends at or before the
// other begins.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

// BookingRequest is the input to Service.Book.
type BookingRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	ServiceID uuid.UUID `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// Status is the requested creation status: pending or confirmed.
	// Empty defaults to confirmed.
	Status Status  `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

func (r *BookingRequest) validate() error {
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.ServiceID == uuid.Nil {
		return fmt.Errorf("service_id is required")
	}
	if r.Status == "" {
		r.Status = StatusConfirmed
	}
	if r.Status != StatusPending && r.Status != StatusConfirmed {
		return fmt.Errorf("appointments are created as pending or confirmed, not %q", r.Status)
	}
	return nil
}

// RescheduleRequest is the input to Service.Reschedule. A nil DoctorID keeps
// the appointment with its current doctor.
type RescheduleRequest struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
}
