package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a schedule entry or exception does not exist.
var ErrNotFound = errors.New("not found")

// ErrAppointmentsConflict is returned when a schedule edit would strand
// existing non-cancelled appointments. The edit is refused; appointments must
// be rescheduled or cancelled first.
type ErrAppointmentsConflict struct {
	Appointments []BookedInterval
}

func (e *ErrAppointmentsConflict) Error() string {
	return fmt.Sprintf("%d existing appointment(s) conflict with the schedule change", len(e.Appointments))
}

// BookedInterval is the slice of an appointment the schedule service needs
// to validate edits against.
type BookedInterval struct {
	ID    uuid.UUID `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AppointmentChecker reports booked, non-cancelled appointments. Implemented
// by the booking store; wired in at startup to keep the packages decoupled.
type AppointmentChecker interface {
	ListBlockingInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]BookedInterval, error)
}

// DoctorDirectory resolves a doctor's wall-clock time zone.
type DoctorDirectory interface {
	DoctorTimeZone(ctx context.Context, doctorID uuid.UUID) (*time.Location, error)
}

// TxRunner executes fn atomically against the store.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// editGuardHorizon bounds how far ahead schedule edits are validated against
// existing appointments. Bookings beyond it are not accepted anyway.
const editGuardHorizon = 2 * 365 * 24 * time.Hour

type Service struct {
	weekly     WeeklyRepository
	exceptions ExceptionRepository
	appts      AppointmentChecker
	directory  DoctorDirectory
	tx         TxRunner
	now        func() time.Time
}

func NewService(weekly WeeklyRepository, exceptions ExceptionRepository, appts AppointmentChecker, directory DoctorDirectory, tx TxRunner) *Service {
	return &Service{
		weekly:     weekly,
		exceptions: exceptions,
		appts:      appts,
		directory:  directory,
		tx:         tx,
		now:        time.Now,
	}
}

// ListWeekly returns the doctor's full weekly template.
func (s *Service) ListWeekly(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyEntry, error) {
	return s.weekly.ListByDoctor(ctx, doctorID)
}

// ReplaceWeeklyTemplate swaps the doctor's whole weekly template. The swap is
// refused if any future non-cancelled appointment would no longer be fully
// covered by an available entry of the new template.
func (s *Service) ReplaceWeeklyTemplate(ctx context.Context, doctorID uuid.UUID, entries []*WeeklyEntry) error {
	if doctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	for _, w := range entries {
		w.DoctorID = doctorID
		if err := w.Validate(); err != nil {
			return err
		}
	}

	loc, err := s.directory.DoctorTimeZone(ctx, doctorID)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		booked, err := s.appts.ListBlockingInRange(ctx, doctorID, now, now.Add(editGuardHorizon))
		if err != nil {
			return err
		}

		var stranded []BookedInterval
		for _, b := range booked {
			if !coveredByTemplate(entries, b, loc) {
				stranded = append(stranded, b)
			}
		}
		if len(stranded) > 0 {
			return &ErrAppointmentsConflict{Appointments: stranded}
		}

		return s.weekly.ReplaceForDoctor(ctx, doctorID, entries)
	})
}

// coveredByTemplate reports whether a booked interval lies entirely within a
// single available entry of the template, evaluated on the interval's
// calendar day in the doctor's time zone.
func coveredByTemplate(entries []*WeeklyEntry, b BookedInterval, loc *time.Location) bool {
	localStart := b.Start.In(loc)
	for _, w := range entries {
		if !w.IsAvailable || w.Weekday != localStart.Weekday() || !w.CoversDate(localStart) {
			continue
		}
		entryStart, err := OnDate(w.StartTime, localStart, loc)
		if err != nil {
			continue
		}
		entryEnd, err := OnDate(w.EndTime, localStart, loc)
		if err != nil {
			continue
		}
		if !b.Start.Before(entryStart) && !b.End.After(entryEnd) {
			return true
		}
	}
	return false
}

// ListExceptions returns the doctor's exceptions within [from, to].
func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Exception, error) {
	return s.exceptions.ListByDoctorDateRange(ctx, doctorID, from, to)
}

// CreateException records a one-off block. An exception that would cover an
// existing non-cancelled appointment is refused.
func (s *Service) CreateException(ctx context.Context, e *Exception) error {
	if err := e.Validate(); err != nil {
		return err
	}

	loc, err := s.directory.DoctorTimeZone(ctx, e.DoctorID)
	if err != nil {
		return err
	}

	blockStart, blockEnd, err := exceptionInterval(e, loc)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		booked, err := s.appts.ListBlockingInRange(ctx, e.DoctorID, blockStart, blockEnd)
		if err != nil {
			return err
		}
		if len(booked) > 0 {
			return &ErrAppointmentsConflict{Appointments: booked}
		}
		return s.exceptions.Create(ctx, e)
	})
}

// exceptionInterval materializes the exception's blocked period as absolute
// instants in the doctor's time zone. Full-day exceptions cover the whole
// calendar day.
func exceptionInterval(e *Exception, loc *time.Location) (time.Time, time.Time, error) {
	day := time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), 0, 0, 0, 0, loc)
	if e.IsFullDay {
		return day, day.AddDate(0, 0, 1), nil
	}
	start, err := OnDate(*e.StartTime, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := OnDate(*e.EndTime, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// DeleteException removes an exception. Deleting never strands appointments
// (it only ever widens availability), so no guard applies.
func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	if _, err := s.exceptions.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return s.exceptions.Delete(ctx, id)
}
