package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/domain/schedule"
	"github.com/medbook/medbook/internal/platform/db"
)

// Notifier is invoked after successful state changes with the full
// appointment context. Delivery is fire-and-forget: implementations log
// their own failures and never propagate them into the booking outcome.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a *Appointment)
	AppointmentRescheduled(ctx context.Context, a *Appointment)
	AppointmentCancelled(ctx context.Context, a *Appointment)
}

// Metrics records booking outcomes. Satisfied by the telemetry provider.
type Metrics interface {
	BookingOutcome(outcome string)
}

type noopNotifier struct{}

func (noopNotifier) AppointmentBooked(context.Context, *Appointment)      {}
func (noopNotifier) AppointmentRescheduled(context.Context, *Appointment) {}
func (noopNotifier) AppointmentCancelled(context.Context, *Appointment)   {}

type noopMetrics struct{}

func (noopMetrics) BookingOutcome(string) {}

// Service owns every write to the appointment table. Booking and
// rescheduling re-validate the full precondition set inside one store
// transaction, so between the last check and the insert no concurrent
// transaction can commit a conflicting appointment for the same doctor.
type Service struct {
	appts      AppointmentRepository
	weekly     schedule.WeeklyRepository
	exceptions schedule.ExceptionRepository
	directory  DoctorDirectory
	tx         TxRunner
	notifier   Notifier
	metrics    Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(appts AppointmentRepository, weekly schedule.WeeklyRepository, exceptions schedule.ExceptionRepository, directory DoctorDirectory, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		appts:      appts,
		weekly:     weekly,
		exceptions: exceptions,
		directory:  directory,
		tx:         tx,
		notifier:   noopNotifier{},
		metrics:    noopMetrics{},
		logger:     logger,
		now:        time.Now,
	}
}

// WithNotifier sets the notification collaborator.
func (s *Service) WithNotifier(n Notifier) *Service {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithMetrics sets the outcome recorder.
func (s *Service) WithMetrics(m Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Book validates and commits a new appointment. Preconditions are checked in
// order, first failure wins: valid interval, not in the past, interval fully
// inside a working template entry, no exception intersects it, no blocking
// appointment overlaps it. All checks plus the insert run in one atomic unit.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrInvalidInterval
	}
	if req.StartTime.Before(s.now()) {
		return nil, ErrPastStart
	}

	loc, err := s.doctorLocation(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPatientAndService(ctx, req.PatientID, req.ServiceID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		ServiceID: req.ServiceID,
		Status:    req.Status,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkInterval(ctx, req.DoctorID, req.StartTime, req.EndTime, loc, uuid.Nil); err != nil {
			return err
		}
		return s.appts.Create(ctx, appt)
	})
	if err != nil {
		return nil, s.bookingFailure(err)
	}

	s.metrics.BookingOutcome("booked")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", appt.PatientID.String()).
		Time("start", appt.StartTime).
		Time("end", appt.EndTime).
		Str("status", string(appt.Status)).
		Msg("appointment booked")

	go s.notifier.AppointmentBooked(context.WithoutCancel(ctx), appt)
	return appt, nil
}

// Reschedule moves an appointment to a new interval (and optionally a new
// doctor). The full precondition set runs again with the moved appointment
// excluded from the overlap check; on any failure the original appointment
// is untouched.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrInvalidInterval
	}
	if req.StartTime.Before(s.now()) {
		return nil, ErrPastStart
	}

	appt, err := s.appts.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, &ConflictError{
			Reason: ReasonInvalidTransition,
			Detail: fmt.Sprintf("cannot reschedule a %s appointment", appt.Status),
		}
	}

	doctorID := appt.DoctorID
	if req.DoctorID != nil {
		doctorID = *req.DoctorID
	}
	loc, err := s.doctorLocation(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkInterval(ctx, doctorID, req.StartTime, req.EndTime, loc, appt.ID); err != nil {
			return err
		}
		return s.appts.UpdateInterval(ctx, appt.ID, doctorID, req.StartTime, req.EndTime)
	})
	if err != nil {
		return nil, s.bookingFailure(err)
	}

	appt.DoctorID = doctorID
	appt.StartTime = req.StartTime
	appt.EndTime = req.EndTime

	s.metrics.BookingOutcome("rescheduled")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("start", req.StartTime).
		Time("end", req.EndTime).
		Msg("appointment rescheduled")

	go s.notifier.AppointmentRescheduled(context.WithoutCancel(ctx), appt)
	return appt, nil
}

// Cancel moves an appointment to cancelled and frees its range immediately.
// Cancelling an already-cancelled appointment is an explicit rejection, not
// a silent second side effect.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if !appt.Status.CanTransition(StatusCancelled) {
		return nil, &ConflictError{
			Reason: ReasonInvalidTransition,
			Detail: fmt.Sprintf("cannot cancel a %s appointment", appt.Status),
		}
	}

	if err := s.appts.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	appt.Status = StatusCancelled

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Msg("appointment cancelled")

	go s.notifier.AppointmentCancelled(context.WithoutCancel(ctx), appt)
	return appt, nil
}

// Transition applies a status change through the central state machine.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, next Status) (*Appointment, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("invalid status %q", next)
	}
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(next) {
		return nil, &ConflictError{
			Reason: ReasonInvalidTransition,
			Detail: fmt.Sprintf("cannot move a %s appointment to %s", appt.Status, next),
		}
	}
	if err := s.appts.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}
	appt.Status = next
	return appt, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusConfirmed)
}

// Complete marks a confirmed appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCompleted)
}

// MarkNoShow marks a confirmed appointment as a no-show, freeing its range.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, StatusNoShow)
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// ListByDoctor returns a doctor's appointments, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByDoctor(ctx, doctorID, limit, offset)
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByPatient(ctx, patientID, limit, offset)
}

// checkInterval runs the working-hours, exception and overlap checks for
// [start, end) on the doctor's calendar. It must run inside the booking
// transaction so its reads are part of the atomic unit.
func (s *Service) checkInterval(ctx context.Context, doctorID uuid.UUID, start, end time.Time, loc *time.Location, excludeID uuid.UUID) error {
	localStart := start.In(loc)
	day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)

	// The doctor must be scheduled to work the entire requested interval,
	// not just overlap it.
	entries, err := s.weekly.ListEffective(ctx, doctorID, day.Weekday(), day)
	if err != nil {
		return err
	}
	covered := false
	for _, w := range entries {
		if !w.IsAvailable {
			continue
		}
		entryStart, err := schedule.OnDate(w.StartTime, day, loc)
		if err != nil {
			return err
		}
		entryEnd, err := schedule.OnDate(w.EndTime, day, loc)
		if err != nil {
			return err
		}
		if !start.Before(entryStart) && !end.After(entryEnd) {
			covered = true
			break
		}
	}
	if !covered {
		return &ConflictError{Reason: ReasonOutsideWorkingHours, Start: start, End: end}
	}

	exceptions, err := s.exceptions.ListOnDate(ctx, doctorID, day)
	if err != nil {
		return err
	}
	for _, e := range exceptions {
		if e.IsFullDay {
			return &ConflictError{Reason: ReasonExceptionConflict, Start: day, End: day.AddDate(0, 0, 1)}
		}
		excStart, err := schedule.OnDate(*e.StartTime, day, loc)
		if err != nil {
			return err
		}
		excEnd, err := schedule.OnDate(*e.EndTime, day, loc)
		if err != nil {
			return err
		}
		if excStart.Before(end) && start.Before(excEnd) {
			return &ConflictError{Reason: ReasonExceptionConflict, Start: excStart, End: excEnd}
		}
	}

	overlapping, err := s.appts.ListOverlapping(ctx, doctorID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		first := overlapping[0]
		return &ConflictError{Reason: ReasonAppointmentConflict, Start: first.StartTime, End: first.EndTime}
	}
	return nil
}

func (s *Service) doctorLocation(ctx context.Context, doctorID uuid.UUID) (*time.Location, error) {
	loc, err := s.directory.DoctorTimeZone(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor %s: %w", doctorID, ErrNotFound)
	}
	return loc, nil
}

func (s *Service) checkPatientAndService(ctx context.Context, patientID, serviceID uuid.UUID) error {
	exists, err := s.directory.PatientExists(ctx, patientID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("patient %s: %w", patientID, ErrNotFound)
	}
	if _, err := s.directory.ServiceDuration(ctx, serviceID); err != nil {
		return fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	return nil
}

// bookingFailure classifies a failed transaction: a store-level concurrency
// failure surfaces as the retryable ErrTransient, everything else passes
// through as the precondition error the check produced.
func (s *Service) bookingFailure(err error) error {
	if db.IsTxConflict(err) {
		s.metrics.BookingOutcome("transient")
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if IsConflict(err) {
		s.metrics.BookingOutcome("conflict")
	}
	return err
}
