package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medbook/medbook/internal/domain/schedule"
)

// Shared in-memory collaborators for the booking tests. The appointment
// store and transaction runner share one mutex, so RunInTx gives the same
// check-then-write atomicity the serializable store transaction gives in
// production and the concurrency tests exercise a real race.

type memWeeklyRepo struct {
	mu      sync.Mutex
	entries []*schedule.WeeklyEntry
}

func (r *memWeeklyRepo) Create(_ context.Context, w *schedule.WeeklyEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	r.entries = append(r.entries, w)
	return nil
}

func (r *memWeeklyRepo) GetByID(_ context.Context, id uuid.UUID) (*schedule.WeeklyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.entries {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memWeeklyRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*schedule.WeeklyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.WeeklyEntry
	for _, w := range r.entries {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memWeeklyRepo) ListEffective(_ context.Context, doctorID uuid.UUID, weekday time.Weekday, date time.Time) ([]*schedule.WeeklyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.WeeklyEntry
	for _, w := range r.entries {
		if w.DoctorID == doctorID && w.Weekday == weekday && w.CoversDate(date) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memWeeklyRepo) ReplaceForDoctor(_ context.Context, doctorID uuid.UUID, entries []*schedule.WeeklyEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, w := range r.entries {
		if w.DoctorID != doctorID {
			kept = append(kept, w)
		}
	}
	r.entries = kept
	for _, w := range entries {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		r.entries = append(r.entries, w)
	}
	return nil
}

func (r *memWeeklyRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.entries {
		if w.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

type memExceptionRepo struct {
	mu         sync.Mutex
	exceptions []*schedule.Exception
}

func (r *memExceptionRepo) Create(_ context.Context, e *schedule.Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.exceptions = append(r.exceptions, e)
	return nil
}

func (r *memExceptionRepo) GetByID(_ context.Context, id uuid.UUID) (*schedule.Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.exceptions {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memExceptionRepo) ListByDoctorDateRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*schedule.Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.Exception
	for _, e := range r.exceptions {
		if e.DoctorID == doctorID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memExceptionRepo) ListOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*schedule.Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*schedule.Exception
	for _, e := range r.exceptions {
		if e.DoctorID == doctorID && e.Date.Year() == date.Year() && e.Date.YearDay() == date.YearDay() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memExceptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.exceptions {
		if e.ID == id {
			r.exceptions = append(r.exceptions[:i], r.exceptions[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

// memApptStore pairs the appointment repository with a TxRunner over one
// mutex. Repository calls made inside RunInTx use the lock already held by
// the runner (tracked via context), everything outside locks per call.
type memApptStore struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func newMemApptStore() *memApptStore {
	return &memApptStore{appts: map[uuid.UUID]*Appointment{}}
}

type memTxKey struct{}

func (s *memApptStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

func (s *memApptStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memApptStore) Create(ctx context.Context, a *Appointment) error {
	defer s.lock(ctx)()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *memApptStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer s.lock(ctx)()
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memApptStore) UpdateInterval(ctx context.Context, id uuid.UUID, doctorID uuid.UUID, start, end time.Time) error {
	defer s.lock(ctx)()
	a, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.DoctorID = doctorID
	a.StartTime = start
	a.EndTime = end
	a.UpdatedAt = time.Now()
	return nil
}

func (s *memApptStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	defer s.lock(ctx)()
	a, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

func (s *memApptStore) ListOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error) {
	defer s.lock(ctx)()
	var out []*Appointment
	for _, a := range s.appts {
		if a.DoctorID != doctorID || a.ID == excludeID || !a.Status.Blocks() {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memApptStore) ListBlockingInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return s.ListOverlapping(ctx, doctorID, from, to, uuid.Nil)
}

func (s *memApptStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	defer s.lock(ctx)()
	var out []*Appointment
	for _, a := range s.appts {
		if a.DoctorID == doctorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (s *memApptStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	defer s.lock(ctx)()
	var out []*Appointment
	for _, a := range s.appts {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type memDirectory struct {
	zones    map[uuid.UUID]*time.Location
	patients map[uuid.UUID]bool
	services map[uuid.UUID]time.Duration
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		zones:    map[uuid.UUID]*time.Location{},
		patients: map[uuid.UUID]bool{},
		services: map[uuid.UUID]time.Duration{},
	}
}

func (d *memDirectory) DoctorTimeZone(_ context.Context, doctorID uuid.UUID) (*time.Location, error) {
	loc, ok := d.zones[doctorID]
	if !ok {
		return nil, ErrNotFound
	}
	return loc, nil
}

func (d *memDirectory) PatientExists(_ context.Context, patientID uuid.UUID) (bool, error) {
	return d.patients[patientID], nil
}

func (d *memDirectory) ServiceDuration(_ context.Context, serviceID uuid.UUID) (time.Duration, error) {
	dur, ok := d.services[serviceID]
	if !ok {
		return 0, ErrNotFound
	}
	return dur, nil
}

// captureNotifier records notification events on a buffered channel so
// tests can wait for the fire-and-forget goroutine.
type captureNotifier struct {
	events chan string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{events: make(chan string, 16)}
}

func (n *captureNotifier) AppointmentBooked(_ context.Context, a *Appointment) {
	n.events <- "booked:" + a.ID.String()
}

func (n *captureNotifier) AppointmentRescheduled(_ context.Context, a *Appointment) {
	n.events <- "rescheduled:" + a.ID.String()
}

func (n *captureNotifier) AppointmentCancelled(_ context.Context, a *Appointment) {
	n.events <- "cancelled:" + a.ID.String()
}
