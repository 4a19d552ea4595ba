package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WeeklyRepository interface {
	Create(ctx context.Context, w *WeeklyEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*WeeklyEntry, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyEntry, error)
	// ListEffective returns entries for the doctor on the given weekday whose
	// effective window contains date.
	ListEffective(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday, date time.Time) ([]*WeeklyEntry, error)
	// ReplaceForDoctor atomically swaps the doctor's whole weekly template.
	ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, entries []*WeeklyEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exception, error)
	// ListByDoctorDateRange returns exceptions with date in [from, to].
	ListByDoctorDateRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Exception, error)
	ListOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Exception, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
