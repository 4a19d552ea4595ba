package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateInterval moves an appointment (and possibly its doctor).
	UpdateInterval(ctx context.Context, id uuid.UUID, doctorID uuid.UUID, start, end time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// ListOverlapping returns appointments in blocking statuses for the
	// doctor whose interval intersects [start, end). excludeID, when not
	// uuid.Nil, leaves that appointment out (used by reschedule).
	ListOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error)
	// ListBlockingInRange is ListOverlapping without exclusion, used by the
	// availability resolver and schedule edit guards.
	ListBlockingInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}

// TxRunner executes fn as one atomic unit against the store. The booking
// preconditions and the insert run inside it; the store's isolation is what
// closes the check-then-write race.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
