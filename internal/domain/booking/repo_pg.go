package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/db"
)

type apptRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository { return &apptRepoPG{pool: pool} }

func (r *apptRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const apptCols = `id, doctor_id, patient_id, service_id, status, start_time, end_time,
	notes, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.ServiceID, &a.Status,
		&a.StartTime, &a.EndTime, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *apptRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, service_id, status, start_time, end_time, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.DoctorID, a.PatientID, a.ServiceID, a.Status, a.StartTime, a.EndTime, a.Notes)
	return err
}

func (r *apptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *apptRepoPG) UpdateInterval(ctx context.Context, id uuid.UUID, doctorID uuid.UUID, start, end time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET doctor_id=$2, start_time=$3, end_time=$4, updated_at=NOW()
		WHERE id = $1`,
		id, doctorID, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apptRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status=$2, updated_at=NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// blockingStatuses appears inline in queries; only cancelled and no_show
// rows stop occupying their interval.
const blockingFilter = `status NOT IN ('cancelled', 'no_show')`

func (r *apptRepoPG) ListOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND `+blockingFilter+`
		  AND start_time < $3 AND end_time > $2
		  AND id <> $4
		ORDER BY start_time`,
		doctorID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppts(rows)
}

func (r *apptRepoPG) ListBlockingInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.ListOverlapping(ctx, doctorID, from, to, uuid.Nil)
}

func (r *apptRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment WHERE doctor_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectAppts(rows)
	return items, total, err
}

func (r *apptRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment WHERE patient_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectAppts(rows)
	return items, total, err
}

func collectAppts(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
