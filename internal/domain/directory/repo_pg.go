package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/db"
)

// ErrNotFound reports a missing directory record.
var ErrNotFound = errors.New("not found")

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const doctorCols = `id, name, specialty, email, phone, time_zone, active, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone,
		&d.TimeZone, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("doctor: %w", ErrNotFound)
	}
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor (id, name, specialty, email, phone, time_zone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.Name, d.Specialty, d.Email, d.Phone, d.TimeZone, d.Active)
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET name=$2, specialty=$3, email=$4, phone=$5, time_zone=$6,
			active=$7, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Specialty, d.Email, d.Phone, d.TimeZone, d.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("doctor: %w", ErrNotFound)
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	filter := ""
	if activeOnly {
		filter = " WHERE active"
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+filter).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctor`+filter+` ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("doctor: %w", ErrNotFound)
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const patientCols = `id, name, email, phone, date_of_birth, active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient: %w", ErrNotFound)
	}
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, name, email, phone, date_of_birth, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.Name, p.Email, p.Phone, p.DateOfBirth, p.Active)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name=$2, email=$3, phone=$4, date_of_birth=$5, active=$6,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Email, p.Phone, p.DateOfBirth, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient: %w", ErrNotFound)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient: %w", ErrNotFound)
	}
	return nil
}

// =========== Service Type Repository ===========

type serviceTypeRepoPG struct{ pool *pgxpool.Pool }

func NewServiceTypeRepoPG(pool *pgxpool.Pool) ServiceTypeRepository {
	return &serviceTypeRepoPG{pool: pool}
}

func (r *serviceTypeRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const serviceTypeCols = `id, name, description, duration_minutes, price_cents, active, created_at, updated_at`

func scanServiceType(row pgx.Row) (*ServiceType, error) {
	var s ServiceType
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes,
		&s.PriceCents, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service: %w", ErrNotFound)
	}
	return &s, err
}

func (r *serviceTypeRepoPG) Create(ctx context.Context, s *ServiceType) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_type (id, name, description, duration_minutes, price_cents, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.Active)
	return err
}

func (r *serviceTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	return scanServiceType(r.conn(ctx).QueryRow(ctx,
		`SELECT `+serviceTypeCols+` FROM service_type WHERE id = $1`, id))
}

func (r *serviceTypeRepoPG) Update(ctx context.Context, s *ServiceType) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_type SET name=$2, description=$3, duration_minutes=$4,
			price_cents=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service: %w", ErrNotFound)
	}
	return nil
}

func (r *serviceTypeRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ServiceType, int, error) {
	filter := ""
	if activeOnly {
		filter = " WHERE active"
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_type`+filter).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serviceTypeCols+` FROM service_type`+filter+` ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*ServiceType
	for rows.Next() {
		s, err := scanServiceType(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *serviceTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM service_type WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service: %w", ErrNotFound)
	}
	return nil
}
