package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/db"
)

// =========== Weekly Schedule Repository ===========

type weeklyRepoPG struct{ pool *pgxpool.Pool }

func NewWeeklyRepoPG(pool *pgxpool.Pool) WeeklyRepository { return &weeklyRepoPG{pool: pool} }

func (r *weeklyRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const weeklyCols = `id, doctor_id, weekday, start_time, end_time, is_available,
	effective_from, effective_to, created_at, updated_at`

func scanWeekly(row pgx.Row) (*WeeklyEntry, error) {
	var w WeeklyEntry
	var weekday int
	err := row.Scan(&w.ID, &w.DoctorID, &weekday, &w.StartTime, &w.EndTime, &w.IsAvailable,
		&w.EffectiveFrom, &w.EffectiveTo, &w.CreatedAt, &w.UpdatedAt)
	w.Weekday = time.Weekday(weekday)
	return &w, err
}

func (r *weeklyRepoPG) Create(ctx context.Context, w *WeeklyEntry) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO weekly_schedule (id, doctor_id, weekday, start_time, end_time,
			is_available, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		w.ID, w.DoctorID, int(w.Weekday), w.StartTime, w.EndTime,
		w.IsAvailable, w.EffectiveFrom, w.EffectiveTo)
	return err
}

func (r *weeklyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*WeeklyEntry, error) {
	return scanWeekly(r.conn(ctx).QueryRow(ctx,
		`SELECT `+weeklyCols+` FROM weekly_schedule WHERE id = $1`, id))
}

func (r *weeklyRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+weeklyCols+` FROM weekly_schedule WHERE doctor_id = $1 ORDER BY weekday, start_time`,
		doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWeekly(rows)
}

func (r *weeklyRepoPG) ListEffective(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday, date time.Time) ([]*WeeklyEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+weeklyCols+` FROM weekly_schedule
		WHERE doctor_id = $1 AND weekday = $2
		  AND (effective_from IS NULL OR effective_from <= $3)
		  AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY start_time`,
		doctorID, int(weekday), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWeekly(rows)
}

func (r *weeklyRepoPG) ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, entries []*WeeklyEntry) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM weekly_schedule WHERE doctor_id = $1`, doctorID); err != nil {
		return err
	}
	for _, w := range entries {
		w.ID = uuid.New()
		w.DoctorID = doctorID
		if _, err := q.Exec(ctx, `
			INSERT INTO weekly_schedule (id, doctor_id, weekday, start_time, end_time,
				is_available, effective_from, effective_to)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			w.ID, w.DoctorID, int(w.Weekday), w.StartTime, w.EndTime,
			w.IsAvailable, w.EffectiveFrom, w.EffectiveTo); err != nil {
			return err
		}
	}
	return nil
}

func (r *weeklyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM weekly_schedule WHERE id = $1`, id)
	return err
}

func collectWeekly(rows pgx.Rows) ([]*WeeklyEntry, error) {
	var items []*WeeklyEntry
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ pool *pgxpool.Pool }

func NewExceptionRepoPG(pool *pgxpool.Pool) ExceptionRepository { return &exceptionRepoPG{pool: pool} }

func (r *exceptionRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const exceptionCols = `id, doctor_id, date, is_full_day, start_time, end_time, reason, created_at`

func scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	err := row.Scan(&e.ID, &e.DoctorID, &e.Date, &e.IsFullDay, &e.StartTime, &e.EndTime,
		&e.Reason, &e.CreatedAt)
	return &e, err
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *Exception) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO schedule_exception (id, doctor_id, date, is_full_day, start_time, end_time, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.DoctorID, e.Date, e.IsFullDay, e.StartTime, e.EndTime, e.Reason)
	return err
}

func (r *exceptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exception, error) {
	return scanException(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exceptionCols+` FROM schedule_exception WHERE id = $1`, id))
}

func (r *exceptionRepoPG) ListByDoctorDateRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+exceptionCols+` FROM schedule_exception
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, start_time NULLS FIRST`,
		doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExceptions(rows)
}

func (r *exceptionRepoPG) ListOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+exceptionCols+` FROM schedule_exception
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_time NULLS FIRST`,
		doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExceptions(rows)
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule_exception WHERE id = $1`, id)
	return err
}

func collectExceptions(rows pgx.Rows) ([]*Exception, error) {
	var items []*Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
