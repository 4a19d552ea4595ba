// Package schedule holds a doctor's recurring weekly working-hour templates
// and date-scoped exceptions (holidays, leave, partial blocks). Both are
// read by the availability resolver and the booking transaction; they are
// written only through the staff schedule-management surface.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WeeklyEntry maps to the weekly_schedule table. It describes one recurring
// working period: "this doctor works 09:00-17:00 on Mondays", optionally
// bounded by an effective date window. Entries with IsAvailable=false are
// explicit non-working placeholders and contribute no free time.
type WeeklyEntry struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	DoctorID      uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	Weekday       time.Weekday `db:"weekday" json:"weekday"` // 0 = Sunday ... 6 = Saturday
	StartTime     string       `db:"start_time" json:"start_time"` // local wall clock, "15:04"
	EndTime       string       `db:"end_time" json:"end_time"`
	IsAvailable   bool         `db:"is_available" json:"is_available"`
	EffectiveFrom *time.Time   `db:"effective_from" json:"effective_from,omitempty"` // date, inclusive
	EffectiveTo   *time.Time   `db:"effective_to" json:"effective_to,omitempty"`     // date, inclusive
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Validate checks the entry's internal invariants.
func (w *WeeklyEntry) Validate() error {
	if w.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("weekday must be between 0 and 6, got %d", w.Weekday)
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time %s must be before end_time %s", w.StartTime, w.EndTime)
	}
	if w.EffectiveFrom != nil && w.EffectiveTo != nil && w.EffectiveTo.Before(*w.EffectiveFrom) {
		return fmt.Errorf("effective_to precedes effective_from")
	}
	return nil
}

// CoversDate reports whether the entry's effective window contains the given
// calendar date. Open-ended sides always match.
func (w *WeeklyEntry) CoversDate(date time.Time) bool {
	d := truncateToDate(date)
	if w.EffectiveFrom != nil && d.Before(truncateToDate(*w.EffectiveFrom)) {
		return false
	}
	if w.EffectiveTo != nil && d.After(truncateToDate(*w.EffectiveTo)) {
		return false
	}
	return true
}

// Exception maps to the schedule_exception table. A full-day exception
// nullifies all availability on its date; a partial one subtracts
// [StartTime, EndTime) from the day's template output.
type Exception struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date      time.Time `db:"date" json:"date"` // calendar date
	IsFullDay bool      `db:"is_full_day" json:"is_full_day"`
	StartTime *string   `db:"start_time" json:"start_time,omitempty"` // required iff !IsFullDay
	EndTime   *string   `db:"end_time" json:"end_time,omitempty"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Validate checks the exception's internal invariants.
func (e *Exception) Validate() error {
	if e.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if e.IsFullDay {
		return nil
	}
	if e.StartTime == nil || e.EndTime == nil {
		return fmt.Errorf("start_time and end_time are required for partial exceptions")
	}
	start, err := ParseClock(*e.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(*e.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time %s must be before end_time %s", *e.StartTime, *e.EndTime)
	}
	return nil
}

// ParseClock parses a "15:04" wall-clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// OnDate materializes a wall-clock string on the given calendar date in loc.
// The result follows the local wall clock, so on DST transition days it lands
// on whatever instant the clock shows at that reading.
func OnDate(clock string, date time.Time, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
