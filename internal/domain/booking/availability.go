package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/domain/schedule"
	"github.com/medbook/medbook/internal/domain/timerange"
)

// DoctorDirectory resolves reference data the booking engine validates
// against. Implemented by the directory service; wired in at startup.
type DoctorDirectory interface {
	DoctorTimeZone(ctx context.Context, doctorID uuid.UUID) (*time.Location, error)
	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
	// ServiceDuration returns the default appointment length for a service.
	ServiceDuration(ctx context.Context, serviceID uuid.UUID) (time.Duration, error)
}

// DayAvailability is the resolver output for one calendar day.
type DayAvailability struct {
	Date string `json:"date"` // YYYY-MM-DD in the doctor's time zone
	// Working distinguishes "no weekly template applies to this day" (false)
	// from "working day whose time is fully exceptioned or booked" (true with
	// empty Free). Both present an empty list to bookers; the flag only
	// feeds explanatory messaging.
	Working bool              `json:"working"`
	Free    []timerange.Range `json:"free"`
	Slots   []timerange.Range `json:"slots,omitempty"`
}

// ResolveOptions controls slot slicing. Zero SlotDuration yields raw free
// ranges only. SlotStep below SlotDuration offers overlapping start times
// (e.g. a 45-minute service bookable on every quarter hour); zero defaults
// to SlotDuration.
type ResolveOptions struct {
	SlotDuration time.Duration
	SlotStep     time.Duration
}

// Resolver computes bookable time for a doctor over a date range by
// overlaying the weekly template, date exceptions and booked appointments.
type Resolver struct {
	weekly     schedule.WeeklyRepository
	exceptions schedule.ExceptionRepository
	appts      AppointmentRepository
	directory  DoctorDirectory
}

func NewResolver(weekly schedule.WeeklyRepository, exceptions schedule.ExceptionRepository, appts AppointmentRepository, directory DoctorDirectory) *Resolver {
	return &Resolver{weekly: weekly, exceptions: exceptions, appts: appts, directory: directory}
}

// Resolve returns per-day availability for each calendar day in [from, to]
// (dates, inclusive). Per day: a full-day exception wins outright; otherwise
// each effective available weekly entry seeds a free range, partial
// exceptions and blocking appointments are subtracted, and the survivors are
// concatenated. Ranges produced by overlapping weekly entries are
// deliberately not merged against each other: redundant, never incorrect.
func (r *Resolver) Resolve(ctx context.Context, doctorID uuid.UUID, from, to time.Time, opts ResolveOptions) ([]DayAvailability, error) {
	loc, err := r.directory.DoctorTimeZone(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var days []DayAvailability
	for d := dateIn(from, loc); !d.After(dateIn(to, loc)); d = d.AddDate(0, 0, 1) {
		day, err := r.resolveDay(ctx, doctorID, d, loc, opts)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func (r *Resolver) resolveDay(ctx context.Context, doctorID uuid.UUID, day time.Time, loc *time.Location, opts ResolveOptions) (DayAvailability, error) {
	out := DayAvailability{Date: day.Format("2006-01-02")}

	entries, err := r.weekly.ListEffective(ctx, doctorID, day.Weekday(), day)
	if err != nil {
		return out, err
	}
	var working []*schedule.WeeklyEntry
	for _, w := range entries {
		if w.IsAvailable {
			working = append(working, w)
		}
	}
	out.Working = len(working) > 0
	if !out.Working {
		return out, nil
	}

	exceptions, err := r.exceptions.ListOnDate(ctx, doctorID, day)
	if err != nil {
		return out, err
	}
	for _, e := range exceptions {
		if e.IsFullDay {
			return out, nil
		}
	}

	blocks, err := r.dayBlocks(ctx, doctorID, day, loc, exceptions)
	if err != nil {
		return out, err
	}

	for _, w := range working {
		start, err := schedule.OnDate(w.StartTime, day, loc)
		if err != nil {
			return out, err
		}
		end, err := schedule.OnDate(w.EndTime, day, loc)
		if err != nil {
			return out, err
		}
		free := timerange.SubtractAll([]timerange.Range{{Start: start, End: end}}, blocks)
		out.Free = append(out.Free, free...)
		if opts.SlotDuration > 0 {
			for _, f := range free {
				out.Slots = append(out.Slots, timerange.Slots(f, opts.SlotDuration, opts.SlotStep)...)
			}
		}
	}
	return out, nil
}

// dayBlocks collects everything that subtracts from the day's template
// output: partial exceptions and blocking appointments.
func (r *Resolver) dayBlocks(ctx context.Context, doctorID uuid.UUID, day time.Time, loc *time.Location, exceptions []*schedule.Exception) ([]timerange.Range, error) {
	var blocks []timerange.Range

	for _, e := range exceptions {
		if e.IsFullDay || e.StartTime == nil || e.EndTime == nil {
			continue
		}
		start, err := schedule.OnDate(*e.StartTime, day, loc)
		if err != nil {
			return nil, err
		}
		end, err := schedule.OnDate(*e.EndTime, day, loc)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, timerange.Range{Start: start, End: end})
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	appts, err := r.appts.ListBlockingInRange(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	for _, a := range appts {
		blocks = append(blocks, timerange.Range{Start: a.StartTime, End: a.EndTime})
	}
	return blocks, nil
}

// dateIn reinterprets a parsed calendar date in the doctor's time zone.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
