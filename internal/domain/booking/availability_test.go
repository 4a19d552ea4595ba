package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/domain/schedule"
	"github.com/medbook/medbook/internal/domain/timerange"
)

// Fixture week: 2027-03-01 is a Monday. The doctor works Mon-Fri 09:00-17:00
// in New York, takes a lunch blackout on Wednesday, the whole Thursday off,
// and has one confirmed plus one cancelled appointment on Monday.
type bookingFixture struct {
	store      *memApptStore
	weekly     *memWeeklyRepo
	exceptions *memExceptionRepo
	directory  *memDirectory
	svc        *Service
	resolver   *Resolver
	loc        *time.Location

	doctorID  uuid.UUID
	patientID uuid.UUID
	serviceID uuid.UUID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	f := &bookingFixture{
		store:      newMemApptStore(),
		weekly:     &memWeeklyRepo{},
		exceptions: &memExceptionRepo{},
		directory:  newMemDirectory(),
		loc:        loc,
		doctorID:   uuid.New(),
		patientID:  uuid.New(),
		serviceID:  uuid.New(),
	}
	f.directory.zones[f.doctorID] = loc
	f.directory.patients[f.patientID] = true
	f.directory.services[f.serviceID] = 30 * time.Minute

	ctx := context.Background()
	for wd := time.Monday; wd <= time.Friday; wd++ {
		err := f.weekly.Create(ctx, &schedule.WeeklyEntry{
			DoctorID:    f.doctorID,
			Weekday:     wd,
			StartTime:   "09:00",
			EndTime:     "17:00",
			IsAvailable: true,
		})
		if err != nil {
			t.Fatalf("seed weekly: %v", err)
		}
	}

	lunchStart, lunchEnd := "12:00", "13:00"
	if err := f.exceptions.Create(ctx, &schedule.Exception{
		DoctorID:  f.doctorID,
		Date:      time.Date(2027, 3, 3, 0, 0, 0, 0, loc),
		StartTime: &lunchStart,
		EndTime:   &lunchEnd,
	}); err != nil {
		t.Fatalf("seed exception: %v", err)
	}
	if err := f.exceptions.Create(ctx, &schedule.Exception{
		DoctorID:  f.doctorID,
		Date:      time.Date(2027, 3, 4, 0, 0, 0, 0, loc),
		IsFullDay: true,
	}); err != nil {
		t.Fatalf("seed exception: %v", err)
	}

	f.svc = NewService(f.store, f.weekly, f.exceptions, f.directory, f.store, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2027, 2, 1, 0, 0, 0, 0, loc) }
	f.resolver = NewResolver(f.weekly, f.exceptions, f.store, f.directory)
	return f
}

// at builds an instant on a March 2027 day in the fixture's zone.
func (f *bookingFixture) at(day, hour, min int) time.Time {
	return time.Date(2027, 3, day, hour, min, 0, 0, f.loc)
}

func (f *bookingFixture) mustBook(t *testing.T, start, end time.Time) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookingRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		ServiceID: f.serviceID,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		t.Fatalf("Book(%v, %v): %v", start, end, err)
	}
	return appt
}

func TestResolveWeek(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	f.mustBook(t, f.at(1, 10, 0), f.at(1, 10, 30))
	cancelled := f.mustBook(t, f.at(1, 11, 0), f.at(1, 11, 30))
	if _, err := f.svc.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	days, err := f.resolver.Resolve(ctx, f.doctorID,
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 7, 0, 0, 0, 0, time.UTC),
		ResolveOptions{SlotDuration: 30 * time.Minute})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("got %d days, want 7", len(days))
	}

	byDate := map[string]DayAvailability{}
	for _, d := range days {
		byDate[d.Date] = d
	}

	mon := byDate["2027-03-01"]
	if !mon.Working {
		t.Fatal("Monday should be a working day")
	}
	wantFree := []timerange.Range{
		{Start: f.at(1, 9, 0), End: f.at(1, 10, 0)},
		{Start: f.at(1, 10, 30), End: f.at(1, 17, 0)},
	}
	if len(mon.Free) != len(wantFree) {
		t.Fatalf("Monday free = %v, want %v", mon.Free, wantFree)
	}
	for i, r := range mon.Free {
		if !r.Start.Equal(wantFree[i].Start) || !r.End.Equal(wantFree[i].End) {
			t.Errorf("Monday free[%d] = %v, want %v", i, r, wantFree[i])
		}
	}
	// 1h before the appointment plus 6.5h after: 2 + 13 slots. The
	// cancelled appointment must not block.
	if len(mon.Slots) != 15 {
		t.Errorf("Monday slots = %d, want 15", len(mon.Slots))
	}

	wed := byDate["2027-03-03"]
	if len(wed.Free) != 2 {
		t.Fatalf("Wednesday free = %v, want morning and afternoon", wed.Free)
	}
	if !wed.Free[0].End.Equal(f.at(3, 12, 0)) || !wed.Free[1].Start.Equal(f.at(3, 13, 0)) {
		t.Errorf("Wednesday lunch not carved out: %v", wed.Free)
	}
	if len(wed.Slots) != 14 {
		t.Errorf("Wednesday slots = %d, want 14", len(wed.Slots))
	}

	thu := byDate["2027-03-04"]
	if !thu.Working {
		t.Error("Thursday is scheduled as a working day even when fully exceptioned")
	}
	if len(thu.Free) != 0 || len(thu.Slots) != 0 {
		t.Errorf("Thursday should have no availability, got free=%v slots=%v", thu.Free, thu.Slots)
	}

	sat := byDate["2027-03-06"]
	if sat.Working {
		t.Error("Saturday has no template entry and must not be a working day")
	}
	if len(sat.Free) != 0 {
		t.Errorf("Saturday free = %v, want empty", sat.Free)
	}
}

func TestResolveOverlappingEntriesNotMerged(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	if err := f.weekly.Create(ctx, &schedule.WeeklyEntry{
		DoctorID:    f.doctorID,
		Weekday:     time.Monday,
		StartTime:   "16:00",
		EndTime:     "18:00",
		IsAvailable: true,
	}); err != nil {
		t.Fatalf("seed weekly: %v", err)
	}

	days, err := f.resolver.Resolve(ctx, f.doctorID,
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := len(days[0].Free); got != 2 {
		t.Fatalf("overlapping entries produced %d ranges, want 2 unmerged", got)
	}
}

func TestResolveUnavailableEntryIgnored(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	if err := f.weekly.Create(ctx, &schedule.WeeklyEntry{
		DoctorID:  f.doctorID,
		Weekday:   time.Saturday,
		StartTime: "09:00",
		EndTime:   "12:00",
	}); err != nil {
		t.Fatalf("seed weekly: %v", err)
	}

	days, err := f.resolver.Resolve(ctx, f.doctorID,
		time.Date(2027, 3, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 6, 0, 0, 0, 0, time.UTC),
		ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if days[0].Working {
		t.Error("entry with is_available=false must not make the day a working day")
	}
}

func TestResolveEffectiveWindow(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	from := time.Date(2027, 3, 8, 0, 0, 0, 0, f.loc)
	if err := f.weekly.ReplaceForDoctor(ctx, f.doctorID, []*schedule.WeeklyEntry{{
		DoctorID:      f.doctorID,
		Weekday:       time.Monday,
		StartTime:     "10:00",
		EndTime:       "14:00",
		IsAvailable:   true,
		EffectiveFrom: &from,
	}}); err != nil {
		t.Fatalf("replace template: %v", err)
	}

	days, err := f.resolver.Resolve(ctx, f.doctorID,
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 8, 0, 0, 0, 0, time.UTC),
		ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	byDate := map[string]DayAvailability{}
	for _, d := range days {
		byDate[d.Date] = d
	}
	if byDate["2027-03-01"].Working {
		t.Error("entry must not apply before its effective_from date")
	}
	if !byDate["2027-03-08"].Working {
		t.Error("entry must apply from its effective_from date")
	}
}

func TestResolveUnknownDoctor(t *testing.T) {
	f := newBookingFixture(t)
	_, err := f.resolver.Resolve(context.Background(), uuid.New(),
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		ResolveOptions{})
	if err == nil {
		t.Fatal("expected error for unknown doctor")
	}
}
