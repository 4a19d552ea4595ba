// Package timerange implements half-open time interval arithmetic for the
// availability engine: subtraction of blocked intervals from free intervals,
// merging, and fixed-duration slot generation. All functions are pure and
// operate on sorted, disjoint sets of ranges.
package timerange

import (
	"fmt"
	"sort"
	"time"
)

// Range is a half-open interval [Start, End). Adjacent ranges that share a
// boundary do not overlap.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewRange returns a validated range. Start must be strictly before End.
func NewRange(start, end time.Time) (Range, error) {
	if !start.Before(end) {
		return Range{}, fmt.Errorf("invalid range: start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Range{Start: start, End: end}, nil
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Duration returns End - Start.
func (r Range) Duration() time.Duration { return r.End.Sub(r.Start) }

// Overlaps reports whether r and other share any instant. Touching
// boundaries (r.End == other.Start) do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Subtract removes x from a single range. The result is zero, one or two
// ranges depending on how x cuts into r:
//   - no overlap: r unchanged
//   - x covers r: nothing remains
//   - x strictly inside r: r splits in two
//   - x overlaps only the left edge: r is truncated from the left
//   - x overlaps only the right edge: r is truncated from the right
func (r Range) Subtract(x Range) []Range {
	if !r.Overlaps(x) {
		return []Range{r}
	}
	var out []Range
	if r.Start.Before(x.Start) {
		out = append(out, Range{Start: r.Start, End: x.Start})
	}
	if x.End.Before(r.End) {
		out = append(out, Range{Start: x.End, End: r.End})
	}
	return out
}

// SubtractAll removes every range in blocks from each range in ranges.
// Input ranges need not be sorted; the result is sorted and disjoint as long
// as the input ranges are disjoint. Removal is order independent: subtracting
// blocks in any order yields the same set.
func SubtractAll(ranges []Range, blocks []Range) []Range {
	out := make([]Range, len(ranges))
	copy(out, ranges)
	for _, b := range blocks {
		var next []Range
		for _, r := range out {
			next = append(next, r.Subtract(b)...)
		}
		out = next
	}
	Sort(out)
	return out
}

// Merge coalesces overlapping or touching ranges into a minimal sorted
// disjoint set. The input is not modified.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	Sort(sorted)

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sort orders ranges by start time, then end time.
func Sort(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start.Equal(ranges[j].Start) {
			return ranges[i].End.Before(ranges[j].End)
		}
		return ranges[i].Start.Before(ranges[j].Start)
	})
}

// Slots slices a free range into bookable windows of the given duration,
// advancing by step. A step smaller than the duration produces overlapping
// candidate slots (e.g. 45-minute services offered on every quarter hour).
// No slot ever crosses r.End; a trailing remainder shorter than duration is
// dropped. A step <= 0 defaults to the duration.
func Slots(r Range, duration, step time.Duration) []Range {
	if duration <= 0 {
		return nil
	}
	if step <= 0 {
		step = duration
	}
	var out []Range
	for start := r.Start; !start.Add(duration).After(r.End); start = start.Add(step) {
		out = append(out, Range{Start: start, End: start.Add(duration)})
	}
	return out
}

// TotalDuration sums the durations of all ranges.
func TotalDuration(ranges []Range) time.Duration {
	var total time.Duration
	for _, r := range ranges {
		total += r.Duration()
	}
	return total
}
