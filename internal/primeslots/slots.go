// Package primeslots knows the fixed high-engagement posting windows and
// reports how well the queue covers them.
//
// The catalogue is a set of non-overlapping UTC windows named after the
// audience they catch. One window wraps midnight; by convention its label day
// is the day the window ENDS, so "NY evening" for March 2 runs from March 1
// 22:00 UTC to March 2 01:00 UTC.
package primeslots

import (
	"strings"
	"time"
)

// Slot is one prime posting window, in whole UTC hours.
type Slot struct {
	Label     string
	StartHour int
	EndHour   int
}

// Slots in display order.
var Slots = []Slot{
	{"NY evening", 22, 1}, // wraps to next day
	{"CA evening", 1, 5},
	{"Asia morning", 5, 8},
	{"EU morning", 8, 11},
	{"EU noon", 11, 12},
	{"NY morning", 12, 15},
	{"CA morning", 15, 19},
	{"CA noon", 19, 22},
}

func normalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Resolve finds the canonical slot for a label, case- and
// separator-insensitive.
func Resolve(label string) (Slot, bool) {
	want := normalizeLabel(label)
	for _, s := range Slots {
		if normalizeLabel(s.Label) == want {
			return s, true
		}
	}
	return Slot{}, false
}

// BoundsUTC returns the [start, end) window for the slot labelled by day
// (any instant within the label day, in any zone).
func (s Slot) BoundsUTC(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

	if s.StartHour <= s.EndHour {
		return midnight.Add(time.Duration(s.StartHour) * time.Hour),
			midnight.Add(time.Duration(s.EndHour) * time.Hour)
	}
	// Wrap slot: starts the previous day, label day is the end day.
	prev := midnight.AddDate(0, 0, -1)
	return prev.Add(time.Duration(s.StartHour) * time.Hour),
		midnight.Add(time.Duration(s.EndHour) * time.Hour)
}

// Contains reports whether t falls inside the slot window labelled by day.
func (s Slot) Contains(t time.Time, day time.Time) bool {
	start, end := s.BoundsUTC(day)
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

// DayCoverage counts queue items per slot for one label day. Counts is
// indexed like Slots.
type DayCoverage struct {
	Day    time.Time
	Counts []int
}

// Coverage buckets the given instants into slots for `days` label days
// starting at the UTC day of from.
func Coverage(times []time.Time, from time.Time, days int) []DayCoverage {
	if days <= 0 {
		days = 1
	}
	f := from.UTC()
	day0 := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]DayCoverage, 0, days)
	for d := 0; d < days; d++ {
		day := day0.AddDate(0, 0, d)
		cov := DayCoverage{Day: day, Counts: make([]int, len(Slots))}
		for i, slot := range Slots {
			for _, t := range times {
				if slot.Contains(t, day) {
					cov.Counts[i]++
				}
			}
		}
		out = append(out, cov)
	}
	return out
}
