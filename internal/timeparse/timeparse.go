// Package timeparse resolves the time specs users type into UTC instants.
//
// Supported forms:
//   - Absolute: RFC3339, "2006-01-02 15:04[:05]", "2006-01-02T15:04"
//   - Bare clock "HH:MM": the next occurrence of that wall time in the
//     display timezone (tomorrow if it already passed today)
//   - Relative offsets: "30m", "2h", "1d" (forward for schedule specs,
//     backward for --since specs)
//
// Zone-less absolute forms are interpreted in the given location; the result
// is always UTC.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reRel  = regexp.MustCompile(`^(\d+)([smhd])$`)
)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// At resolves a schedule spec to a future-ish UTC instant.
func At(spec string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return time.Time{}, fmt.Errorf("time required")
	}
	if loc == nil {
		loc = time.UTC
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		return nextClock(m, now, loc)
	}
	if d, ok := parseRel(s); ok {
		return now.Add(d).UTC(), nil
	}
	if t, ok := parseAbsolute(s, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf(
		"invalid time %q (use '2006-01-02 15:04', RFC3339, 'HH:MM' for the next occurrence, or an offset like '30m'/'1d')",
		spec,
	)
}

// Since resolves a lookback spec: relative offsets count backwards from now,
// absolute forms are taken as-is.
func Since(spec string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return time.Time{}, fmt.Errorf("since spec required")
	}
	if loc == nil {
		loc = time.UTC
	}

	if d, ok := parseRel(s); ok {
		return now.Add(-d).UTC(), nil
	}
	if t, ok := parseAbsolute(s, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf(
		"invalid since %q (use an offset like '2h'/'7d' or an absolute time)",
		spec,
	)
}

func nextClock(m []string, now time.Time, loc *time.Location) (time.Time, error) {
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 {
		return time.Time{}, fmt.Errorf("invalid hour in %q", m[0])
	}
	if mm > 59 {
		return time.Time{}, fmt.Errorf("invalid minutes in %q", m[0])
	}
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
	if !target.After(local) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC(), nil
}

func parseRel(s string) (time.Duration, bool) {
	m := reRel.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, false
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, true
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	}
	return 0, false
}

func parseAbsolute(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		if strings.Contains(layout, "Z07:00") {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
