package routine

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DateLayout is the calendar key format used for routine dates and history buckets.
	DateLayout = "2006-01-02"
	// DefaultTimezone is used when a user has no (valid) timezone preference.
	DefaultTimezone = "America/Santiago"

	day = 24 * time.Hour
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// StartOfDay returns the canonical UTC midnight marker for the calendar date of t.
// The calendar fields are taken from t as-is; the marker is not a timezone-aware instant.
// Re-normalizing a marker returns it unchanged.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last millisecond of the calendar date of t, in marker form.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(day - time.Millisecond)
}

// ParseDate normalizes a date input into its start-of-day marker.
// YYYY-MM-DD strings are read as literal calendar components. Timestamps use the
// calendar date as written, including their own offset.
func ParseDate(input string) (time.Time, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrInvalidDate)
	}

	if len(raw) == len(DateLayout) {
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, input)
		}
		return StartOfDay(t), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return StartOfDay(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, input)
}

// DateKey formats the calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// LoadLocation resolves an IANA timezone name, falling back to DefaultTimezone.
func LoadLocation(tz string) *time.Location {
	name := strings.TrimSpace(tz)
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidTimezone reports whether tz names a loadable IANA timezone.
func ValidTimezone(tz string) bool {
	name := strings.TrimSpace(tz)
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// Today returns the marker for the calendar date now falls on in the given timezone.
func Today(now time.Time, tz string) time.Time {
	return StartOfDay(now.In(LoadLocation(tz)))
}

// WeekStart returns midnight of the Sunday starting the week of t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// MonthStart returns midnight of the first day of t's month, in t's location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// dayStart returns midnight of t's calendar date in t's location.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts whole calendar days from a to b using their calendar fields,
// so DST transitions do not shift the count.
func daysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)) / day)
}

func monthsBetween(a, b time.Time) int {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return (by-ay)*12 + int(bm-am)
}
