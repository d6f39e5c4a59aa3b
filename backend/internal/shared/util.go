package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// GenerateID generates a unique document ID with a readable prefix
func GenerateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NormalizeDate truncates t to midnight UTC of its calendar day.
// Attendance uniqueness relies on every writer using this.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// DatesInRange lists every calendar day in [start, end], inclusive.
// Returns nil when end is before start.
func DatesInRange(start, end time.Time) []time.Time {
	start, end = NormalizeDate(start), NormalizeDate(end)
	if end.Before(start) {
		return nil
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DaysBetweenInclusive counts calendar days in [start, end]
func DaysBetweenInclusive(start, end time.Time) int {
	start, end = NormalizeDate(start), NormalizeDate(end)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// CleanString trims all leading and trailing whitespace in s
func CleanString(s string) string {
	return strings.TrimSpace(s)
}
