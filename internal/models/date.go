package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-date form used throughout the cache.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders a time as a UTC YYYY-MM-DD calendar date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NormalizeDate coerces the date representations upstream APIs produce —
// YYYY-MM-DD strings, RFC3339 strings, or Unix-seconds timestamps — into the
// canonical YYYY-MM-DD form.
func NormalizeDate(v interface{}) (string, error) {
	switch d := v.(type) {
	case string:
		if t, err := time.Parse(DateLayout, d); err == nil {
			return FormatDate(t), nil
		}
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return FormatDate(t), nil
		}
		return "", fmt.Errorf("unrecognized date string %q", d)
	case time.Time:
		return FormatDate(d), nil
	case int64:
		return FormatDate(time.Unix(d, 0)), nil
	case float64:
		return FormatDate(time.Unix(int64(d), 0)), nil
	default:
		return "", fmt.Errorf("unsupported date type %T", v)
	}
}

// DaysBetween returns the whole-day difference between two dates.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
