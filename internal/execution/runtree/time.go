package runtree

import (
	"fmt"
	"time"
)

// Timestamps are kept in UTC at full precision, without a monotonic reading,
// so that a tree compares equal after a trip through the wire form.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

// FormatTime renders t as RFC 3339 with nanoseconds. The zero time renders as
// the empty string, so the Unix epoch stays distinct from "unset".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t.UTC(), nil
}
