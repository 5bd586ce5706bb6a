// Package timeutil converts protocol timestamps between their wire
// representations: ISO-8601 strings in the legacy XML dialect and
// microseconds since the Unix epoch in integer fields.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Parse parses an ISO date-time like "2012-09-07T23:59:59.3Z" or
// "2012-09-07T23:59:59Z". Fractional seconds are optional and truncated to
// microsecond precision.
func Parse(s string) (time.Time, error) {
	base, frac, found := strings.Cut(s, ".")
	if !found {
		t, err := time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
		}
		return t.UTC(), nil
	}
	if len(frac) < 2 || frac[len(frac)-1] != 'Z' {
		return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
	}
	t, err := time.Parse("2006-01-02T15:04:05", base)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
	}
	digits := frac[:len(frac)-1]
	if len(digits) > 6 {
		digits = digits[:6]
	}
	var micros int64
	for i := 0; i < 6; i++ {
		micros *= 10
		if i < len(digits) {
			c := digits[i]
			if c < '0' || c > '9' {
				return time.Time{}, fmt.Errorf("invalid timestamp: %s", s)
			}
			micros += int64(c - '0')
		}
	}
	return t.UTC().Add(time.Duration(micros) * time.Microsecond), nil
}

// Format returns the time in ISO format with microseconds always present,
// e.g. "2012-09-07T23:59:59.300000Z".
func Format(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ToMicros returns microseconds since the Unix epoch.
func ToMicros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros returns the time for the given microseconds since the Unix
// epoch.
func FromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
