// Package durationx adds JSON marshaling to time.Duration so settings of
// type "duration" round-trip as human-readable strings ("30s", "5m") rather
// than raw nanosecond integers.
package durationx

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with JSON (un)marshaling as a Go duration
// string.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON renders the duration as its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string ("1m30s") or a bare
// number of nanoseconds, for compatibility with values written by older
// schema-unaware tooling.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("durationx: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("durationx: value is neither a duration string nor a number: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// Parse is a thin wrapper over time.ParseDuration returning Duration.
func Parse(s string) (Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}
