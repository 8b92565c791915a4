package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one of the config's duration-string fields
// ("30m", "10s", "24h"). Empty parses to 0 so callers can layer a default;
// path names the field in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def for empty or zero values. The poll
// and catalog resync intervals go through this so a blank field never
// disables a scheduled job.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
