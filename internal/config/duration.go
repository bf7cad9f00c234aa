package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string, falling back to defaultValue
// when empty. Negative durations are rejected; every interval in this
// daemon (read timeouts, sweep periods, TTLs) must be zero or positive.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", candidate)
	}
	return d, nil
}
