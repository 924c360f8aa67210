package shares

import (
	"fmt"
	"strings"
	"time"
)

// relativeExpiry enumerates the relative expiry tokens the upload form
// offers. Anything else must be an absolute timestamp.
var relativeExpiry = map[string]time.Duration{
	"1d": 24 * time.Hour,
	"7d": 7 * 24 * time.Hour,
}

// datetime-local inputs omit the zone; treat them as UTC.
const localDateTimeLayout = "2006-01-02T15:04"

// NormalizeExpiry resolves an expiry spec (a relative token like "1d" or an
// absolute RFC3339 timestamp) against now. The result must be strictly in
// the future.
func NormalizeExpiry(spec string, now time.Time) (time.Time, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return time.Time{}, fmt.Errorf("%w: expiry is required", ErrInvalidInput)
	}

	if d, ok := relativeExpiry[spec]; ok {
		return now.Add(d), nil
	}

	ts, err := time.Parse(time.RFC3339, spec)
	if err != nil {
		ts, err = time.Parse(localDateTimeLayout, spec)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unsupported expiry %q", ErrInvalidInput, spec)
	}
	if !ts.After(now) {
		return time.Time{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}
	return ts.UTC(), nil
}

// IsExpired reports whether the share is no longer retrievable at now.
func (s Share) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
