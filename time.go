package registration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Day is the unit the activation window is configured in
const Day = 24 * time.Hour

// ActivationWindow converts a day count into a duration
func ActivationWindow(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * Day
}

var dayCountPattern = regexp.MustCompile(`^(\d+)d?$`)

// ParseActivationWindow accepts a plain day count ("7"), a day suffixed
// count ("7d") or a time.ParseDuration expression ("36h"). The whole
// expression must parse and the result must be positive.
func ParseActivationWindow(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("empty activation window")
	}

	if m := dayCountPattern.FindStringSubmatch(expr); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid activation window %q: %w", expr, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("activation window %q must be positive", expr)
		}
		return ActivationWindow(days), nil
	}

	window, err := time.ParseDuration(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid activation window %q: %w", expr, err)
	}
	if window <= 0 {
		return 0, fmt.Errorf("activation window %q must be positive", expr)
	}
	return window, nil
}

// WindowDays reports window in whole days, rounding partial days up
func WindowDays(window time.Duration) int {
	if window <= 0 {
		return 0
	}
	days := int(window / Day)
	if window%Day != 0 {
		days++
	}
	return days
}

// IsWithinActivationWindow reports if now is strictly before registeredAt + window
func IsWithinActivationWindow(registeredAt time.Time, window time.Duration, now time.Time) bool {
	return now.Before(registeredAt.Add(window))
}

// ExpirationCutoff is the latest registration time that is already expired at now
func ExpirationCutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
