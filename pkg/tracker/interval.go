package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval: choose daily, weekly or monthly")

// Interval is how often a tracked product is checked.
type Interval time.Duration

const (
	Daily   = Interval(24 * time.Hour)
	Weekly  = 7 * Daily
	Monthly = 30 * Daily
)

// ParseInterval accepts the menu number or the name of an interval:
// "1"/"daily", "2"/"weekly" or "3"/"monthly".
func ParseInterval(choice string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case "1", "daily":
		return Daily, nil
	case "2", "weekly":
		return Weekly, nil
	case "3", "monthly":
		return Monthly, nil
	}
	return 0, fmt.Errorf("%q: %w", choice, ErrInvalidInterval)
}

func (i Interval) Valid() bool {
	return i == Daily || i == Weekly || i == Monthly
}

func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) String() string {
	switch i {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	}
	return time.Duration(i).String()
}
