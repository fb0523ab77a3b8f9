package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseHourMinute parses an "H:MM" duration as entered in flow forms
// (e.g. "2:00", "36:30"). Zero durations are rejected.
func ParseHourMinute(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	hStr, mStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("duration %q must be H:MM", s)
	}
	h, err := strconv.Atoi(hStr)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("duration %q has invalid hours", s)
	}
	if len(mStr) != 2 {
		return 0, fmt.Errorf("duration %q must have two-digit minutes", s)
	}
	m, err := strconv.Atoi(mStr)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("duration %q has invalid minutes", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if d == 0 {
		return 0, fmt.Errorf("duration %q must be greater than 0:00", s)
	}
	return d, nil
}

// FormatHourMinute renders d in "H:MM" form, truncating seconds.
func FormatHourMinute(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Minute)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
