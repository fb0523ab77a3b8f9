package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/spf13/pflag"
)

// hourMinuteValue is a pflag.Value for "H:MM" durations.
type hourMinuteValue time.Duration

var _ pflag.Value = (*hourMinuteValue)(nil)

func (v *hourMinuteValue) String() string {
	if *v == 0 {
		return ""
	}
	return domain.FormatHourMinute(time.Duration(*v))
}

func (v *hourMinuteValue) Set(s string) error {
	d, err := domain.ParseHourMinute(s)
	if err != nil {
		return err
	}
	*v = hourMinuteValue(d)
	return nil
}

func (v *hourMinuteValue) Type() string { return "H:MM" }

// hourMinuteListValue is a comma-separated list of "H:MM" offsets. Unlike
// single durations, 0:00 is allowed since most levels get no extra time.
type hourMinuteListValue []time.Duration

var _ pflag.Value = (*hourMinuteListValue)(nil)

func (v *hourMinuteListValue) String() string {
	parts := make([]string, len(*v))
	for i, d := range *v {
		parts[i] = domain.FormatHourMinute(d)
	}
	return strings.Join(parts, ",")
}

func (v *hourMinuteListValue) Set(s string) error {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "0:00" {
			out = append(out, 0)
			continue
		}
		d, err := domain.ParseHourMinute(part)
		if err != nil {
			return err
		}
		out = append(out, d)
	}
	*v = out
	return nil
}

func (v *hourMinuteListValue) Type() string { return "H:MM,..." }

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// timeValue is a pflag.Value accepting RFC 3339 or "YYYY-MM-DD HH:MM" (UTC).
type timeValue time.Time

var _ pflag.Value = (*timeValue)(nil)

func (v *timeValue) String() string {
	t := time.Time(*v)
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func (v *timeValue) Set(s string) error {
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	*v = timeValue(t)
	return nil
}

func (v *timeValue) Type() string { return "time" }

func (v *timeValue) orNow(now time.Time) time.Time {
	if t := time.Time(*v); !t.IsZero() {
		return t
	}
	return now
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q must be RFC 3339 or YYYY-MM-DD HH:MM", s)
}
