package repository

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s, column string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", column, err)
	}
	return t, nil
}

// parseNullableTime parses a sql.NullString into a *time.Time.
// Returns nil if the value is NULL, empty, or fails to parse.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableTimeToString converts a *time.Time to a value suitable for SQLite storage.
// Returns nil (SQL NULL) if the pointer is nil, otherwise returns the formatted string.
func nullableTimeToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func parseNullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Durations are stored as whole minutes, matching the H:MM form input.
func minutes(d time.Duration) int { return int(d / time.Minute) }

func fromMinutes(m int64) time.Duration { return time.Duration(m) * time.Minute }

func nullableMinutes(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return minutes(*d)
}

func parseNullableMinutes(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := fromMinutes(v.Int64)
	return &d
}

// encodeOffsets stores per-level offsets as comma-separated minutes.
func encodeOffsets(offsets []time.Duration) string {
	parts := make([]string, len(offsets))
	for i, d := range offsets {
		parts[i] = strconv.Itoa(minutes(d))
	}
	return strings.Join(parts, ",")
}

func decodeOffsets(s string) ([]time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Duration, len(parts))
	for i, p := range parts {
		m, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing level_offsets: %w", err)
		}
		out[i] = fromMinutes(m)
	}
	return out, nil
}

// boolToInt converts a Go bool to an integer (0 or 1) for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// intToBool converts a SQLite integer (0 or 1) to a Go bool.
func intToBool(i int) bool {
	return i != 0
}
