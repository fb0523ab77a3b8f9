// Package timing computes registration and acceptance deadlines for flow
// participants. Every function is pure: identical inputs always produce
// identical outputs, which is what lets a cascade be re-run safely.
package timing

import "time"

// Config holds the durations a flow applies to each tree level.
type Config struct {
	Registration time.Duration
	Accept       time.Duration
	// LevelOffsets[i] is extra registration time granted at level i.
	// Levels beyond the slice get no offset.
	LevelOffsets []time.Duration
}

// Window is the full set of deadlines for one participant slot.
type Window struct {
	RegistrationStart time.Time
	RegistrationEnd   time.Time
	AcceptStart       time.Time
	AcceptEnd         time.Time
}

func (c Config) offset(level int) time.Duration {
	if level < 0 || level >= len(c.LevelOffsets) {
		return 0
	}
	return c.LevelOffsets[level]
}

// AddRegisterTime returns the end of the registration window that opens at
// start for a participant at the given level.
func AddRegisterTime(cfg Config, start time.Time, level int) time.Time {
	return start.Add(cfg.Registration + cfg.offset(level))
}

// AcceptEnd returns when an accept stage that starts at acceptStart closes.
func AcceptEnd(acceptStart time.Time, accept time.Duration) time.Time {
	return acceptStart.Add(accept)
}

// Windows computes all deadlines for a slot whose registration opens at start.
func Windows(start time.Time, cfg Config, level int) Window {
	regEnd := AddRegisterTime(cfg, start, level)
	return Window{
		RegistrationStart: start,
		RegistrationEnd:   regEnd,
		AcceptStart:       regEnd,
		AcceptEnd:         AcceptEnd(regEnd, cfg.Accept),
	}
}

// Chain computes n consecutive windows starting at fromLevel. Each level's
// registration opens when the previous level's accept stage ends.
func Chain(start time.Time, cfg Config, fromLevel, n int) []Window {
	if n <= 0 {
		return nil
	}
	out := make([]Window, 0, n)
	next := start
	for i := 0; i < n; i++ {
		w := Windows(next, cfg, fromLevel+i)
		out = append(out, w)
		next = w.AcceptEnd
	}
	return out
}
