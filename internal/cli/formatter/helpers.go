package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// ParticipantStatus is the display state of one tree slot.
type ParticipantStatus string

const (
	StatusWaiting    ParticipantStatus = "waiting"
	StatusOpen       ParticipantStatus = "open"
	StatusRegistered ParticipantStatus = "registered"
	StatusAccepted   ParticipantStatus = "accepted"
	StatusRemoved    ParticipantStatus = "removed"
)

// StatusOf derives the display state of p at now.
func StatusOf(p *domain.Participant, now time.Time) ParticipantStatus {
	switch {
	case p.Deleted:
		return StatusRemoved
	case p.IsAccepted():
		return StatusAccepted
	case p.Registered:
		return StatusRegistered
	case p.RegistrationOpen(now):
		return StatusOpen
	default:
		return StatusWaiting
	}
}

// RenderBox wraps content in a rounded-border box with an optional title.
func RenderBox(title string, content string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		Padding(1, 2)

	if title != "" {
		return boxStyle.Render(StyleHeader.Render(strings.ToUpper(title)) + "\n\n" + content)
	}
	return boxStyle.Render(content)
}

// RelativeFrom renders t relative to now at hour/minute resolution,
// e.g. "in 2:30" or "0:45 ago".
func RelativeFrom(t, now time.Time) string {
	d := t.Sub(now).Truncate(time.Minute)
	switch {
	case d == 0:
		return "now"
	case d > 0:
		return "in " + domain.FormatHourMinute(d)
	default:
		return domain.FormatHourMinute(-d) + " ago"
	}
}

// Timestamp renders t in UTC with minute precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

// Window renders a participant's registration window.
func Window(p *domain.Participant, now time.Time) string {
	return fmt.Sprintf("%s → %s (%s)",
		Timestamp(p.MustBeRegisteredFrom),
		Timestamp(p.AcceptStageStartsAt),
		RelativeFrom(p.MustBeRegisteredFrom, now))
}
