package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorPurple = lipgloss.Color("#d3869b")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen      = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow     = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleYellowBold = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	StyleRed        = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue       = lipgloss.NewStyle().Foreground(ColorBlue)
	StylePurple     = lipgloss.NewStyle().Foreground(ColorPurple)
	StyleDim        = lipgloss.NewStyle().Foreground(ColorDim)
	StyleFg         = lipgloss.NewStyle().Foreground(ColorFg)
	StyleHeader     = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold       = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", lipgloss.Width(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

func Dim(text string) string {
	return StyleDim.Render(text)
}

func Bold(text string) string {
	return StyleBold.Render(text)
}

// FlowStateBadge returns a colored indicator such as "● REGISTRATION OPEN".
func FlowStateBadge(s domain.FlowState) string {
	label := strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
	switch s {
	case domain.FlowRegistrationOpen:
		return StyleGreen.Render("● " + label)
	case domain.FlowAcceptPending:
		return StyleBlue.Render("● " + label)
	case domain.FlowPaused:
		return StyleYellow.Render("○ " + label)
	case domain.FlowCompleted:
		return StyleDim.Render("✔ " + label)
	default:
		return StyleDim.Render("● " + label)
	}
}

// StatusPill returns a colored status indicator for project status.
func StatusPill(status domain.ProjectStatus) string {
	switch status {
	case domain.ProjectAccepted:
		return StyleBlue.Render("● Accepted")
	case domain.ProjectFlowRegistration:
		return StyleGreen.Render("● Registering")
	case domain.ProjectRegistrationCompleted:
		return StyleDim.Render("✔ Completed")
	default:
		return StyleDim.Render(string(status))
	}
}
