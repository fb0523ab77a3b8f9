package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexanderramin/treeflow/internal/cli/formatter"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// treeflowHuhTheme returns a huh theme using the formatter palette.
func treeflowHuhTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorGreen)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)
	t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Placeholder = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.Description = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	return t
}

// flowForm holds the raw wizard answers before they become a FlowConfig.
type flowForm struct {
	RegistrationType string
	LeaderID         string
	GroupSize        string
	From             string
	Registration     string
	Accept           string
	AutoContinue     bool
	Comments         string
}

func validateHourMinute(s string) error {
	_, err := domain.ParseHourMinute(s)
	return err
}

func validateTime(s string) error {
	_, err := parseTime(s)
	return err
}

func validateGroupSize(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("group size must be a positive number")
	}
	return nil
}

// buildFlowCreateForm assembles the interactive "flow create" form. leaders
// are offered in pool order.
func buildFlowCreateForm(leaders []*domain.User, f *flowForm) *huh.Form {
	leaderOpts := make([]huh.Option[string], 0, len(leaders))
	for _, u := range leaders {
		leaderOpts = append(leaderOpts, huh.NewOption(u.Name, u.ID))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Registration type").
				Options(
					huh.NewOption("One child (chain)", string(domain.OneChildTree)),
					huh.NewOption("Two children", string(domain.TwoChildrenTree)),
					huh.NewOption("Three children", string(domain.ThreeChildTree)),
				).
				Value(&f.RegistrationType),
			huh.NewSelect[string]().
				Title("Leader").
				Description("Occupies the root slot").
				Options(leaderOpts...).
				Value(&f.LeaderID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Users in one group").
				Description("Chain length for one-child flows").
				Value(&f.GroupSize).
				Validate(validateGroupSize),
		).WithHideFunc(func() bool {
			return f.RegistrationType != string(domain.OneChildTree)
		}),
		huh.NewGroup(
			huh.NewInput().
				Title("Registration opens").
				Placeholder("2026-03-02 09:00").
				Value(&f.From).
				Validate(validateTime),
			huh.NewInput().
				Title("Time for registration").
				Placeholder("2:00").
				Value(&f.Registration).
				Validate(validateHourMinute),
			huh.NewInput().
				Title("Time for accept").
				Placeholder("1:00").
				Value(&f.Accept).
				Validate(validateHourMinute),
			huh.NewConfirm().
				Title("Continue automatically?").
				Value(&f.AutoContinue),
			huh.NewText().
				Title("Comments").
				CharLimit(255).
				Value(&f.Comments),
		),
	).WithTheme(treeflowHuhTheme())
}

// config converts validated answers. Group size is ignored for multi-child flows.
func (f flowForm) config() (domain.FlowConfig, error) {
	cfg := domain.FlowConfig{
		RegistrationType: domain.RegistrationType(f.RegistrationType),
		LeaderID:         f.LeaderID,
		AutoContinue:     f.AutoContinue,
		Comments:         strings.TrimSpace(f.Comments),
	}
	var err error
	if cfg.RegistrationType == domain.OneChildTree {
		if cfg.HowMuchUsersInOneGroup, err = strconv.Atoi(strings.TrimSpace(f.GroupSize)); err != nil {
			return cfg, &domain.FieldError{Field: "how_much_users_in_one_group", Msg: "must be a number"}
		}
	}
	if cfg.MustBeRegisteredFrom, err = parseTime(f.From); err != nil {
		return cfg, &domain.FieldError{Field: "must_be_registered_from", Msg: err.Error()}
	}
	if cfg.TimeForRegistration, err = domain.ParseHourMinute(f.Registration); err != nil {
		return cfg, &domain.FieldError{Field: "time_for_registration", Msg: err.Error()}
	}
	if cfg.TimeForAccept, err = domain.ParseHourMinute(f.Accept); err != nil {
		return cfg, &domain.FieldError{Field: "time_for_accept", Msg: err.Error()}
	}
	return cfg, nil
}

// runFlowCreateWizard prompts for a flow config over the project's pool.
func runFlowCreateWizard(ctx context.Context, app *App, projectID string, seed flowForm) (domain.FlowConfig, error) {
	leaders, err := app.Projects.ListCandidates(ctx, projectID)
	if err != nil {
		return domain.FlowConfig{}, err
	}
	if len(leaders) == 0 {
		return domain.FlowConfig{}, fmt.Errorf("project has no candidates; add some with 'candidate add'")
	}
	form := seed
	if err := buildFlowCreateForm(leaders, &form).RunWithContext(ctx); err != nil {
		return domain.FlowConfig{}, err
	}
	return form.config()
}
