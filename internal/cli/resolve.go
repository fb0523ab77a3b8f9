package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/treeflow/internal/cli/formatter"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/service"
)

// resolveFlow accepts a flow ID or the short ID / ID of its project.
func resolveFlow(ctx context.Context, app *App, ref string) (*service.FlowView, error) {
	if ref == "" {
		return nil, fmt.Errorf("flow reference is required")
	}
	view, err := app.Flows.Show(ctx, ref)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	p, perr := app.Projects.GetProject(ctx, ref)
	if perr != nil {
		return nil, fmt.Errorf("flow or project not found: %q", ref)
	}
	f, err := app.Flows.FlowForProject(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("project %s has no flow: %w", p.DisplayID(), err)
	}
	return app.Flows.Show(ctx, f.ID)
}

// resolveParticipant matches a participant ID or an unambiguous ID prefix
// within the flow's tree.
func resolveParticipant(view *service.FlowView, input string) (*domain.Participant, error) {
	if input == "" {
		return nil, fmt.Errorf("participant ID is required")
	}
	if p, ok := view.Tree.Get(input); ok {
		return p, nil
	}

	var matches []*domain.Participant
	for _, p := range view.Tree.All() {
		if strings.HasPrefix(p.ID, input) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("participant not found: %q", input)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("participant ID prefix %q is ambiguous (%d matches)", input, len(matches))
	}
}

func userNames(ctx context.Context, app *App) (formatter.Names, error) {
	users, err := app.Projects.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(formatter.Names, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
