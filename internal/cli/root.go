package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/service"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

// WorkerRunner runs background jobs until ctx is cancelled.
type WorkerRunner interface {
	Run(ctx context.Context) error
}

// App holds references to all services used by CLI commands.
type App struct {
	Projects service.ProjectService
	Flows    service.FlowService

	// Worker is nil when the binary was built without a job queue.
	Worker      WorkerRunner
	MetricsAddr string

	Clock clock.PassiveClock

	// IsInteractive reports whether prompts can be shown. Nil means never.
	IsInteractive func() bool
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock.Now().UTC()
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}

// NewRootCmd creates the top-level "treeflow" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	var as string

	root := &cobra.Command{
		Use:           "treeflow",
		Short:         "Referral-registration flows over participant trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&as, "as", "", "User ID performing the action")

	actor := func(ctx context.Context) (domain.Actor, error) {
		if as == "" {
			return domain.Actor{}, fmt.Errorf("--as <user-id> is required for this command")
		}
		u, err := app.Projects.GetUser(ctx, as)
		if err != nil {
			return domain.Actor{}, fmt.Errorf("resolving --as %q: %w", as, err)
		}
		return domain.ActorFor(u), nil
	}

	root.AddCommand(
		newProjectCmd(app),
		newUserCmd(app),
		newCandidateCmd(app),
		newFlowCmd(app, actor),
		newWorkerCmd(app),
	)

	return root
}

// actorFunc resolves the --as user into an Actor.
type actorFunc func(ctx context.Context) (domain.Actor, error)
