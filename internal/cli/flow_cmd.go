package cli

import (
	"fmt"
	"time"

	"github.com/alexanderramin/treeflow/internal/cli/formatter"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/service"
	"github.com/spf13/cobra"
)

func newFlowCmd(app *App, actor actorFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run referral-registration flows",
	}

	cmd.AddCommand(
		newFlowCreateCmd(app, actor),
		newFlowShowCmd(app),
		newFlowParticipantsCmd(app),
		newFlowCandidatesCmd(app),
		newFlowRegisterCmd(app, actor),
		newFlowAcceptCmd(app, actor),
		newFlowAdvanceCmd(app, actor),
		newFlowContinueCmd(app, actor),
		newFlowExtendAcceptCmd(app, actor),
		newFlowRemoveCmd(app, actor),
		newFlowRemoveRestCmd(app, actor),
		newFlowNotifyCmd(app),
	)

	return cmd
}

// flowConfigFlags are shared by "flow create" and "flow continue".
type flowConfigFlags struct {
	group        int
	from         timeValue
	registration hourMinuteValue
	accept       hourMinuteValue
	offsets      hourMinuteListValue
	autoContinue bool
	comments     string
}

func (f *flowConfigFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.group, "group", 0, "Users in one group (one_child_tree only)")
	cmd.Flags().Var(&f.from, "from", "When registration opens (default now)")
	cmd.Flags().Var(&f.registration, "registration", "Time for registration")
	cmd.Flags().Var(&f.accept, "accept", "Time for accept")
	cmd.Flags().Var(&f.offsets, "offsets", "Extra registration time per level")
	cmd.Flags().BoolVar(&f.autoContinue, "auto-continue", false, "Advance levels without an admin continue")
	cmd.Flags().StringVar(&f.comments, "comments", "", "Admin comments")
}

func (f *flowConfigFlags) config(now time.Time) domain.FlowConfig {
	return domain.FlowConfig{
		HowMuchUsersInOneGroup: f.group,
		MustBeRegisteredFrom:   f.from.orNow(now),
		TimeForRegistration:    time.Duration(f.registration),
		TimeForAccept:          time.Duration(f.accept),
		LevelOffsets:           []time.Duration(f.offsets),
		AutoContinue:           f.autoContinue,
		Comments:               f.comments,
	}
}

func newFlowCreateCmd(app *App, actor actorFunc) *cobra.Command {
	var regType, leader string
	var cf flowConfigFlags

	cmd := &cobra.Command{
		Use:   "create PROJECT",
		Short: "Create a flow for an accepted project and open the root level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			p, err := app.Projects.GetProject(ctx, args[0])
			if err != nil {
				return err
			}

			var cfg domain.FlowConfig
			if regType == "" && app.interactive() {
				seed := flowForm{
					LeaderID:     leader,
					From:         cf.from.String(),
					Registration: cf.registration.String(),
					Accept:       cf.accept.String(),
					AutoContinue: cf.autoContinue,
					Comments:     cf.comments,
				}
				if cf.group > 0 {
					seed.GroupSize = fmt.Sprint(cf.group)
				}
				if cfg, err = runFlowCreateWizard(ctx, app, p.ID, seed); err != nil {
					return err
				}
				cfg.LevelOffsets = []time.Duration(cf.offsets)
			} else {
				cfg = cf.config(app.now())
				cfg.RegistrationType = domain.RegistrationType(regType)
				cfg.LeaderID = leader
			}

			flow, err := app.Flows.CreateAndStart(ctx, a, p.ID, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started flow %s for %s (%s)\n", flow.ID, p.DisplayID(), flow.RegistrationType)
			return nil
		},
	}

	cmd.Flags().StringVar(&regType, "type", "", "one_child_tree, two_children_tree or three_children_tree")
	cmd.Flags().StringVar(&leader, "leader", "", "User ID for the root slot")
	cf.register(cmd)

	return cmd
}

func newFlowShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show FLOW",
		Short: "Show a flow and its participant tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			names, err := userNames(ctx, app)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatFlow(view.Flow, view.Project, view.Tree, names, app.now()))
			return nil
		},
	}
}

func newFlowParticipantsCmd(app *App) *cobra.Command {
	var parent string
	var root bool

	cmd := &cobra.Command{
		Use:   "participants FLOW",
		Short: "List participants, optionally the children of one parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}

			var ps []*domain.Participant
			switch {
			case root:
				ps, err = app.Flows.ParticipantsByParent(ctx, view.Flow.ID, nil)
			case parent != "":
				pp, rerr := resolveParticipant(view, parent)
				if rerr != nil {
					return rerr
				}
				ps, err = app.Flows.ParticipantsByParent(ctx, view.Flow.ID, &pp.ID)
			default:
				ps = view.Tree.All()
			}
			if err != nil {
				return err
			}
			if len(ps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No participants.")
				return nil
			}
			names, err := userNames(ctx, app)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatParticipants(ps, names, app.now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "Only children of this participant")
	cmd.Flags().BoolVar(&root, "root", false, "Only the root level")
	cmd.MarkFlagsMutuallyExclusive("parent", "root")

	return cmd
}

func newFlowCandidatesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates FLOW",
		Short: "List pool users without a live slot in the flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			users, err := app.Flows.NotRegisteredCandidates(ctx, view.Flow.ID)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Every candidate holds a slot.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUserList(users))
			return nil
		},
	}
}

func newFlowRegisterCmd(app *App, actor actorFunc) *cobra.Command {
	var ref domain.Referral

	cmd := &cobra.Command{
		Use:   "register FLOW [PARTICIPANT]",
		Short: "Submit referral data for a slot (defaults to your own)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}

			var participantID string
			if len(args) == 2 {
				p, err := resolveParticipant(view, args[1])
				if err != nil {
					return err
				}
				participantID = p.ID
			} else {
				p, err := app.Flows.ParticipantForUser(ctx, view.Flow.ID, a.UserID)
				if err != nil {
					return fmt.Errorf("you hold no slot in this flow: %w", err)
				}
				participantID = p.ID
			}

			if err := app.Flows.RegisterParticipant(ctx, a, view.Flow.ID, participantID, ref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", shortID(participantID))
			return nil
		},
	}

	cmd.Flags().StringVar(&ref.URL, "url", "", "Referral URL")
	cmd.Flags().StringVar(&ref.Name, "name", "", "Referral name")
	cmd.Flags().StringVar(&ref.Login, "login", "", "Referral login")

	return cmd
}

func newFlowAcceptCmd(app *App, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "accept FLOW PARTICIPANT",
		Short: "Accept a registered participant as its sponsor or an admin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			p, err := resolveParticipant(view, args[1])
			if err != nil {
				return err
			}
			if err := app.Flows.AcceptRegistration(ctx, a, view.Flow.ID, p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s\n", shortID(p.ID))

			if p.ParentID != nil {
				future, err := app.Flows.NeedToAcceptChildrenInFuture(ctx, view.Flow.ID, *p.ParentID)
				if err == nil && future {
					fmt.Fprintln(cmd.OutOrStdout(), formatter.Dim("The sponsor has more children to accept later."))
				}
			}
			return nil
		},
	}
}

func newFlowAdvanceCmd(app *App, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "advance FLOW",
		Short: "Move to the next level if the current one is fully resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			moved, err := app.Flows.MoveToNextLevelIfPossible(ctx, a, view.Flow.ID)
			if err != nil {
				return err
			}
			if !moved {
				pending, err := app.Flows.HasNonAcceptedParticipants(ctx, view.Flow.ID)
				if err != nil {
					return fmt.Errorf("checking pending acceptances: %w", err)
				}
				msg := "Level not resolved yet."
				if pending {
					msg = "Level not resolved yet: registrations are waiting for acceptance."
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Flow moved on.")
			return nil
		},
	}
}

func newFlowContinueCmd(app *App, actor actorFunc) *cobra.Command {
	var cf flowConfigFlags

	cmd := &cobra.Command{
		Use:   "continue FLOW",
		Short: "Resume a paused flow with new timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			cfg := cf.config(app.now())
			if !cmd.Flags().Changed("group") {
				cfg.HowMuchUsersInOneGroup = view.Flow.HowMuchUsersInOneGroup
			}
			if err := app.Flows.ContinueRegistration(ctx, a, view.Flow.ID, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Flow continued.")
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}

func newFlowExtendAcceptCmd(app *App, actor actorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "extend-accept FLOW H:MM",
		Short: "Set the accept time of the active level and shift the chain below it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			d, err := domain.ParseHourMinute(args[1])
			if err != nil {
				return &domain.FieldError{Field: "time_for_accept", Msg: err.Error()}
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			if err := app.Flows.UpdateAcceptTime(ctx, a, view.Flow.ID, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accept time set to %s\n", domain.FormatHourMinute(d))
			return nil
		},
	}
}

func newFlowRemoveCmd(app *App, actor actorFunc) *cobra.Command {
	var reason, replacement, comments string
	var from timeValue
	var registration, accept hourMinuteValue

	cmd := &cobra.Command{
		Use:   "remove FLOW PARTICIPANT",
		Short: "Replace a participant with another user who inherits the slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			p, err := resolveParticipant(view, args[1])
			if err != nil {
				return err
			}
			req := service.RemoveRequest{
				ParticipantID:       p.ID,
				Reason:              reason,
				ReplacementUserID:   replacement,
				RegisteredFrom:      from.orNow(app.now()),
				TimeForRegistration: time.Duration(registration),
				TimeForAccept:       time.Duration(accept),
				Comments:            comments,
			}
			if err := app.Flows.RemoveParticipant(ctx, a, view.Flow.ID, req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s; %s inherits the slot\n", shortID(p.ID), replacement)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the participant is removed")
	cmd.Flags().StringVar(&replacement, "replacement", "", "User ID taking over the slot")
	cmd.Flags().Var(&from, "from", "When the inheritor's registration opens (default now)")
	cmd.Flags().Var(&registration, "registration", "Time for registration")
	cmd.Flags().Var(&accept, "accept", "Time for accept")
	cmd.Flags().StringVar(&comments, "comments", "", "Admin comments")
	_ = cmd.MarkFlagRequired("reason")
	_ = cmd.MarkFlagRequired("replacement")

	return cmd
}

func newFlowRemoveRestCmd(app *App, actor actorFunc) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "remove-rest FLOW PARTICIPANT",
		Short: "Remove a participant and everyone below it in a one-child flow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := actor(ctx)
			if err != nil {
				return err
			}
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			p, err := resolveParticipant(view, args[1])
			if err != nil {
				return err
			}
			if err := app.Flows.RemoveRestOfTheGroup(ctx, a, view.Flow.ID, p.ID, reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed the rest of the group; the flow is paused.")
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the group is cut")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func newFlowNotifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "notify FLOW",
		Short: "Tell participants whose registration window is open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view, err := resolveFlow(ctx, app, args[0])
			if err != nil {
				return err
			}
			n, err := app.Flows.NotifyOpenRegistrations(ctx, view.Flow.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notified %d participant(s)\n", n)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
