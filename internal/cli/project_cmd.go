package cli

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/treeflow/internal/cli/formatter"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/spf13/cobra"
)

func newProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(
		newProjectAddCmd(app),
		newProjectListCmd(app),
	)

	return cmd
}

func newProjectAddCmd(app *App) *cobra.Command {
	var name, shortID string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an accepted project",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &domain.Project{
				ShortID: strings.ToUpper(shortID),
				Name:    name,
			}
			if err := app.Projects.CreateProject(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s [%s]\n", p.Name, p.ShortID)
			return nil
		},
	}

	cmd.Flags().StringVar(&shortID, "id", "", "Short ID (3-6 uppercase letters + 2-4 digits, e.g. REF01)")
	cmd.Flags().StringVar(&name, "name", "", "Project name")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newProjectListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := app.Projects.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatProjectList(projects))
			return nil
		},
	}
}

func newUserCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd(app), newUserListCmd(app))
	return cmd
}

func newUserAddCmd(app *App) *cobra.Command {
	var id, name, email string
	var admin bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := &domain.User{ID: id, Name: name, Email: email, IsAdmin: admin}
			if err := app.Projects.CreateUser(cmd.Context(), u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Name, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "User ID (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newUserListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := app.Projects.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUserList(users))
			return nil
		},
	}
}

func newCandidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidate",
		Short: "Manage a project's candidate pool",
	}
	cmd.AddCommand(newCandidateAddCmd(app), newCandidateListCmd(app))
	return cmd
}

func newCandidateAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add PROJECT USER...",
		Short: "Append users to the candidate pool in the given order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := app.Projects.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			for _, userID := range args[1:] {
				if err := app.Projects.AddCandidate(ctx, p.ID, userID); err != nil {
					return fmt.Errorf("adding %s: %w", userID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d candidate(s) to %s\n", len(args)-1, p.DisplayID())
			return nil
		},
	}
}

func newCandidateListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "Show the candidate pool in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := app.Projects.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			users, err := app.Projects.ListCandidates(ctx, p.ID)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No candidates.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUserList(users))
			return nil
		},
	}
}
