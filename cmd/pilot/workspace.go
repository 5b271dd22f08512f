package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/workspace"
)

func newWorkspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage workspaces",
	}
	cmd.AddCommand(newWorkspaceCreateCmd(a))
	cmd.AddCommand(newWorkspaceListCmd(a))
	cmd.AddCommand(newWorkspaceAutonomyCmd(a))
	cmd.AddCommand(newWorkspaceApproveCmd(a))
	cmd.AddCommand(newWorkspaceRemoveCmd(a))
	return cmd
}

func newWorkspaceCreateCmd(a *app) *cobra.Command {
	var (
		name     string
		color    string
		autonomy int
	)
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := workspace.Config{}
			if name != "" {
				cfg.Name = &name
			}
			if color != "" {
				cfg.Color = &color
			}
			if cmd.Flags().Changed("autonomy") {
				cfg.AutonomyLevel = &autonomy
			}
			ws, err := a.spaces.Create(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %q (%s, autonomy %d)\n", ws.Name, ws.ID, ws.AutonomyLevel)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the id)")
	cmd.Flags().StringVar(&color, "color", "", "Display color")
	cmd.Flags().IntVar(&autonomy, "autonomy", workspace.DefaultAutonomy, "Autonomy level 1 (ask for everything) to 5 (ask for nothing)")
	return cmd
}

func newWorkspaceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			spaces, err := a.spaces.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(spaces) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No workspaces.")
				return nil
			}
			for _, ws := range spaces {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s %q (autonomy=%d trust=%.2f)\n", ws.ID, ws.Name, ws.AutonomyLevel, ws.TrustScore)
			}
			return nil
		},
	}
}

func newWorkspaceAutonomyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autonomy <id> <level>",
		Short: "Set a workspace's autonomy level (1-5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid level %q: %w", args[1], err)
			}
			ws, err := a.spaces.SetAutonomyLevel(cmd.Context(), args[0], level)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s autonomy is now %d\n", ws.ID, ws.AutonomyLevel)
			return nil
		},
	}
}

func newWorkspaceApproveCmd(a *app) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "approve <id> <action-type>",
		Short: "Grant (or --revoke) a standing approval for an action type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionType := strings.ToLower(strings.TrimSpace(args[1]))
			ws, err := a.spaces.SetApprovalPolicy(cmd.Context(), args[0], actionType, !revoke)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s: %s standing approval = %v\n", ws.ID, actionType, ws.ApprovalPolicies[actionType])
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Require approval again")
	return cmd
}

func newWorkspaceRemoveCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a workspace and its runs and checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !yes {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Remove workspace %q and all its data? Type the id to confirm:\n", id)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !strings.Contains(err.Error(), "EOF") {
					return err
				}
				if strings.TrimSpace(line) != id {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			if err := a.spaces.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed workspace %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
