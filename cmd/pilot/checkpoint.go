package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"cp"},
		Short:   "List, restore and fork conversation checkpoints",
	}
	cmd.AddCommand(newCheckpointListCmd(a))
	cmd.AddCommand(newCheckpointRestoreCmd(a))
	cmd.AddCommand(newCheckpointForkCmd(a))
	return cmd
}

func newCheckpointListCmd(a *app) *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "list <session>",
		Short: "List a session's checkpoints, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cps, err := a.spaces.ListCheckpoints(cmd.Context(), workspaceID, args[0])
			if err != nil {
				return err
			}
			if len(cps) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints.")
				return nil
			}
			for _, cp := range cps {
				label := cp.Label
				if cp.Metadata.BranchName != "" {
					label += " [branch " + cp.Metadata.BranchName + "]"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s %s run=%s messages=%d %s\n",
					cp.ID, cp.Timestamp.Format("2006-01-02 15:04:05"), cp.RunID, cp.Metadata.MessageCount, label)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", agent.DefaultWorkspaceID, "Workspace")
	return cmd
}

func newCheckpointRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <checkpoint>",
		Short: "Copy a checkpoint into a new run of its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.spaces.RestoreCheckpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from run %s into run %s\n", r.Checkpoint.ID, r.SourceRunID, r.NewRunID)
			return nil
		},
	}
}

func newCheckpointForkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fork <checkpoint> <branch>",
		Short: "Restore a checkpoint as a named branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, r, err := a.spaces.ForkFromCheckpoint(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forked %s as branch %q: run %s, checkpoint %s\n", r.Checkpoint.ID, args[1], r.NewRunID, cp.ID)
			return nil
		},
	}
}
