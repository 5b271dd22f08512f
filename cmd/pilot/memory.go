package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/agent/memory"
)

func newMemoryCmd(a *app) *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and share a workspace's memory",
	}
	cmd.PersistentFlags().StringVarP(&workspaceID, "workspace", "w", agent.DefaultWorkspaceID, "Workspace")
	cmd.AddCommand(newMemoryStatsCmd(a, &workspaceID))
	cmd.AddCommand(newMemoryFactsCmd(a, &workspaceID))
	cmd.AddCommand(newMemoryPatternsCmd(a, &workspaceID))
	cmd.AddCommand(newMemoryExportCmd(a, &workspaceID))
	cmd.AddCommand(newMemoryImportCmd(a, &workspaceID))
	return cmd
}

func newMemoryStatsCmd(a *app, workspaceID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts and token totals per memory tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.memory.GetMemoryStats(cmd.Context(), *workspaceID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Workspace %s\n", st.WorkspaceID)
			for _, row := range []struct {
				name string
				t    memory.TierStats
			}{
				{"episodes", st.Episodes},
				{"facts", st.Facts},
				{"patterns", st.Patterns},
			} {
				_, _ = fmt.Fprintf(out, "- %s: %d items, %d tokens\n", row.name, row.t.Count, row.t.TotalTokens)
			}
			_, _ = fmt.Fprintf(out, "Efficiency %.2f, average success rate %.2f\n", st.Efficiency, st.AverageSuccessRate)
			return nil
		},
	}
}

func newMemoryFactsCmd(a *app, workspaceID *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "facts <query>",
		Short: "Search semantic facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := a.memory.SearchFacts(cmd.Context(), *workspaceID, args[0], limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No facts.")
				return nil
			}
			for _, m := range matches {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s = %s (score %.2f)\n", m.Fact.Key, m.Fact.Value, m.Score)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	return cmd
}

func newMemoryPatternsCmd(a *app, workspaceID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List learned workflow patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			pats, err := a.memory.ListPatterns(cmd.Context(), *workspaceID)
			if err != nil {
				return err
			}
			if len(pats) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No patterns.")
				return nil
			}
			for _, p := range pats {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s (used=%d success=%.2f)\n", p.Name, p.UsageCount, p.SuccessRate)
			}
			return nil
		},
	}
}

func newMemoryExportCmd(a *app, workspaceID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write workflow patterns as playbook files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.memory.ExportPlaybooks(cmd.Context(), *workspaceID, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d playbooks to %s\n", len(paths), args[0])
			return nil
		},
	}
}

func newMemoryImportCmd(a *app, workspaceID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load playbook files as workflow patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.memory.ImportPlaybooks(cmd.Context(), *workspaceID, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d playbooks into %s\n", n, *workspaceID)
			return nil
		},
	}
}
