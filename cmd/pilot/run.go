package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/executor/cli"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		workspaceID string
		sessionID   string
		quiet       bool
		interactive bool
		bf          browserFlags
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one browser task in the terminal",
		Long: `Run a task against a real browser. Events are printed as they arrive and
approval requests are answered on stdin. With --interactive the session stays
open for follow-up tasks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.ensureWorkspace(ctx, workspaceID); err != nil {
				return err
			}

			actuator, err := bf.start()
			if err != nil {
				return err
			}
			defer func() {
				if err := actuator.Close(); err != nil {
					debugLog.Warnf("Failed to close browser: %v", err)
				}
			}()

			gate := a.newGate()
			deps, err := a.deps(ctx, actuator, gate)
			if err != nil {
				return err
			}
			ex, err := agent.NewExecutor(strings.Join(args, " "), deps, a.executorOptions(workspaceID, sessionID)...)
			if err != nil {
				return err
			}

			runner := cli.NewExecutor(ex,
				cli.WithGate(gate),
				cli.WithWriter(cmd.OutOrStdout()),
				cli.WithReader(cmd.InOrStdin()),
				cli.WithShowReasoning(!quiet),
				cli.WithFollowUps(interactive),
			)
			res, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			debugLog.Infof("Task %s finished with status %s after %d steps", res.TaskID, res.Status, res.Steps)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", agent.DefaultWorkspaceID, "Workspace to run in")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (default: the task id)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide plans and state changes")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Read follow-up tasks after each run")
	bf.register(cmd)
	return cmd
}
