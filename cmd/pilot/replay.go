package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/executor/cli"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		workspaceID string
		skip        bool
		bf          browserFlags
	)

	cmd := &cobra.Command{
		Use:   "replay <session>",
		Short: "Re-execute the recorded actions of a session's latest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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
			ex, err := agent.NewExecutor("replay session "+args[0], deps, a.executorOptions(workspaceID, args[0])...)
			if err != nil {
				return err
			}

			s := a.cfg.Executor.Settings()
			runner := cli.NewExecutor(ex,
				cli.WithGate(gate),
				cli.WithWriter(cmd.OutOrStdout()),
				cli.WithReader(cmd.InOrStdin()),
			)
			_, err = runner.Replay(ctx, args[0], agent.ReplayOptions{
				MaxRetries:          s.ReplayMaxRetries,
				SkipFailures:        skip,
				DelayBetweenActions: s.ReplayDelay,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", agent.DefaultWorkspaceID, "Workspace the session belongs to")
	cmd.Flags().BoolVar(&skip, "skip-failures", false, "Continue past steps that fail every attempt")
	bf.register(cmd)
	return cmd
}
