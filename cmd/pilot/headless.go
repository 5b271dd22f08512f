package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/executor/headless"
)

func newHeadlessCmd(a *app) *cobra.Command {
	var (
		task      string
		outputDir string
		bf        browserFlags
	)

	cmd := &cobra.Command{
		Use:   "headless [run.yaml]",
		Short: "Run a task unattended under safety constraints",
		Long: `Run a task without a human. Approval requests are answered from the run
file's constraints and execution.json, summary.md and metrics.json are
written to the artifact directory. Exits non-zero when the run fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := headless.DefaultConfig()
			if len(args) == 1 {
				loaded, err := headless.LoadConfig(args[0])
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if task != "" {
				cfg.Task = task
			}
			if cfg.Task == "" {
				return errors.New("a run file or --task is required")
			}
			if outputDir != "" {
				cfg.Artifacts.OutputDir = outputDir
			}
			if cfg.WorkspaceID == "" {
				cfg.WorkspaceID = agent.DefaultWorkspaceID
			}

			ctx := cmd.Context()
			if err := a.ensureWorkspace(ctx, cfg.WorkspaceID); err != nil {
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
			ex, err := agent.NewExecutor(cfg.Task, deps, a.executorOptions(cfg.WorkspaceID, cfg.SessionID)...)
			if err != nil {
				return err
			}
			runner, err := headless.NewExecutor(ex, gate, cfg, headless.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				ex.Close()
				return err
			}
			_, err = runner.Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "Task to run (overrides the run file)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Artifact directory (overrides the run file)")
	bf.register(cmd)
	return cmd
}
