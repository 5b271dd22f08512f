package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dataDir    string
	userID     string
	inference  config.Overrides
}

// execute runs the command line against a fresh app and releases its
// stores whether or not the command succeeded.
func execute(ctx context.Context, version string, args []string, out io.Writer) error {
	a := &app{}
	defer func() {
		if err := a.close(); err != nil {
			debugLog.Warnf("Failed to close store: %v", err)
		}
	}()

	cmd := newRootCmd(version, a)
	if args != nil {
		cmd.SetArgs(args)
	}
	if out != nil {
		cmd.SetOut(out)
	}
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(version string, a *app) *cobra.Command {
	flags := &globalFlags{}
	a.flags = flags

	cmd := &cobra.Command{
		Use:          "pilot",
		Short:        "Pilot: a browser agent with memory, context budgeting and human approval",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default: ~/.pilot/config.yaml)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Data directory for the sqlite store (default: ~/.pilot/data, env: PILOT_DATA_DIR)")
	pf.StringVar(&flags.userID, "user", agent.DefaultUserID, "User id that owns every namespace")
	pf.StringVar(&flags.inference.Preference, "inference", "", "Preferred inference backend: local or remote")
	pf.StringVar(&flags.inference.LocalBaseURL, "local-base-url", "", "Base URL of the local OpenAI-compatible server")
	pf.StringVar(&flags.inference.LocalModel, "local-model", "", "Local model name")
	pf.StringVar(&flags.inference.RemoteProvider, "remote-provider", "", "Remote provider: openai or gemini")
	pf.StringVar(&flags.inference.RemoteModel, "model", "", "Remote model name")
	pf.StringVar(&flags.inference.RemoteBaseURL, "base-url", "", "Remote API base URL (OpenAI-compatible)")
	pf.StringVar(&flags.inference.RemoteAPIKey, "api-key", "", "Remote API key (or set OPENAI_API_KEY / GEMINI_API_KEY)")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newHeadlessCmd(a))
	cmd.AddCommand(newReplayCmd(a))
	cmd.AddCommand(newWorkspaceCmd(a))
	cmd.AddCommand(newMemoryCmd(a))
	cmd.AddCommand(newCheckpointCmd(a))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Version = version
	return cmd
}

// resolveDataDir applies flag > environment > default.
func resolveDataDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("PILOT_DATA_DIR"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pilot", "data"), nil
}

func applyLogLevel(cfg *config.Config) {
	if err := logging.SetLevel(cfg.Logging.Level()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
