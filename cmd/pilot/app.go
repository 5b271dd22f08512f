package main

import (
	"context"
	"fmt"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/agent/approval"
	agentcontext "github.com/entrhq/pilot/pkg/agent/context"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/agent/todo"
	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/inference"
	"github.com/entrhq/pilot/pkg/kv"
	"github.com/entrhq/pilot/pkg/llm/tokenizer"
	"github.com/entrhq/pilot/pkg/workspace"
)

// bridgeWorkers bounds concurrent calls to the remote provider.
const bridgeWorkers = 4

// app holds what the subcommands share. Stores open in load; the inference
// router is built on first use so offline commands never touch a provider.
type app struct {
	flags *globalFlags

	cfg    *config.Config
	store  *kv.SQLiteStore
	router *inference.Router

	memory *memory.Store
	todos  *todo.Store
	spaces *workspace.Store
}

func (a *app) load() error {
	cfg, err := config.New(a.flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	applyLogLevel(cfg)

	dir, err := resolveDataDir(a.flags.dataDir)
	if err != nil {
		return err
	}
	store, err := kv.OpenSQLite(dir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store

	tok := tokenizer.New()
	a.memory = memory.NewStore(store, a.flags.userID, memory.WithTokenizer(tok))
	a.todos = todo.NewStore(store, a.flags.userID)
	a.spaces = workspace.NewStore(store, a.flags.userID,
		workspace.WithDefaults(cfg.Approval.AutonomyLevel(), cfg.Approval.StandingApprovals()))
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// inference builds the router once. A remote backend that cannot be built
// is logged and skipped; the router then serves local only.
func (a *app) inference(ctx context.Context) (*inference.Router, error) {
	if a.router != nil {
		return a.router, nil
	}
	settings := config.Resolve(a.cfg.Inference.Snapshot(), a.flags.inference)

	local, err := config.BuildLocalProvider(settings)
	if err != nil {
		return nil, err
	}
	opts := []inference.RouterOption{
		inference.WithLocal(local),
		inference.WithPreferences(a.cfg),
	}
	if remote, err := config.BuildRemoteProvider(ctx, settings); err != nil {
		debugLog.Warnf("Remote inference unavailable: %v", err)
	} else {
		opts = append(opts, inference.WithRemote(inference.NewBridge(remote, bridgeWorkers)))
	}
	if settings.Preference != "" && settings.Preference != a.cfg.GetInferencePreference() {
		if err := a.cfg.SaveInferencePreference(settings.Preference); err != nil {
			return nil, err
		}
	}

	router, err := inference.NewRouter(opts...)
	if err != nil {
		return nil, err
	}
	a.router = router
	return router, nil
}

// newGate builds an approval gate from the executor settings.
func (a *app) newGate() *approval.Gate {
	s := a.cfg.Executor.Settings()
	return approval.NewGate(
		approval.WithTimeout(s.ApprovalTimeout),
		approval.WithTimeoutApproves(s.ApprovalTimeoutDefault == config.TimeoutApprove),
		approval.WithTrustRecorder(a.spaces),
	)
}

// deps wires every store around the given browser and gate.
func (a *app) deps(ctx context.Context, actuator browser.Actuator, gate *approval.Gate) (agent.Deps, error) {
	router, err := a.inference(ctx)
	if err != nil {
		return agent.Deps{}, err
	}
	firewall, err := browser.NewFirewall(a.cfg.Firewall.Rules())
	if err != nil {
		return agent.Deps{}, fmt.Errorf("invalid firewall rules: %w", err)
	}
	engine := agentcontext.NewEngine(a.store, a.flags.userID,
		agentcontext.WithTokenizer(tokenizer.New()),
		agentcontext.WithInferrer(router))

	return agent.Deps{
		Inference:  router,
		Actuator:   actuator,
		KV:         a.store,
		Memory:     a.memory,
		Context:    engine,
		Todos:      a.todos,
		Workspaces: a.spaces,
		Gate:       gate,
		Firewall:   firewall,
	}, nil
}

// ensureWorkspace creates the workspace on first use.
func (a *app) ensureWorkspace(ctx context.Context, id string) error {
	if _, err := a.spaces.Get(ctx, id); err == nil {
		return nil
	}
	name := id
	_, err := a.spaces.Create(ctx, id, workspace.Config{Name: &name})
	return err
}

// executorOptions applies the configured limits to one executor.
func (a *app) executorOptions(workspaceID, sessionID string) []agent.Option {
	return []agent.Option{
		agent.WithUserID(a.flags.userID),
		agent.WithWorkspace(workspaceID),
		agent.WithSession(sessionID),
		agent.WithSettings(a.cfg.Executor.Settings()),
		agent.WithContextSettings(a.cfg.Context.Settings()),
	}
}
