package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/pilot/pkg/agent"
	"github.com/entrhq/pilot/pkg/api"
	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// browserPool starts one browser per task and closes them all on shutdown.
type browserPool struct {
	flags *browserFlags

	mu   sync.Mutex
	open []*browser.PlaywrightActuator
}

func (p *browserPool) start() (*browser.PlaywrightActuator, error) {
	a, err := p.flags.start()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.open = append(p.open, a)
	p.mu.Unlock()
	return a, nil
}

func (p *browserPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.open {
		if err := a.Close(); err != nil {
			debugLog.Warnf("Failed to close browser: %v", err)
		}
	}
	p.open = nil
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		token string
		bf    browserFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API",
		Long: `Serve the HTTP control API: submit and steer tasks, answer approvals,
switch the inference backend and manage workspaces. Prometheus metrics are
exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if token == "" {
				token = os.Getenv("PILOT_API_TOKEN")
			}

			metricsHandler, err := metrics.InitMeterProvider(ctx, "pilot")
			if err != nil {
				return fmt.Errorf("failed to init metrics: %w", err)
			}
			if err := metrics.InitMetrics(ctx); err != nil {
				return fmt.Errorf("failed to init metrics: %w", err)
			}

			router, err := a.inference(ctx)
			if err != nil {
				return err
			}
			gate := a.newGate()
			pool := &browserPool{flags: &bf}
			defer pool.close()

			tasks := api.NewTaskManager(func(req api.TaskRequest) (*agent.Executor, error) {
				workspaceID := req.WorkspaceID
				if workspaceID == "" {
					workspaceID = agent.DefaultWorkspaceID
				}
				if err := a.ensureWorkspace(ctx, workspaceID); err != nil {
					return nil, err
				}
				actuator, err := pool.start()
				if err != nil {
					return nil, err
				}
				deps, err := a.deps(ctx, actuator, gate)
				if err != nil {
					return nil, err
				}
				return agent.NewExecutor(req.Task, deps, a.executorOptions(workspaceID, req.SessionID)...)
			})
			defer tasks.Close()

			srv := &http.Server{
				Addr: addr,
				Handler: api.NewRouter(api.Deps{
					Tasks:      tasks,
					Gate:       gate,
					Inference:  router,
					Workspaces: a.spaces,
					Memory:     a.memory,
					Metrics:    metricsHandler,
					Token:      token,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				debugLog.Infof("Control API listening on %s", addr)
				fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8420", "Listen address")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token required on /v1 (env: PILOT_API_TOKEN)")
	bf.register(cmd)
	return cmd
}
