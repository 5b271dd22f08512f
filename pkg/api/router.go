// Package api exposes the executor, the approval gate, the inference
// router and the workspace store over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/inference"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/workspace"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("api")
	if err != nil {
		debugLog.Warnf("Failed to initialize api logger, using stderr fallback: %v", err)
	}
}

// InferenceControl is the part of the inference router the API drives.
type InferenceControl interface {
	Status(ctx context.Context) inference.Status
	SetPreference(p string) error
}

// Deps are the services behind the routes. Tasks is required; routes of
// a nil service answer 404.
type Deps struct {
	Tasks      *TaskManager
	Gate       *approval.Gate
	Inference  InferenceControl
	Workspaces *workspace.Store
	Memory     *memory.Store
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Token enables bearer authentication of /v1 routes.
	Token string
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	r.Get("/health", newHealthHandler(d).Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(d.Token))

		taskH := &taskHandler{tasks: d.Tasks}
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskH.List)
			r.Post("/", taskH.Create)
			r.Get("/{id}", taskH.Get)
			r.Post("/{id}/pause", taskH.Pause)
			r.Post("/{id}/resume", taskH.Resume)
			r.Post("/{id}/cancel", taskH.Cancel)
			r.Post("/{id}/followup", taskH.FollowUp)
		})

		if d.Gate != nil {
			approvalH := &approvalHandler{gate: d.Gate}
			r.Route("/approvals", func(r chi.Router) {
				r.Get("/", approvalH.List)
				r.Post("/{id}", approvalH.Respond)
			})
		}

		if d.Inference != nil {
			inferenceH := &inferenceHandler{router: d.Inference}
			r.Get("/inference", inferenceH.Get)
			r.Put("/inference", inferenceH.Put)
		}

		if d.Workspaces != nil {
			workspaceH := &workspaceHandler{spaces: d.Workspaces, memory: d.Memory}
			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspaceH.List)
				r.Post("/", workspaceH.Create)
				r.Get("/{id}", workspaceH.Get)
				r.Put("/{id}/autonomy", workspaceH.SetAutonomy)
				r.Get("/{id}/memory/stats", workspaceH.MemoryStats)
			})
		}
	})

	return r
}
