package api

import (
	"context"
	"net/http"

	"github.com/triage-ai/errgate/internal/auth"
	"github.com/triage-ai/errgate/internal/chread"
	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/registry"
	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
)

// ProjectStore is the subset of *store.Store the handlers use.
type ProjectStore interface {
	CreateProject(ctx context.Context, name string, defaults gate.Config) (*store.Project, *store.GateSettings, string, error)
	ListProjects(ctx context.Context) ([]*store.Project, error)
	GetProject(ctx context.Context, id string) (*store.Project, error)
	DeleteProject(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, id string) (*store.Project, string, error)
	GetGateSettings(ctx context.Context, projectID string) (*store.GateSettings, error)
	UpdateGateSettings(ctx context.Context, projectID string, params store.UpdateGateSettingsParams) (*store.GateSettings, error)
	ReplaceGateSettings(ctx context.Context, projectID string, params store.ReplaceGateSettingsParams) (*store.GateSettings, error)
}

// EventReader is the subset of *chread.Reader the handlers use.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, projectID, eventID string) (*chread.EventRow, error)
	GetSummary(ctx context.Context, projectID string, days int) (*chread.Summary, error)
}

// keyRevoker is implemented by authenticators that cache keys.
type keyRevoker interface {
	ForgetProject(projectID string)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    ProjectStore
	Auth     auth.Authenticator
	Gates    *registry.Registry
	Host     *gate.Lifecycle
	Reader   EventReader // nil if ClickHouse unavailable
	Defaults gate.Config
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Ingest (auth required via Bearer egk_ token)
	mux.HandleFunc("POST /v1/events", deps.authMiddleware(deps.handleIngest))
	mux.HandleFunc("POST /v1/reset", deps.authMiddleware(deps.handleReset))

	// Project CRUD (no auth, dashboard auth added later)
	mux.HandleFunc("POST /api/errgate/projects", deps.handleCreateProject)
	mux.HandleFunc("GET /api/errgate/projects", deps.handleListProjects)
	mux.HandleFunc("GET /api/errgate/projects/{project_id}", deps.handleGetProject)
	mux.HandleFunc("DELETE /api/errgate/projects/{project_id}", deps.handleDeleteProject)
	mux.HandleFunc("POST /api/errgate/projects/{project_id}/rotate-key", deps.handleRotateKey)

	// Gate settings and counters
	mux.HandleFunc("GET /api/errgate/projects/{project_id}/settings", deps.handleGetSettings)
	mux.HandleFunc("PUT /api/errgate/projects/{project_id}/settings", deps.handleReplaceSettings)
	mux.HandleFunc("PATCH /api/errgate/projects/{project_id}/settings", deps.handleUpdateSettings)
	mux.HandleFunc("GET /api/errgate/projects/{project_id}/stats", deps.handleGetStats)

	// Host lifecycle
	mux.HandleFunc("GET /api/errgate/host", deps.handleGetHost)
	mux.HandleFunc("PUT /api/errgate/host", deps.handleSetHost)

	// Forwarded events (ClickHouse)
	mux.HandleFunc("GET /api/errgate/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/errgate/events/{event_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/errgate/summary", deps.handleGetSummary)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

// revokeKeys drops cached ingest keys of a project after rotation or deletion.
func (d *Dependencies) revokeKeys(projectID string) {
	if r, ok := d.Auth.(keyRevoker); ok {
		r.ForgetProject(projectID)
	}
}
