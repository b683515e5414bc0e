package api

import (
	"net/http"

	"github.com/triage-ai/errgate/internal/gate"
	"go.uber.org/zap"
)

// handleIngest implements POST /v1/events.
// Auth middleware has already validated the Bearer token and injected the project.
// The caller cannot tell a forwarded event from a dropped one.
func (d *Dependencies) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	severity := gate.SeverityError
	if req.Severity != "" {
		s, err := gate.ParseSeverity(req.Severity)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		severity = s
	}

	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}

	g, err := d.Gates.Get(r.Context(), proj.ProjectID)
	if err != nil {
		d.Logger.Error("failed to load gate", zap.String("project_id", proj.ProjectID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to load gate settings"})
		return
	}

	g.Evaluate(req.Message, req.StackTrace, severity)
	writeJSON(w, http.StatusAccepted, IngestResponse{Status: "accepted"})
}

// handleReset implements POST /v1/reset. It clears the duplicate and throttle
// memory of the caller's gate, e.g. on a scene or session transition.
func (d *Dependencies) handleReset(w http.ResponseWriter, r *http.Request) {
	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}
	d.Gates.Reset(proj.ProjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
