package api

import (
	"net/http"

	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	settings, err := d.Store.GetGateSettings(r.Context(), projectID)
	if err != nil {
		d.Logger.Error("failed to get settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get settings"})
		return
	}
	if settings == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Settings not found."})
		return
	}
	writeJSON(w, http.StatusOK, settingsToResp(settings))
}

func (d *Dependencies) handleReplaceSettings(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdateSettingsReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if detail := validateSettings(req); detail != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
		return
	}

	params := store.ReplaceGateSettingsParams{
		ThrottleMs:      d.Defaults.ThrottleInterval.Milliseconds(),
		IgnoredPrefixes: d.Defaults.IgnoredPrefixes,
		MaxTraceLines:   d.Defaults.MaxTraceLines,
	}
	if req.ThrottleMs != nil {
		params.ThrottleMs = *req.ThrottleMs
	}
	if req.IgnoredPrefixes != nil {
		params.IgnoredPrefixes = *req.IgnoredPrefixes
	}
	if req.MaxTraceLines != nil {
		params.MaxTraceLines = *req.MaxTraceLines
	}

	settings, err := d.Store.ReplaceGateSettings(r.Context(), projectID, params)
	if err != nil {
		d.Logger.Error("failed to replace settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace settings"})
		return
	}
	if settings == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Settings not found."})
		return
	}
	d.Gates.Apply(projectID, settings.Config())
	writeJSON(w, http.StatusOK, settingsToResp(settings))
}

func (d *Dependencies) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdateSettingsReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if detail := validateSettings(req); detail != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
		return
	}

	settings, err := d.Store.UpdateGateSettings(r.Context(), projectID, store.UpdateGateSettingsParams{
		ThrottleMs:      req.ThrottleMs,
		IgnoredPrefixes: req.IgnoredPrefixes,
		MaxTraceLines:   req.MaxTraceLines,
	})
	if err != nil {
		d.Logger.Error("failed to update settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update settings"})
		return
	}
	if settings == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Settings not found."})
		return
	}
	d.Gates.Apply(projectID, settings.Config())
	writeJSON(w, http.StatusOK, settingsToResp(settings))
}

func (d *Dependencies) handleGetStats(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	project, err := d.Store.GetProject(r.Context(), projectID)
	if err != nil {
		d.Logger.Error("failed to get project", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get stats"})
		return
	}
	if project == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Project not found."})
		return
	}

	stats, live := d.Gates.Stats(projectID)
	writeJSON(w, http.StatusOK, StatsResp{ProjectID: projectID, Live: live, Stats: stats})
}

// validateSettings returns a client-facing message for invalid fields, or "".
func validateSettings(req UpdateSettingsReq) string {
	if req.ThrottleMs != nil && *req.ThrottleMs < 0 {
		return "throttle_ms must be >= 0"
	}
	if req.MaxTraceLines != nil && *req.MaxTraceLines < 0 {
		return "max_trace_lines must be >= 0"
	}
	return ""
}

func settingsToResp(s *store.GateSettings) SettingsResp {
	prefixes := s.IgnoredPrefixes
	if prefixes == nil {
		prefixes = []string{}
	}
	return SettingsResp{
		ProjectID:       s.ProjectID,
		ThrottleMs:      s.ThrottleMs,
		IgnoredPrefixes: prefixes,
		MaxTraceLines:   s.MaxTraceLines,
		UpdatedAt:       s.UpdatedAt,
	}
}
