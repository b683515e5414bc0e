package api

import (
	"time"

	"github.com/triage-ai/errgate/internal/gate"
)

// --- POST /v1/events ---

// IngestRequest is the JSON body for POST /v1/events.
type IngestRequest struct {
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace"`
	Severity   string `json:"severity"`
}

// IngestResponse is returned for every accepted event, forwarded or dropped.
type IngestResponse struct {
	Status string `json:"status"`
}

// --- Project CRUD ---

// CreateProjectReq is the JSON body for POST /api/errgate/projects.
type CreateProjectReq struct {
	Name string `json:"name"`
}

// CreateProjectResp includes the plaintext API key (shown once).
type CreateProjectResp struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	APIKey       string       `json:"api_key"`
	APIKeyPrefix string       `json:"api_key_prefix"`
	Settings     SettingsResp `json:"settings"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ProjectResp is a project without its key material.
type ProjectResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Gate settings ---

// UpdateSettingsReq is the JSON body for PATCH and PUT settings endpoints.
// PUT treats absent fields as server defaults.
type UpdateSettingsReq struct {
	ThrottleMs      *int64    `json:"throttle_ms,omitempty"`
	IgnoredPrefixes *[]string `json:"ignored_prefixes,omitempty"`
	MaxTraceLines   *int      `json:"max_trace_lines,omitempty"`
}

// SettingsResp is a project's gate configuration.
type SettingsResp struct {
	ProjectID       string    `json:"project_id"`
	ThrottleMs      int64     `json:"throttle_ms"`
	IgnoredPrefixes []string  `json:"ignored_prefixes"`
	MaxTraceLines   int       `json:"max_trace_lines"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StatsResp holds a project's gate counters. Live is false when no event has
// reached the project's gate since the server started.
type StatsResp struct {
	ProjectID string     `json:"project_id"`
	Live      bool       `json:"live"`
	Stats     gate.Stats `json:"stats"`
}

// --- Host lifecycle ---

// HostReq is the JSON body for PUT /api/errgate/host. Absent fields are left
// unchanged.
type HostReq struct {
	Active          *bool `json:"active,omitempty"`
	BuildInProgress *bool `json:"build_in_progress,omitempty"`
}

// HostResp reports the lifecycle flags.
type HostResp struct {
	Active          bool `json:"active"`
	BuildInProgress bool `json:"build_in_progress"`
}

// --- Forwarded events ---

// EventResp is a forwarded event as stored in ClickHouse.
type EventResp struct {
	EventID     string    `json:"event_id"`
	ProjectID   string    `json:"project_id"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	MessageHash string    `json:"message_hash"`
	Trace       string    `json:"trace"`
	TraceLines  uint32    `json:"trace_lines"`
	Source      string    `json:"source"`
}

// EventListResp is a page of forwarded events.
type EventListResp struct {
	Events   []EventResp `json:"events"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
