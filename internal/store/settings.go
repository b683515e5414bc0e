package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triage-ai/errgate/internal/gate"
)

// GateSettings represents a row in the gate_settings table.
type GateSettings struct {
	ProjectID       string
	ThrottleMs      int64
	IgnoredPrefixes []string
	MaxTraceLines   int
	UpdatedAt       time.Time
}

// Config converts stored settings into a gate configuration.
func (gs *GateSettings) Config() gate.Config {
	return gate.Config{
		ThrottleInterval: time.Duration(gs.ThrottleMs) * time.Millisecond,
		IgnoredPrefixes:  append([]string(nil), gs.IgnoredPrefixes...),
		MaxTraceLines:    gs.MaxTraceLines,
	}
}

// UpdateGateSettingsParams holds optional fields for partial updates.
type UpdateGateSettingsParams struct {
	ThrottleMs      *int64    // nil = don't change
	IgnoredPrefixes *[]string // nil = don't change
	MaxTraceLines   *int      // nil = don't change
}

// ReplaceGateSettingsParams holds every field for a full replace.
type ReplaceGateSettingsParams struct {
	ThrottleMs      int64
	IgnoredPrefixes []string
	MaxTraceLines   int
}

const settingsColumns = `project_id, throttle_ms, ignored_prefixes, max_trace_lines, updated_at`

func scanGateSettings(row interface{ Scan(...any) error }) (*GateSettings, error) {
	var gs GateSettings
	var prefixes []byte
	if err := row.Scan(&gs.ProjectID, &gs.ThrottleMs, &prefixes, &gs.MaxTraceLines, &gs.UpdatedAt); err != nil {
		return nil, err
	}
	if len(prefixes) > 0 {
		if err := json.Unmarshal(prefixes, &gs.IgnoredPrefixes); err != nil {
			return nil, fmt.Errorf("decode ignored_prefixes: %w", err)
		}
	}
	return &gs, nil
}

// GetGateSettings returns the settings for a project, or nil if not found.
func (s *Store) GetGateSettings(ctx context.Context, projectID string) (*GateSettings, error) {
	gs, err := scanGateSettings(s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM gate_settings WHERE project_id = $1`, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetGateSettings: %w", err)
	}
	return gs, nil
}

// UpdateGateSettings applies a partial update. Only non-nil fields change.
func (s *Store) UpdateGateSettings(ctx context.Context, projectID string, params UpdateGateSettingsParams) (*GateSettings, error) {
	var prefixes any
	if params.IgnoredPrefixes != nil {
		raw, err := encodePrefixes(*params.IgnoredPrefixes)
		if err != nil {
			return nil, fmt.Errorf("UpdateGateSettings: %w", err)
		}
		prefixes = raw
	}

	gs, err := scanGateSettings(s.db.QueryRowContext(ctx, `
		UPDATE gate_settings SET
			throttle_ms      = COALESCE($2, throttle_ms),
			ignored_prefixes = COALESCE($3::jsonb, ignored_prefixes),
			max_trace_lines  = COALESCE($4, max_trace_lines),
			updated_at       = now()
		WHERE project_id = $1
		RETURNING `+settingsColumns,
		projectID, params.ThrottleMs, prefixes, params.MaxTraceLines,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateGateSettings: %w", err)
	}
	return gs, nil
}

// ReplaceGateSettings fully replaces a project's settings.
func (s *Store) ReplaceGateSettings(ctx context.Context, projectID string, params ReplaceGateSettingsParams) (*GateSettings, error) {
	prefixes, err := encodePrefixes(params.IgnoredPrefixes)
	if err != nil {
		return nil, fmt.Errorf("ReplaceGateSettings: %w", err)
	}

	gs, err := scanGateSettings(s.db.QueryRowContext(ctx, `
		UPDATE gate_settings SET
			throttle_ms      = $2,
			ignored_prefixes = $3::jsonb,
			max_trace_lines  = $4,
			updated_at       = now()
		WHERE project_id = $1
		RETURNING `+settingsColumns,
		projectID, params.ThrottleMs, prefixes, params.MaxTraceLines,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplaceGateSettings: %w", err)
	}
	return gs, nil
}

// encodePrefixes encodes a prefix list as JSON, mapping nil to [].
func encodePrefixes(prefixes []string) (string, error) {
	if prefixes == nil {
		prefixes = []string{}
	}
	raw, err := json.Marshal(prefixes)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
