package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
)

// SettingsSource loads stored gate settings. *store.Store implements it.
type SettingsSource interface {
	GetGateSettings(ctx context.Context, projectID string) (*store.GateSettings, error)
}

// HandlerFactory builds the delivery handler for a project's gate.
type HandlerFactory func(projectID string) gate.Handler

// Registry owns one EventGate per project. Gates are created on first use
// from the project's stored settings, or the server defaults when none are
// stored, and live until removed. Gate memory is never persisted.
type Registry struct {
	defaults gate.Config
	settings SettingsSource
	handlers HandlerFactory
	host     gate.Host
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is a project's gate. ready is closed once creation has finished;
// after that gate or err is set and never changes.
type entry struct {
	ready chan struct{}
	gate  *gate.EventGate
	err   error
}

// New creates an empty registry. settings may be nil, in which case every
// gate uses defaults.
func New(defaults gate.Config, settings SettingsSource, handlers HandlerFactory, host gate.Host, logger *zap.Logger) *Registry {
	return &Registry{
		defaults: defaults,
		settings: settings,
		handlers: handlers,
		host:     host,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Get returns the project's gate, creating it if needed.
//
// Creation is serialized per project: concurrent callers wait for the first
// one, and Apply waits for an in-flight creation before configuring the gate.
// A failed creation is not cached.
func (r *Registry) Get(ctx context.Context, projectID string) (*gate.EventGate, error) {
	r.mu.Lock()
	e, ok := r.entries[projectID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[projectID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("registry.Get: %w", ctx.Err())
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.gate, nil
	}

	r.create(ctx, projectID, e)
	return e.gate, e.err
}

// create builds the gate for e and publishes it by closing e.ready.
func (r *Registry) create(ctx context.Context, projectID string, e *entry) {
	defer close(e.ready)

	cfg, err := r.configFor(ctx, projectID)
	if err != nil {
		e.err = err
		r.mu.Lock()
		if r.entries[projectID] == e {
			delete(r.entries, projectID)
		}
		r.mu.Unlock()
		return
	}

	e.gate = gate.NewEventGate(r.handlers(projectID),
		gate.WithHost(r.host),
		gate.WithConfig(cfg),
		gate.WithLogger(r.logger.With(zap.String("project_id", projectID))),
	)
	r.logger.Debug("gate created",
		zap.String("project_id", projectID),
		zap.Duration("throttle_interval", cfg.ThrottleInterval),
		zap.Int("max_trace_lines", cfg.MaxTraceLines),
		zap.Int("ignored_prefixes", len(cfg.IgnoredPrefixes)),
	)
}

func (r *Registry) configFor(ctx context.Context, projectID string) (gate.Config, error) {
	if r.settings == nil {
		return r.defaults, nil
	}
	gs, err := r.settings.GetGateSettings(ctx, projectID)
	if err != nil {
		return gate.Config{}, fmt.Errorf("registry.Get: %w", err)
	}
	if gs == nil {
		return r.defaults, nil
	}
	return gs.Config(), nil
}

// live returns the project's gate if it has been created, without waiting.
func (r *Registry) live(projectID string) (*gate.EventGate, bool) {
	r.mu.Lock()
	e, ok := r.entries[projectID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.gate, e.gate != nil
	default:
		return nil, false
	}
}

// Apply pushes new settings into the project's gate. If the gate is being
// created, Apply waits for it so the new settings are not lost. A gate
// created later picks the settings up from the store.
func (r *Registry) Apply(projectID string, cfg gate.Config) {
	r.mu.Lock()
	e, ok := r.entries[projectID]
	r.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready
	if e.gate != nil {
		e.gate.Configure(cfg)
	}
}

// Reset clears the memory of the project's gate. It reports whether a gate
// existed. A gate still being created has no memory to clear.
func (r *Registry) Reset(projectID string) bool {
	g, ok := r.live(projectID)
	if ok {
		g.Reset()
	}
	return ok
}

// ResetAll clears the memory of every gate.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Reset(id)
	}
}

// Remove drops the project's gate, e.g. after the project is deleted. A
// creation in flight still completes for its caller but is not kept.
func (r *Registry) Remove(projectID string) {
	r.mu.Lock()
	delete(r.entries, projectID)
	r.mu.Unlock()
}

// Stats returns the project's gate counters, or false if no gate exists yet.
func (r *Registry) Stats(projectID string) (gate.Stats, bool) {
	g, ok := r.live(projectID)
	if !ok {
		return gate.Stats{}, false
	}
	return g.Stats(), true
}
