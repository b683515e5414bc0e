package gate

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxTraceLines is the number of filtered trace lines kept when no
// other limit is configured.
const DefaultMaxTraceLines = 10

// Handler receives events that pass the gate. Deliver is fire-and-forget;
// the gate ignores its outcome.
type Handler interface {
	Deliver(message, trace string, severity Severity)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(message, trace string, severity Severity)

func (f HandlerFunc) Deliver(message, trace string, severity Severity) {
	f(message, trace, severity)
}

// Config holds the live gate settings.
type Config struct {
	ThrottleInterval time.Duration
	IgnoredPrefixes  []string
	MaxTraceLines    int
}

// DefaultConfig returns a config with no throttle, no ignored prefixes and
// DefaultMaxTraceLines.
func DefaultConfig() Config {
	return Config{MaxTraceLines: DefaultMaxTraceLines}
}

// DropReason says why an event was not forwarded.
type DropReason string

const (
	ReasonInactive  DropReason = "inactive"
	ReasonBuilding  DropReason = "building"
	ReasonDuplicate DropReason = "duplicate"
	ReasonThrottled DropReason = "throttled"
)

// Stats counts gate outcomes since construction.
type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Inactive  uint64 `json:"dropped_inactive"`
	Building  uint64 `json:"dropped_building"`
	Duplicate uint64 `json:"dropped_duplicate"`
	Throttled uint64 `json:"dropped_throttled"`
}

// lastEvent is the memory of the most recently forwarded event. The trace is
// the raw, unfiltered one.
type lastEvent struct {
	message string
	trace   string
	sentAt  time.Time
}

// EventGate decides, per diagnostic event, whether it is forwarded to the
// handler. It suppresses consecutive duplicates, enforces a minimum interval
// between forwards, and trims the outgoing trace.
//
// Evaluate is safe for concurrent use. The duplicate check, throttle check
// and memory update run under one lock; filtering and delivery run after it
// is released, on the caller's goroutine.
type EventGate struct {
	handler Handler
	host    Host
	now     func() time.Time
	logger  *zap.Logger

	mu    sync.Mutex
	cfg   Config
	last  *lastEvent // nil until the first forward, and after Reset
	stats Stats
}

// Option configures an EventGate at construction.
type Option func(*EventGate)

// WithHost sets the host environment consulted before every decision.
func WithHost(h Host) Option {
	return func(g *EventGate) { g.host = h }
}

// WithLogger sets the logger used for drop decisions.
func WithLogger(l *zap.Logger) Option {
	return func(g *EventGate) { g.logger = l }
}

// WithConfig sets the initial configuration.
func WithConfig(cfg Config) Option {
	return func(g *EventGate) { g.cfg = cloneConfig(cfg) }
}

// WithClock replaces time.Now. The clock must be monotonic for the throttle
// to be meaningful.
func WithClock(now func() time.Time) Option {
	return func(g *EventGate) { g.now = now }
}

// NewEventGate creates a gate that forwards accepted events to handler.
func NewEventGate(handler Handler, opts ...Option) *EventGate {
	g := &EventGate{
		handler: handler,
		host:    AlwaysActive,
		now:     time.Now,
		logger:  zap.NewNop(),
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetThrottleInterval sets the minimum time between two forwarded events.
func (g *EventGate) SetThrottleInterval(d time.Duration) {
	g.mu.Lock()
	g.cfg.ThrottleInterval = d
	g.mu.Unlock()
}

// SetIgnoredPrefixes replaces the list of trace-line prefixes to strip.
func (g *EventGate) SetIgnoredPrefixes(prefixes []string) {
	g.mu.Lock()
	g.cfg.IgnoredPrefixes = append([]string(nil), prefixes...)
	g.mu.Unlock()
}

// SetMaxTraceLines sets how many filtered trace lines are kept.
func (g *EventGate) SetMaxTraceLines(n int) {
	g.mu.Lock()
	g.cfg.MaxTraceLines = n
	g.mu.Unlock()
}

// Configure replaces the whole configuration at once.
func (g *EventGate) Configure(cfg Config) {
	g.mu.Lock()
	g.cfg = cloneConfig(cfg)
	g.mu.Unlock()
}

// Reset forgets the last forwarded event.
func (g *EventGate) Reset() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}

// Stats returns a snapshot of the outcome counters.
func (g *EventGate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Evaluate runs one event through the gate. Rejections are silent. When the
// event is accepted the handler is called exactly once before Evaluate
// returns; a panic in the handler propagates to the caller unchanged.
func (g *EventGate) Evaluate(message, trace string, severity Severity) {
	cfg, reason, ok := g.admit(message, trace)
	if !ok {
		if ce := g.logger.Check(zap.DebugLevel, "diagnostic event dropped"); ce != nil {
			ce.Write(
				zap.String("reason", string(reason)),
				zap.Stringer("severity", severity),
			)
		}
		return
	}

	filtered := FilterTrace(trace, cfg.IgnoredPrefixes, cfg.MaxTraceLines)
	g.handler.Deliver(message, filtered, severity)
}

// admit applies the host, duplicate and throttle checks and, on acceptance,
// records the event as the last one sent. It returns the configuration in
// force at decision time.
func (g *EventGate) admit(message, trace string) (Config, DropReason, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.host.IsActive() {
		g.stats.Inactive++
		return Config{}, ReasonInactive, false
	}
	if buildInProgress(g.host) {
		g.stats.Building++
		return Config{}, ReasonBuilding, false
	}
	if g.last != nil && g.last.message == message && g.last.trace == trace {
		g.stats.Duplicate++
		return Config{}, ReasonDuplicate, false
	}

	now := g.now()
	if g.last != nil && absDuration(now.Sub(g.last.sentAt)) < g.cfg.ThrottleInterval {
		g.stats.Throttled++
		return Config{}, ReasonThrottled, false
	}

	g.last = &lastEvent{message: message, trace: trace, sentAt: now}
	g.stats.Forwarded++
	return g.cfg, "", true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func cloneConfig(cfg Config) Config {
	cfg.IgnoredPrefixes = append([]string(nil), cfg.IgnoredPrefixes...)
	return cfg
}
