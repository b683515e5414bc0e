package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triage-ai/errgate/internal/events"
	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	events []*storage.DiagnosticEvent
}

func (w *memWriter) Write(e *storage.DiagnosticEvent) { w.events = append(w.events, e) }
func (w *memWriter) Close()                           {}

type memPublisher struct {
	topics []string
	events []any
	err    error
}

func (p *memPublisher) Publish(_ context.Context, topic string, event any) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *memPublisher) Close() error { return nil }

func testSink(w storage.EventWriter, pub events.Publisher, logger *zap.Logger) *Sink {
	s := NewSink("proj_1", "http", w, pub, "errgate.test", logger)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	s.newID = func() string { return "evt_fixed" }
	return s
}

func TestSink_WritesAndPublishes(t *testing.T) {
	w := &memWriter{}
	pub := &memPublisher{}
	s := testSink(w, pub, zap.NewNop())

	s.Deliver("boom", "at A\nat B", gate.SeverityException)

	if len(w.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(w.events))
	}
	ev := w.events[0]
	if ev.EventID != "evt_fixed" || ev.ProjectID != "proj_1" {
		t.Errorf("unexpected ids: %+v", ev)
	}
	if ev.Severity != "exception" {
		t.Errorf("expected exception severity, got %s", ev.Severity)
	}
	if ev.TraceLines != 2 {
		t.Errorf("expected 2 trace lines, got %d", ev.TraceLines)
	}
	if ev.MessageHash != storage.HashMessage("boom") {
		t.Error("message hash mismatch")
	}

	if len(pub.topics) != 1 || pub.topics[0] != "errgate.test" {
		t.Fatalf("unexpected publish topics: %v", pub.topics)
	}
	fwd, ok := pub.events[0].(events.EventForwarded)
	if !ok {
		t.Fatalf("unexpected payload type %T", pub.events[0])
	}
	if fwd.EventID != "evt_fixed" || fwd.Trace != "at A\nat B" {
		t.Errorf("unexpected payload: %+v", fwd)
	}
}

func TestSink_PublishErrorIsLoggedNotRaised(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &memWriter{}
	s := testSink(w, &memPublisher{err: errors.New("nats down")}, zap.New(core))

	s.Deliver("boom", "", gate.SeverityError)

	if len(w.events) != 1 {
		t.Errorf("storage write should not depend on publish, got %d events", len(w.events))
	}
	if w.events[0].TraceLines != 0 {
		t.Errorf("empty trace should count 0 lines, got %d", w.events[0].TraceLines)
	}
	if logs.FilterMessage("publish forwarded event failed").Len() != 1 {
		t.Error("expected publish failure to be logged")
	}
}

func TestSink_DefaultsPublisherAndSubject(t *testing.T) {
	s := NewSink("proj_1", "http", &memWriter{}, nil, "", zap.NewNop())
	if _, ok := s.Publisher.(*events.NoopPublisher); !ok {
		t.Errorf("expected NoopPublisher, got %T", s.Publisher)
	}
	if s.Subject != events.TopicForwarded {
		t.Errorf("expected default subject, got %s", s.Subject)
	}
}

func TestSink_BehindGate(t *testing.T) {
	w := &memWriter{}
	g := gate.NewEventGate(testSink(w, nil, zap.NewNop()))
	g.SetIgnoredPrefixes([]string{"UnityEngine."})

	g.Evaluate("boom", "UnityEngine.Debug:LogError\nGame:Update", gate.SeverityError)
	g.Evaluate("boom", "UnityEngine.Debug:LogError\nGame:Update", gate.SeverityError)

	if len(w.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(w.events))
	}
	if w.events[0].Trace != "Game:Update" {
		t.Errorf("expected filtered trace, got %q", w.events[0].Trace)
	}
}
