package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/errgate/internal/events"
	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/storage"
	"go.uber.org/zap"
)

// publishTimeout bounds the context handed to the publisher.
const publishTimeout = 2 * time.Second

// Sink is the gate.Handler for one project. Each delivered event gets an id
// and is written to storage and published on NATS. Failures are logged and
// stop here; the gate never sees them.
type Sink struct {
	ProjectID string
	Source    string
	Writer    storage.EventWriter
	Publisher events.Publisher
	Subject   string
	Logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

var _ gate.Handler = (*Sink)(nil)

// NewSink builds a Sink. A nil publisher disables publishing.
func NewSink(projectID, source string, w storage.EventWriter, pub events.Publisher, subject string, logger *zap.Logger) *Sink {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if subject == "" {
		subject = events.TopicForwarded
	}
	return &Sink{
		ProjectID: projectID,
		Source:    source,
		Writer:    w,
		Publisher: pub,
		Subject:   subject,
		Logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Deliver implements gate.Handler.
func (s *Sink) Deliver(message, trace string, severity gate.Severity) {
	ev := &storage.DiagnosticEvent{
		EventID:     s.newID(),
		ProjectID:   s.ProjectID,
		Timestamp:   s.now().UTC(),
		Severity:    severity.String(),
		Message:     storage.TruncateMessage(message, storage.MessagePreviewLength),
		MessageHash: storage.HashMessage(message),
		Trace:       trace,
		TraceLines:  countLines(trace),
		Source:      s.Source,
	}

	s.Writer.Write(ev)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := s.Publisher.Publish(ctx, s.Subject, events.EventForwarded{
		EventID:   ev.EventID,
		ProjectID: ev.ProjectID,
		Timestamp: ev.Timestamp,
		Severity:  ev.Severity,
		Message:   ev.Message,
		Trace:     ev.Trace,
	})
	if err != nil {
		s.Logger.Warn("publish forwarded event failed",
			zap.String("event_id", ev.EventID),
			zap.String("project_id", ev.ProjectID),
			zap.Error(err),
		)
	}
}

func countLines(trace string) uint32 {
	if trace == "" {
		return 0
	}
	return uint32(strings.Count(trace, "\n") + 1)
}
