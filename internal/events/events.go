package events

import (
	"context"
	"time"
)

// TopicForwarded is the default subject for events that passed a gate.
const TopicForwarded = "errgate.events.forwarded"

// EventForwarded is published once per event that passed a gate.
type EventForwarded struct {
	EventID   string    `json:"event_id"`
	ProjectID string    `json:"project_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Trace     string    `json:"trace"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
