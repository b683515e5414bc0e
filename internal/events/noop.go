package events

import "context"

// NoopPublisher discards every event. Used when NATS is not configured.
type NoopPublisher struct{}

func (p *NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (p *NoopPublisher) Close() error { return nil }
