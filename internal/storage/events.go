package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for persisting forwarded diagnostic events.
// Write() must NEVER block the caller: it runs inside the gate's delivery
// path, on the goroutine that raised the diagnostic.
type EventWriter interface {
	Write(event *DiagnosticEvent)
	Close()
}

// DiagnosticEvent is a single event that passed the gate.
type DiagnosticEvent struct {
	EventID     string
	ProjectID   string
	Timestamp   time.Time
	Severity    string
	Message     string // First MessagePreviewLength runes
	MessageHash string // SHA256 of full message, groups repeats
	Trace       string // Already filtered and truncated by the gate
	TraceLines  uint32
	Source      string // "http" or "replay"
}

// MessagePreviewLength is the max runes stored in message.
const MessagePreviewLength = 2000

// TruncateMessage returns the first N characters (runes) of a message. It
// never splits a multi-byte UTF-8 character.
func TruncateMessage(message string, maxLen int) string {
	runes := []rune(message)
	if len(runes) <= maxLen {
		return message
	}
	return string(runes[:maxLen])
}

// HashMessage returns the hex SHA256 of the full message.
func HashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}
