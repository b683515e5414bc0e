package gate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSeverity is returned by ParseSeverity for unrecognised names.
var ErrUnknownSeverity = errors.New("unknown severity")

// Severity classifies a diagnostic event.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityAssert
	SeverityWarning
	SeverityLog
	SeverityException
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityAssert:
		return "assert"
	case SeverityWarning:
		return "warning"
	case SeverityLog:
		return "log"
	case SeverityException:
		return "exception"
	default:
		return "unspecified"
	}
}

// ParseSeverity maps a severity name (case-insensitive) back to a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return SeverityError, nil
	case "assert":
		return SeverityAssert, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "log", "info":
		return SeverityLog, nil
	case "exception":
		return SeverityException, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
	}
}
