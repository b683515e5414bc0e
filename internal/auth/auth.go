package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/triage-ai/errgate/internal/store"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// ProjectContext identifies the project an ingest request belongs to.
type ProjectContext struct {
	ProjectID string
	Name      string
}

// Authenticator resolves an ingest key to its project.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*ProjectContext, error)
}

// ExtractBearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively (RFC 6750).
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAPIKey
	}
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", ErrMissingAPIKey
	}
	token := strings.TrimSpace(header[len(scheme):])
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

// validFormat reports whether apiKey looks like an ingest key.
func validFormat(apiKey string) bool {
	return len(apiKey) >= 8 && strings.HasPrefix(apiKey, store.APIKeyPrefix)
}
