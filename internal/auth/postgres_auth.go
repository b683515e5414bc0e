package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ProjectStore abstracts the prefix lookup for testability. *store.Store
// implements it.
type ProjectStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.Project, error)
}

// PostgresAuthenticator validates ingest keys against the projects table.
// Uses KeyCache with stale-while-revalidate to avoid DB + bcrypt on the hot
// path: diagnostic producers can be bursty and every event carries the key.
type PostgresAuthenticator struct {
	store  ProjectStore
	cache  *KeyCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	Store    ProjectStore
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  cfg.Store,
		cache:  NewKeyCache(ttl),
		logger: cfg.Logger,
	}
}

// Authenticate validates the ingest key.
//
// Flow:
//  1. Format check (egk_ prefix, >= 8 chars); no DB call on failure
//  2. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately
//     - Stale hit: return stale project, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
//  3. DB errors surface as ErrAuthUnavailable, bad keys as ErrInvalidAPIKey
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*ProjectContext, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !validFormat(apiKey) {
		return nil, ErrInvalidAPIKey
	}

	result := a.cache.Lookup(apiKey)
	if result.Hit {
		if result.Refresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Project, nil
	}

	project, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.classify(err)
	}

	a.cache.Put(apiKey, project)
	return project, nil
}

// ForgetProject drops every cached key of a project, so a rotated or deleted
// key stops working before its cache entry expires.
func (a *PostgresAuthenticator) ForgetProject(projectID string) {
	a.cache.EvictProject(projectID)
}

// backgroundRefresh redoes the lookup for a stale entry. On failure the entry
// is evicted so the next request does a synchronous lookup.
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed", zap.Error(err))
		a.cache.Evict(apiKey)
		return
	}

	a.cache.Put(apiKey, project)
}

// lookupAndVerify does the prefix lookup and bcrypt verification.
func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*ProjectContext, error) {
	p, err := a.store.LookupByPrefix(ctx, apiKey[:8])
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if p == nil {
		return nil, ErrInvalidAPIKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &ProjectContext{ProjectID: p.ID, Name: p.Name}, nil
}

func (a *PostgresAuthenticator) classify(err error) error {
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("auth DB unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
}
