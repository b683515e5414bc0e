package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw ingest key used in tests.
const testAPIKey = "egk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements ProjectStore for testing.
type mockStore struct {
	project   atomic.Pointer[store.Project]
	err       error
	callCount atomic.Int32
	prefixes  chan string
}

func newMockStore(p *store.Project) *mockStore {
	m := &mockStore{prefixes: make(chan string, 16)}
	m.project.Store(p)
	return m
}

func (m *mockStore) LookupByPrefix(_ context.Context, prefix string) (*store.Project, error) {
	m.callCount.Add(1)
	select {
	case m.prefixes <- prefix:
	default:
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.project.Load(), nil
}

func newTestAuthenticator(s ProjectStore, ttl time.Duration) *PostgresAuthenticator {
	return NewPostgresAuthenticator(PostgresAuthConfig{Store: s, CacheTTL: ttl, Logger: zap.NewNop()})
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	s := newMockStore(&store.Project{ID: "proj_abc", Name: "game", APIKeyHash: testHash(t)})
	a := newTestAuthenticator(s, time.Minute)

	project, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if project.ProjectID != "proj_abc" || project.Name != "game" {
		t.Errorf("unexpected project: %+v", project)
	}
	if got := <-s.prefixes; got != testAPIKey[:8] {
		t.Errorf("expected lookup by %q, got %q", testAPIKey[:8], got)
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	s := newMockStore(&store.Project{ID: "proj_abc", APIKeyHash: testHash(t)})
	a := newTestAuthenticator(s, time.Minute)

	for i := 0; i < 5; i++ {
		if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if n := s.callCount.Load(); n != 1 {
		t.Errorf("expected 1 DB call, got %d", n)
	}
}

func TestPostgresAuth_WrongKeyRejected(t *testing.T) {
	s := newMockStore(&store.Project{ID: "proj_abc", APIKeyHash: testHash(t)})
	a := newTestAuthenticator(s, time.Minute)

	_, err := a.Authenticate(context.Background(), "egk_test_some_other_key")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_ProjectNotFound(t *testing.T) {
	s := newMockStore(nil)
	a := newTestAuthenticator(s, time.Minute)

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	s := newMockStore(nil)
	s.err = errors.New("connection refused")
	a := newTestAuthenticator(s, time.Minute)

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_BadFormat_NoDBCall(t *testing.T) {
	s := newMockStore(nil)
	a := newTestAuthenticator(s, time.Minute)

	for _, key := range []string{"tsk_abcdefgh", "egk_", "short"} {
		if _, err := a.Authenticate(context.Background(), key); !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("key %q: expected ErrInvalidAPIKey, got %v", key, err)
		}
	}
	if _, err := a.Authenticate(context.Background(), ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if n := s.callCount.Load(); n != 0 {
		t.Errorf("DB should not be called for malformed keys, got %d calls", n)
	}
}

func TestPostgresAuth_ForgetProject(t *testing.T) {
	s := newMockStore(&store.Project{ID: "proj_abc", APIKeyHash: testHash(t)})
	a := newTestAuthenticator(s, time.Minute)

	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}
	a.ForgetProject("proj_other")
	s.project.Store(nil)
	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("other project's eviction should keep this key cached: %v", err)
	}

	a.ForgetProject("proj_abc")

	if _, err := a.Authenticate(context.Background(), testAPIKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("forgotten key should be re-verified, got %v", err)
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	hash := testHash(t)
	s := newMockStore(&store.Project{ID: "proj_stale", Name: "before", APIKeyHash: hash})
	a := newTestAuthenticator(s, time.Millisecond)

	project, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if project.Name != "before" {
		t.Fatalf("expected name=before, got %s", project.Name)
	}

	time.Sleep(5 * time.Millisecond)
	s.project.Store(&store.Project{ID: "proj_stale", Name: "after", APIKeyHash: hash})

	project2, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if project2.Name != "before" {
		t.Errorf("stale hit should return old name, got %s", project2.Name)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.callCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	// The refreshed entry may itself be stale by now (1ms TTL) but still
	// carries the refreshed value.
	project3, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if project3.Name != "after" {
		t.Errorf("expected refreshed name=after, got %s", project3.Name)
	}
}

func TestExtractBearerToken(t *testing.T) {
	for _, tc := range []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer egk_abc12345", "egk_abc12345", nil},
		{"bearer   egk_abc12345  ", "egk_abc12345", nil},
		{"", "", ErrMissingAPIKey},
		{"Basic dXNlcjpwYXNz", "", ErrMissingAPIKey},
		{"Bearer ", "", ErrMissingAPIKey},
	} {
		r := httptest.NewRequest("POST", "/v1/events", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, err := ExtractBearerToken(r)
		if !errors.Is(err, tc.err) && !(err == nil && tc.err == nil) {
			t.Errorf("header %q: expected err %v, got %v", tc.header, tc.err, err)
		}
		if got != tc.want {
			t.Errorf("header %q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
