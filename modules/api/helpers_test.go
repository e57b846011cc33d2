package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
	"github.com/guarzo/storefront/modules/api"
)

// memStore is an in-memory TokenStore that counts writes.
type memStore struct {
	mu       sync.Mutex
	token    *oauth2.Token
	identity *model.Identity
	sets     int
	clears   int
	readErr  error
}

var _ common.TokenStore = (*memStore)(nil)

func newMemStore(access, refresh string) *memStore {
	s := &memStore{}
	if access != "" || refresh != "" {
		s.token = &oauth2.Token{AccessToken: access, RefreshToken: refresh}
		s.identity = &model.Identity{Name: "Ada", Email: "a@b.com", Role: model.RoleAdmin}
	}
	return s
}

func (s *memStore) Token(context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if !common.ValidPair(s.token) {
		return nil, nil
	}
	cp := *s.token
	return &cp, nil
}

func (s *memStore) SetToken(_ context.Context, t *oauth2.Token) error {
	if !common.ValidPair(t) {
		return common.ErrIncompleteToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.token = &cp
	s.sets++
	return nil
}

func (s *memStore) Identity(context.Context) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, nil
}

func (s *memStore) Session(ctx context.Context) (*oauth2.Token, *model.Identity, error) {
	tok, err := s.Token(ctx)
	if err != nil || tok == nil {
		return nil, nil, err
	}
	id, err := s.Identity(ctx)
	return tok, id, err
}

func (s *memStore) SetSession(ctx context.Context, t *oauth2.Token, id *model.Identity) error {
	if err := s.SetToken(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	s.identity = nil
	s.clears++
	return nil
}

func (s *memStore) pair() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return "", ""
	}
	return s.token.AccessToken, s.token.RefreshToken
}

// mockAuth is an AuthClient driven by a func, like the esi tests' mockAuth.
type mockAuth struct {
	mu          sync.Mutex
	calls       int
	refreshFunc func(refreshToken string) (*oauth2.Token, error)
}

func (m *mockAuth) RefreshToken(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.refreshFunc(refreshToken)
}

func (m *mockAuth) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newTestClient starts srv and returns a client pointed at it.
func newTestClient(t *testing.T, h http.Handler, store common.TokenStore, opts ...api.Option) (*api.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	hc := common.NewHttpClient("storefront-test", &http.Client{}, 0)
	c, err := api.NewClient(srv.URL+"/api", hc, store, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

// logoutRecorder counts logout events.
type logoutRecorder struct {
	mu     sync.Mutex
	events []api.LogoutEvent
}

func (r *logoutRecorder) record(ev api.LogoutEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *logoutRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
