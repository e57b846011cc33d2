// Package apitest runs an in-process stand-in for the storefront REST API:
// login, single-use refresh token rotation, logout, and generic JSON CRUD
// collections behind bearer auth.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/guarzo/storefront/common/model"
)

const accessTTL = 15 * time.Minute

type claims struct {
	Role string `json:"role"`
	Gen  int64  `json:"gen"`
	jwt.RegisteredClaims
}

type account struct {
	identity model.Identity
	password string
}

type collection struct {
	order []string
	docs  map[string]map[string]interface{}
}

// Server is the fake Remote API. Its base URL for clients is URL()+"/api".
type Server struct {
	*httptest.Server

	secret []byte

	mu           sync.Mutex
	gen          int64
	accounts     map[string]*account // by email
	sessions     map[string]string   // refresh token -> admin ID
	collections  map[string]*collection
	refreshCalls int
	hits         map[string]int
}

// New starts a Server that is closed when tb finishes.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := NewServer()
	tb.Cleanup(s.Close)
	return s
}

// NewServer starts a Server; the caller closes it.
func NewServer() *Server {
	s := &Server{
		secret:      []byte(uuid.NewString()),
		accounts:    make(map[string]*account),
		sessions:    make(map[string]string),
		collections: make(map[string]*collection),
		hits:        make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// BaseURL is what the client should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh-token", s.refresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/auth/logout", s.logout)
		r.Post("/auth/logout-all", s.logoutAll)

		r.Get("/{collection}", s.list)
		r.Post("/{collection}", s.create)
		r.Get("/{collection}/{id}", s.get)
		r.Put("/{collection}/{id}", s.replace)
		r.Patch("/{collection}/{id}", s.patch)
		r.Patch("/{collection}/{id}/{action}", s.patch)
		r.Delete("/{collection}/{id}", s.delete)
	})

	root := chi.NewRouter()
	root.Mount("/api", r)
	return root
}

// ----------------------------------------------------------------------
// Fixtures and inspection
// ----------------------------------------------------------------------

// AddAdmin registers an account that can log in.
func (s *Server) AddAdmin(name, email, password, role string) model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.Identity{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	s.accounts[strings.ToLower(email)] = &account{identity: id, password: password}
	return id
}

// Seed inserts doc into a collection and returns its _id.
func (s *Server) Seed(name string, doc interface{}) string {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("apitest: seed %s: %v", name, err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("apitest: seed %s: %v", name, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(name, m)
}

// ExpireAccessTokens makes every access token issued so far invalid, as if
// they had all reached their expiry.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// RevokeRefreshTokens forgets every live refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.sessions = make(map[string]string)
	s.mu.Unlock()
}

// IssueTokens mints a pair for email without going through login.
func (s *Server) IssueTokens(email string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return "", "", fmt.Errorf("unknown admin %q", email)
	}
	return s.issueLocked(acc.identity)
}

// RefreshCalls is the number of requests to the refresh endpoint.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// LiveSessions is the number of unredeemed refresh tokens.
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Hits returns how many requests reached "METHOD /api/path".
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// ----------------------------------------------------------------------
// Auth
// ----------------------------------------------------------------------

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueLocked(id model.Identity) (string, string, error) {
	now := time.Now()
	c := claims{
		Role: id.Role,
		Gen:  s.gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	s.sessions[refresh] = id.ID
	return access, refresh, nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	access, refresh, err := s.issueLocked(acc.identity)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "Login successful",
		"admin":        acc.identity,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	adminID, ok := s.sessions[req.RefreshToken]
	if !ok {
		fail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	// single use
	delete(s.sessions, req.RefreshToken)

	acc := s.accountByIDLocked(adminID)
	if acc == nil {
		fail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	access, refresh, err := s.issueLocked(acc.identity)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, model.TokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

type ctxClaims struct{}

func contextWithClaims(ctx context.Context, c *claims) context.Context {
	return context.WithValue(ctx, ctxClaims{}, c)
}

func claimsFrom(ctx context.Context) *claims {
	if c, ok := ctx.Value(ctxClaims{}).(*claims); ok {
		return c
	}
	return &claims{}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			fail(w, http.StatusUnauthorized, "Authorization header missing")
			return
		}
		c, err := s.parse(raw)
		if err != nil {
			fail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), c)))
	})
}

func (s *Server) parse(raw string) (*claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	c, ok := tok.Claims.(*claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Gen < s.gen {
		return nil, jwt.ErrTokenExpired
	}
	return c, nil
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.sessions, req.RefreshToken)
	s.mu.Unlock()
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out"})
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())

	s.mu.Lock()
	for tok, id := range s.sessions {
		if id == c.Subject {
			delete(s.sessions, tok)
		}
	}
	s.gen++
	s.mu.Unlock()
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out from all devices"})
}

func (s *Server) accountByIDLocked(id string) *account {
	for _, acc := range s.accounts {
		if acc.identity.ID == id {
			return acc
		}
	}
	return nil
}

// ----------------------------------------------------------------------
// Collections
// ----------------------------------------------------------------------

func (s *Server) allowed(w http.ResponseWriter, r *http.Request) bool {
	if chi.URLParam(r, "collection") == "admins" && claimsFrom(r.Context()).Role != model.RoleSuperAdmin {
		fail(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	query := r.URL.Query()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, 0)
	if c, ok := s.collections[chi.URLParam(r, "collection")]; ok {
		for _, id := range c.order {
			if matches(c.docs[id], query) {
				out = append(out, c.docs[id])
			}
		}
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "data": out})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.findLocked(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if !ok {
		notFound(w)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "data": doc})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	doc, ok := readDoc(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(chi.URLParam(r, "collection"), doc)
	respond(w, http.StatusCreated, map[string]interface{}{"success": true, "message": "Created", "data": doc})
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	doc, ok := readDoc(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, found := s.findLocked(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if !found {
		notFound(w)
		return
	}
	id := old["_id"].(string)
	doc["_id"] = id
	s.collections[chi.URLParam(r, "collection")].docs[id] = doc
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Updated", "data": doc})
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	fields, ok := readDoc(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, found := s.findLocked(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if !found {
		notFound(w)
		return
	}
	for k, v := range fields {
		if k != "_id" {
			doc[k] = v
		}
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Updated", "data": doc})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if !s.allowed(w, r) {
		return
	}
	name := chi.URLParam(r, "collection")

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, found := s.findLocked(name, chi.URLParam(r, "id"))
	if !found {
		notFound(w)
		return
	}
	c := s.collections[name]
	id := doc["_id"].(string)
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Deleted"})
}

func (s *Server) insertLocked(name string, doc map[string]interface{}) string {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]map[string]interface{})}
		s.collections[name] = c
	}
	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc
	return id
}

// findLocked looks a document up by _id, or by section for content
// collections keyed by name.
func (s *Server) findLocked(name, key string) (map[string]interface{}, bool) {
	c, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	if doc, ok := c.docs[key]; ok {
		return doc, true
	}
	for _, id := range c.order {
		if c.docs[id]["section"] == key {
			return c.docs[id], true
		}
	}
	return nil, false
}

// matches applies exact-match filters; page and limit are ignored.
func matches(doc map[string]interface{}, query map[string][]string) bool {
	for k, vs := range query {
		if k == "page" || k == "limit" || len(vs) == 0 {
			continue
		}
		if fmt.Sprint(doc[k]) != vs[0] {
			return false
		}
	}
	return true
}

func readDoc(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	doc := make(map[string]interface{})
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return doc, true
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	respond(w, status, model.ErrorBody{Success: false, Message: msg})
}

func notFound(w http.ResponseWriter) {
	fail(w, http.StatusNotFound, "Resource not found")
}
