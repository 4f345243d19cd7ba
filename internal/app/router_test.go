package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/observability"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/roles"
	"github.com/flashy-edu/flashy/internal/shared"
	_ "github.com/flashy-edu/flashy/testing"
)

// memIdentity backs both auth.Repository and rbac.RoleStore.
type memIdentity struct {
	mu          sync.Mutex
	users       map[int64]*auth.User
	catalogue   map[string]rbac.Role
	assignments map[int64]rbac.RoleSet
	nextID      int64
}

func newMemIdentity() *memIdentity {
	m := &memIdentity{
		users:       map[int64]*auth.User{},
		catalogue:   map[string]rbac.Role{},
		assignments: map[int64]rbac.RoleSet{},
		nextID:      1,
	}
	for i, name := range []string{rbac.RoleStudent, rbac.RoleTeacher, rbac.RoleExpert, rbac.RoleAdmin, rbac.RoleMarketing} {
		m.catalogue[name] = rbac.Role{ID: int64(i + 1), Name: name}
	}
	return m
}

func (m *memIdentity) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memIdentity) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memIdentity) CreateUser(ctx context.Context, nu auth.NewUser, roleNames []string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	u := &auth.User{ID: id, Email: nu.Email, Username: nu.Username, PasswordHash: nu.PasswordHash, IsActive: true, Roles: roleNames}
	m.users[id] = u
	m.assignments[id] = rbac.NewRoleSet(roleNames...)
	cp := *u
	return &cp, nil
}

func (m *memIdentity) RolesOf(ctx context.Context, userID int64) (rbac.RoleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rbac.NewRoleSet(m.assignments[userID].Names()...), nil
}

func (m *memIdentity) RoleByName(ctx context.Context, name string) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.catalogue[rbac.NormalizeRole(name)]
	if !ok {
		return rbac.Role{}, fmt.Errorf("role %q: %w", name, shared.ErrNotFound)
	}
	return role, nil
}

func (m *memIdentity) AssignRole(ctx context.Context, userID int64, roleName string) error {
	if _, err := m.RoleByName(ctx, roleName); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignments[userID] == nil {
		m.assignments[userID] = rbac.RoleSet{}
	}
	m.assignments[userID][rbac.NormalizeRole(roleName)] = struct{}{}
	return nil
}

func (m *memIdentity) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments[userID], rbac.NormalizeRole(roleName))
	return nil
}

func (m *memIdentity) ListRoles(ctx context.Context, filters roles.RoleListFilters) ([]roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]roles.Role, 0, len(m.catalogue))
	for _, r := range m.catalogue {
		out = append(out, r)
	}
	return out, nil
}

func (m *memIdentity) CreateRole(ctx context.Context, name, description string) (roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalogue[name]; ok {
		return roles.Role{}, shared.ErrDuplicate
	}
	r := rbac.Role{ID: int64(len(m.catalogue) + 1), Name: name, Description: description}
	m.catalogue[name] = r
	return r, nil
}

func (m *memIdentity) UpsertRole(ctx context.Context, name, description string) (roles.Role, error) {
	return m.CreateRole(ctx, name, description)
}

func (m *memIdentity) seedUser(email string, roleNames ...string) int64 {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	u, _ := m.CreateUser(context.Background(), auth.NewUser{Email: email, Username: email, PasswordHash: string(hash)}, roleNames)
	return u.ID
}

const routerSecret = "router-test-secret-0123456789abcdef"

func newRouterIssuer(t *testing.T, now func() time.Time) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     routerSecret,
		Issuer:     "flashy",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 720 * time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return issuer
}

type testServer struct {
	handler  http.Handler
	identity *memIdentity
	metrics  *observability.Metrics
}

func newTestServer(t *testing.T, readiness ...ReadinessCheck) *testServer {
	t.Helper()
	cfg := &Config{AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000, TestMode: true}
	identity := newMemIdentity()
	metrics := observability.NewMetrics()

	issuer := newRouterIssuer(t, nil)
	cached, err := rbac.NewCachedStore(identity, 16)
	require.NoError(t, err)

	mw := rbac.Middleware{Verifier: issuer, Observer: metrics}
	authSvc, err := auth.NewService(auth.ServiceConfig{
		Repo:         identity,
		Roles:        cached,
		Issuer:       issuer,
		Observer:     metrics,
		PasswordCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Config:             cfg,
		RBACMiddleware:     mw,
		AuthHandler:        auth.NewHandler(nil, authSvc, mw, 0),
		AssignmentsHandler: rbac.NewAssignmentsHandler(nil, rbac.NewService(cached, nil), mw),
		RolesHandler:       roles.NewHandler(nil, roles.NewService(identity, cached, nil), mw),
		Metrics:            metrics,
		Readiness:          readiness,
	})
	return &testServer{handler: handler, identity: identity, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "password123"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.AccessToken, body.RefreshToken
}

func TestHealthAndHeaders(t *testing.T) {
	srv := newTestServer(t)
	rr := srv.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = srv.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestReadiness(t *testing.T) {
	srv := newTestServer(t,
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)
	rr := srv.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, body)
}

func TestRoleChangeBecomesVisibleOnRefresh(t *testing.T) {
	srv := newTestServer(t)
	srv.identity.seedUser("admin@flashy.test", rbac.RoleAdmin)
	learnerID := srv.identity.seedUser("learner@flashy.test", rbac.RoleStudent)

	adminToken, _ := srv.login(t, "admin@flashy.test")
	learnerAccess, learnerRefresh := srv.login(t, "learner@flashy.test")

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/admin/roles", nil, learnerAccess).Code)

	rr := srv.do(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/roles", learnerID), map[string]string{"role": "Marketing"}, adminToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// The old claim is still served until the token is refreshed.
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/admin/roles", nil, learnerAccess).Code)

	rr = srv.do(t, http.MethodGet, "/auth/me", nil, learnerAccess)
	require.Equal(t, http.StatusOK, rr.Code)
	var me auth.Me
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.True(t, me.ClaimsStale)

	rr = srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": learnerRefresh}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var grant auth.AccessGrant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &grant))
	assert.Equal(t, []string{rbac.RoleMarketing, rbac.RoleStudent}, grant.Roles)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/admin/roles", nil, grant.AccessToken).Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/admin/roles", map[string]string{"name": "editor"}, grant.AccessToken).Code)
}

func TestAdminRoutesRejectAnonymousAndStudents(t *testing.T) {
	srv := newTestServer(t)
	srv.identity.seedUser("student@flashy.test", rbac.RoleStudent)
	access, refresh := srv.login(t, "student@flashy.test")

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodPost, "/admin/users/1/roles", map[string]string{"role": "admin"}, "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/admin/users/1/roles", map[string]string{"role": "admin"}, access).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/admin/roles", nil, refresh).Code)

	rr := srv.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `flashy_authz_decisions_total{decision="forbidden",policy="all(admin)"} 1`)
	assert.Contains(t, rr.Body.String(), `flashy_tokens_issued_total{flow="login"} 1`)
}

func TestStaleBearerDoesNotBlockPublicRoutes(t *testing.T) {
	srv := newTestServer(t)
	userID := srv.identity.seedUser("learner@flashy.test", rbac.RoleStudent)
	_, refresh := srv.login(t, "learner@flashy.test")

	past := newRouterIssuer(t, func() time.Time { return time.Now().Add(-2 * time.Hour) })
	stale, _, err := past.IssueAccess(userID, rbac.NewRoleSet(rbac.RoleStudent))
	require.NoError(t, err)

	rr := srv.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, stale)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var grant auth.AccessGrant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &grant))
	assert.NotEmpty(t, grant.AccessToken)

	rr = srv.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "learner@flashy.test", "password": "password123"}, stale)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", nil, stale).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", nil, "not-a-jwt").Code)

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/auth/me", nil, stale).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/auth/me", nil, grant.AccessToken).Code)

	rr = srv.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `decision="unauthenticated"`)
	assert.Contains(t, rr.Body.String(), `flashy_tokens_issued_total{flow="refresh"} 1`)
}
