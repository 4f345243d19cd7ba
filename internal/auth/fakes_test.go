package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flashy-edu/flashy/internal/auth"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubRepo struct {
	mu      sync.Mutex
	users   map[int64]*auth.User
	nextID  int64
	err     error
	roles   *fakeRoleStore
	created []auth.NewUser
}

func newStubRepo(roles *fakeRoleStore) *stubRepo {
	return &stubRepo{users: map[int64]*auth.User{}, nextID: 1, roles: roles}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, nu auth.NewUser, roleNames []string) (*auth.User, error) {
	s.mu.Lock()
	for _, u := range s.users {
		if u.Email == nu.Email {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: email already registered", shared.ErrDuplicate)
		}
		if u.Username == nu.Username {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: username already taken", shared.ErrDuplicate)
		}
	}
	s.created = append(s.created, nu)
	id := s.nextID
	s.nextID++
	u := &auth.User{ID: id, Email: nu.Email, Username: nu.Username, PasswordHash: nu.PasswordHash, IsActive: true, Roles: roleNames}
	s.users[id] = u
	s.mu.Unlock()
	for _, name := range roleNames {
		if err := s.roles.AssignRole(ctx, id, name); err != nil {
			return nil, err
		}
	}
	cp := *u
	return &cp, nil
}

// addUser stores an active account with password "password123" and the given roles.
func (s *stubRepo) addUser(email string, roles ...string) *auth.User {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	u := &auth.User{ID: id, Email: email, Username: email, PasswordHash: string(hash), IsActive: true}
	s.users[id] = u
	s.mu.Unlock()
	for _, r := range roles {
		if err := s.roles.AssignRole(context.Background(), id, r); err != nil {
			panic(err)
		}
	}
	return u
}

func (s *stubRepo) setActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].IsActive = active
}

func (s *stubRepo) delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

type fakeRoleStore struct {
	mu          sync.Mutex
	known       rbac.RoleSet
	assignments map[int64]rbac.RoleSet
	err         error
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		known:       rbac.NewRoleSet(rbac.RoleStudent, rbac.RoleTeacher, rbac.RoleExpert, rbac.RoleAdmin, rbac.RoleMarketing),
		assignments: map[int64]rbac.RoleSet{},
	}
}

func (f *fakeRoleStore) RolesOf(ctx context.Context, userID int64) (rbac.RoleSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return rbac.NewRoleSet(f.assignments[userID].Names()...), nil
}

func (f *fakeRoleStore) RoleByName(ctx context.Context, name string) (rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := rbac.NormalizeRole(name)
	if !f.known.Has(n) {
		return rbac.Role{}, fmt.Errorf("role %q: %w", name, shared.ErrNotFound)
	}
	return rbac.Role{Name: n}, nil
}

func (f *fakeRoleStore) AssignRole(ctx context.Context, userID int64, roleName string) error {
	if _, err := f.RoleByName(ctx, roleName); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignments[userID] == nil {
		f.assignments[userID] = rbac.RoleSet{}
	}
	f.assignments[userID][rbac.NormalizeRole(roleName)] = struct{}{}
	return nil
}

func (f *fakeRoleStore) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assignments[userID], rbac.NormalizeRole(roleName))
	return nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]int64
	err     error
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: map[string]int64{}}
}

func (m *memRevocations) Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.revoked[tokenID] = userID
	return nil
}

func (m *memRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[tokenID]
	return ok, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []int64
	times []time.Time
	err   error
}

func (n *recordingNotifier) NotifyLogin(ctx context.Context, userID int64, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.times = append(n.times, at)
	return n.err
}

// fakeIdentity answers Exchange from a code-to-identity table.
type fakeIdentity struct {
	mu         sync.Mutex
	identities map[string]auth.ExternalIdentity
	err        error
	codes      []string
}

func (f *fakeIdentity) Name() string { return "fake" }

func (f *fakeIdentity) Exchange(ctx context.Context, code string) (auth.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.err != nil {
		return auth.ExternalIdentity{}, f.err
	}
	id, ok := f.identities[code]
	if !ok {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: unknown code", shared.ErrInvalidCredentials)
	}
	return id, nil
}

var errStoreDown = errors.New("store down")

type fixture struct {
	issuer      *auth.TokenIssuer
	repo        *stubRepo
	roles       *fakeRoleStore
	revocations *memRevocations
	notifier    *recordingNotifier
	identity    *fakeIdentity
	service     *auth.Service
}

// fixtureOptions tweaks newFixtureWith; the zero value matches newFixture.
type fixtureOptions struct {
	now func() time.Time
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureOptions{})
}

func newFixtureWith(t testing.TB, opts fixtureOptions) *fixture {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:     testSecret,
		Issuer:     "flashy-test",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 720 * time.Hour,
		Now:        opts.now,
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	roles := newFakeRoleStore()
	f := &fixture{
		issuer:      issuer,
		roles:       roles,
		repo:        newStubRepo(roles),
		revocations: newMemRevocations(),
		notifier:    &recordingNotifier{},
		identity:    &fakeIdentity{identities: map[string]auth.ExternalIdentity{}},
	}
	f.service, err = auth.NewService(auth.ServiceConfig{
		Repo:         f.repo,
		Roles:        f.roles,
		Issuer:       issuer,
		Revocations:  f.revocations,
		Notifier:     f.notifier,
		Identity:     f.identity,
		PasswordCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return f
}
