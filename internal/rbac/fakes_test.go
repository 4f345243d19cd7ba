package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flashy-edu/flashy/internal/shared"
)

type memStore struct {
	mu          sync.Mutex
	roles       map[string]Role
	assignments map[int64]RoleSet
	lookups     int
	err         error
}

func newMemStore(names ...string) *memStore {
	s := &memStore{roles: map[string]Role{}, assignments: map[int64]RoleSet{}}
	for i, name := range names {
		s.roles[name] = Role{ID: int64(i + 1), Name: name}
	}
	return s
}

func (s *memStore) RolesOf(ctx context.Context, userID int64) (RoleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return NewRoleSet(s.assignments[userID].Names()...), nil
}

func (s *memStore) RoleByName(ctx context.Context, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	role, ok := s.roles[NormalizeRole(name)]
	if !ok {
		return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrNotFound)
	}
	return role, nil
}

func (s *memStore) AssignRole(ctx context.Context, userID int64, roleName string) error {
	if _, err := s.RoleByName(ctx, roleName); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignments[userID] == nil {
		s.assignments[userID] = RoleSet{}
	}
	s.assignments[userID][NormalizeRole(roleName)] = struct{}{}
	return nil
}

func (s *memStore) RemoveRole(ctx context.Context, userID int64, roleName string) error {
	if _, err := s.RoleByName(ctx, roleName); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments[userID], NormalizeRole(roleName))
	return nil
}

type stubVerifier struct {
	principals map[string]*Principal
}

func (v stubVerifier) VerifyAccess(token string) (*Principal, error) {
	p, ok := v.principals[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return p, nil
}

type recordingObserver struct {
	decisions []string
}

func (o *recordingObserver) ObserveDecision(policy, decision string) {
	o.decisions = append(o.decisions, policy+"="+decision)
}
