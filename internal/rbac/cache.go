package rbac

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore memoizes RoleByName lookups. Roles are static reference data, so
// entries live until evicted or forgotten. RolesOf is never cached.
type CachedStore struct {
	RoleStore
	roles *lru.Cache[string, Role]
}

// NewCachedStore wraps store with an LRU of the given size.
func NewCachedStore(store RoleStore, size int) (*CachedStore, error) {
	cache, err := lru.New[string, Role](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{RoleStore: store, roles: cache}, nil
}

// RoleByName returns a cached role or loads it. Misses are not cached.
func (s *CachedStore) RoleByName(ctx context.Context, name string) (Role, error) {
	key := NormalizeRole(name)
	if role, ok := s.roles.Get(key); ok {
		return role, nil
	}
	role, err := s.RoleStore.RoleByName(ctx, key)
	if err != nil {
		return Role{}, err
	}
	s.roles.Add(key, role)
	return role, nil
}

// Forget drops name from the cache, e.g. after the role catalogue changes.
func (s *CachedStore) Forget(name string) {
	s.roles.Remove(NormalizeRole(name))
}

var _ RoleStore = (*CachedStore)(nil)
