package rbac

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// RoleSet is an unordered set of normalized role names.
type RoleSet map[string]struct{}

// NormalizeRole trims and case-folds a role name. Caser values are stateful,
// so a fresh one is built per call.
func NormalizeRole(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// NewRoleSet builds a set from names, skipping blanks.
func NewRoleSet(names ...string) RoleSet {
	set := make(RoleSet, len(names))
	for _, name := range names {
		n := NormalizeRole(name)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports membership of name.
func (s RoleSet) Has(name string) bool {
	_, ok := s[NormalizeRole(name)]
	return ok
}

// Len returns the number of roles.
func (s RoleSet) Len() int { return len(s) }

// ContainsAll reports whether every role in required is in s.
func (s RoleSet) ContainsAll(required RoleSet) bool {
	for name := range required {
		if _, ok := s[name]; !ok {
			return false
		}
	}
	return true
}

// Intersects reports whether s and other share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for name := range small {
		if _, ok := large[name]; ok {
			return true
		}
	}
	return false
}

// Equal reports set equality.
func (s RoleSet) Equal(other RoleSet) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

// Names returns the roles sorted. The result is never nil.
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diff returns roles in s missing from other.
func (s RoleSet) Diff(other RoleSet) []string {
	var out []string
	for _, name := range s.Names() {
		if _, ok := other[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
