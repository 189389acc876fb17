package rbac

import "fmt"

// Set is an insertion-ordered collection of permissions without duplicates.
// The zero value is an empty set ready to use.
type Set struct {
	order []Permission
	index map[Permission]struct{}
}

// NewSet builds a Set from perms, keeping the first occurrence of each pair.
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s.Add(p)
	}
	return s
}

// Add inserts p and reports whether it was not already present.
func (s *Set) Add(p Permission) bool {
	if s.index == nil {
		s.index = make(map[Permission]struct{})
	}
	if _, ok := s.index[p]; ok {
		return false
	}
	s.index[p] = struct{}{}
	s.order = append(s.order, p)
	return true
}

// Has reports whether the set grants p.
func (s Set) Has(p Permission) bool {
	_, ok := s.index[p]
	return ok
}

// Require returns ErrForbidden when p is not granted.
func (s Set) Require(p Permission) error {
	if s.Has(p) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, p)
}

// Len returns the number of distinct permissions.
func (s Set) Len() int {
	return len(s.order)
}

// List returns a copy of the permissions in insertion order.
func (s Set) List() []Permission {
	out := make([]Permission, len(s.order))
	copy(out, s.order)
	return out
}

// Equal reports whether both sets hold the same permissions, ignoring order.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, p := range s.order {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Modules returns the distinct modules that have the given action granted.
func (s Set) Modules(action Action) []Module {
	var out []Module
	for _, m := range Modules() {
		if s.Has(P(m, action)) {
			out = append(out, m)
		}
	}
	return out
}
