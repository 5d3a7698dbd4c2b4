package auth

import (
	"fmt"
	"slices"
	"sort"
)

// RoleSet is the set of roles held by a principal.
type RoleSet map[string]struct{}

// NewRoleSet normalizes a role-provider return value: nil is the empty set,
// a string is a singleton and a string slice (or []any of strings) is a set.
func NewRoleSet(v any) (RoleSet, error) {
	set := RoleSet{}
	switch roles := v.(type) {
	case nil:
	case RoleSet:
		for r := range roles {
			set[r] = struct{}{}
		}
	case string:
		set[roles] = struct{}{}
	case []string:
		for _, r := range roles {
			set[r] = struct{}{}
		}
	case []any:
		for _, r := range roles {
			s, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("role value %v (%T) is not a string", r, r)
			}
			set[s] = struct{}{}
		}
	default:
		return nil, fmt.Errorf("unsupported roles type %T", v)
	}
	return set, nil
}

// RolesOf builds a RoleSet from role names.
func RolesOf(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether role is in the set.
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Sorted returns the roles in lexical order.
func (s RoleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// RoleSpec is the normal form of a role requirement: a list of AND-groups,
// satisfied when any single group is fully held. A zero RoleSpec means no
// restriction.
type RoleSpec [][]string

// RequireRole requires one role.
func RequireRole(role string) RoleSpec { return RoleSpec{{role}} }

// AnyRole is satisfied by any one of roles.
func AnyRole(roles ...string) RoleSpec {
	spec := make(RoleSpec, 0, len(roles))
	for _, r := range roles {
		spec = append(spec, []string{r})
	}
	return spec
}

// AllRoles is satisfied only when every role is held.
func AllRoles(roles ...string) RoleSpec {
	return RoleSpec{slices.Clone(roles)}
}

// RoleGroups builds a spec from explicit AND-groups.
func RoleGroups(groups ...[]string) RoleSpec {
	spec := make(RoleSpec, 0, len(groups))
	for _, g := range groups {
		spec = append(spec, slices.Clone(g))
	}
	return spec
}

// ParseRoleSpec normalizes the loose role forms accepted by configuration:
// nil (no restriction), "admin", []string{"admin","editor"} (OR) and
// []any{"admin", []any{"editor","user"}} where nested lists are AND-groups.
func ParseRoleSpec(v any) (RoleSpec, error) {
	switch role := v.(type) {
	case nil:
		return nil, nil
	case RoleSpec:
		return role, nil
	case string:
		return RequireRole(role), nil
	case []string:
		return AnyRole(role...), nil
	case [][]string:
		return RoleGroups(role...), nil
	case []any:
		spec := make(RoleSpec, 0, len(role))
		for _, item := range role {
			group, err := parseGroup(item)
			if err != nil {
				return nil, err
			}
			spec = append(spec, group)
		}
		return spec, nil
	default:
		return nil, fmt.Errorf("unsupported role specification type %T", v)
	}
}

func parseGroup(item any) ([]string, error) {
	switch g := item.(type) {
	case string:
		return []string{g}, nil
	case []string:
		return slices.Clone(g), nil
	case []any:
		group := make([]string, 0, len(g))
		for _, r := range g {
			s, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("role group member %v (%T) is not a string", r, r)
			}
			group = append(group, s)
		}
		return group, nil
	default:
		return nil, fmt.Errorf("unsupported role group type %T", item)
	}
}

// IsZero reports whether the spec places no restriction.
func (s RoleSpec) IsZero() bool { return len(s) == 0 }

// SatisfiedBy reports whether at least one group is a subset of roles.
func (s RoleSpec) SatisfiedBy(roles RoleSet) bool {
	if s.IsZero() {
		return true
	}
	for _, group := range s {
		ok := true
		for _, r := range group {
			if !roles.Has(r) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (s RoleSpec) String() string { return fmt.Sprint([][]string(s)) }
