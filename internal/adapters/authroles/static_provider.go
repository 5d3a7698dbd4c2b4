package authroles

import (
	"context"
	"fmt"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// StaticRoleProvider serves roles from a fixed user-id table. Values may be a
// string, []string or []any, matching the loose forms accepted by
// domainauth.NewRoleSet.
type StaticRoleProvider struct {
	Roles map[string]any
	// IDOf extracts the lookup key from a principal. Defaults to PrincipalID
	// for domainauth.Identifier values and the string itself for strings.
	IDOf func(domainauth.Principal) (string, bool)
}

func (p StaticRoleProvider) UserRoles(_ context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	idOf := p.IDOf
	if idOf == nil {
		idOf = DefaultIDOf
	}
	id, ok := idOf(user)
	if !ok {
		return domainauth.RoleSet{}, nil
	}
	set, err := domainauth.NewRoleSet(p.Roles[id])
	if err != nil {
		return nil, fmt.Errorf("roles for %q: %w", id, err)
	}
	return set, nil
}

// DefaultIDOf returns the id of Identifier principals and plain string principals.
func DefaultIDOf(user domainauth.Principal) (string, bool) {
	switch u := user.(type) {
	case domainauth.Identifier:
		return u.PrincipalID(), true
	case string:
		return u, true
	default:
		return "", false
	}
}

// IdentityRoleProvider returns the roles carried on Identity principals and
// delegates every other principal to Next.
type IdentityRoleProvider struct {
	Next ports.RoleProvider
}

func (p IdentityRoleProvider) UserRoles(ctx context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	switch u := user.(type) {
	case domainauth.Identity:
		return domainauth.RolesOf(u.Roles...), nil
	case *domainauth.Identity:
		if u != nil {
			return domainauth.RolesOf(u.Roles...), nil
		}
	}
	if p.Next == nil {
		return domainauth.RoleSet{}, nil
	}
	return p.Next.UserRoles(ctx, user)
}
