package authroles

import (
	domainauth "github.com/target/loginkit/internal/domain/auth"
)

// Role names assigned by GroupRoleMapper.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// GroupRoleMapper maps IdP groups by simple string membership rules.
// Admins also hold the user role.
type GroupRoleMapper struct {
	AdminGroup string
	UserGroup  string
	// Extra maps further groups to roles verbatim.
	Extra map[string]string
}

func (m GroupRoleMapper) Map(groups []string) domainauth.RoleSet {
	roles := domainauth.RoleSet{}
	for _, g := range groups {
		switch {
		case m.AdminGroup != "" && g == m.AdminGroup:
			roles[RoleAdmin] = struct{}{}
			roles[RoleUser] = struct{}{}
		case m.UserGroup != "" && g == m.UserGroup:
			roles[RoleUser] = struct{}{}
		}
		if r, ok := m.Extra[g]; ok {
			roles[r] = struct{}{}
		}
	}
	return roles
}
