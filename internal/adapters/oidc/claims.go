package oidc

import (
	"fmt"
	"strconv"

	"github.com/jmespath-community/go-jmespath"
)

// ClaimMapping holds JMESPath expressions that pull identity fields out of a
// token's claims. Use "a || b" to fall back between claim shapes.
type ClaimMapping struct {
	UserID     string
	Email      string
	GivenName  string
	FamilyName string
	Groups     string
	// Roles selects application roles directly from the token.
	Roles string
}

// DefaultClaimMapping accepts both standard OIDC and AD/ADFS claim shapes.
var DefaultClaimMapping = ClaimMapping{
	UserID:     "samaccountname || preferred_username || sub",
	Email:      "mail || email",
	GivenName:  "firstname || given_name",
	FamilyName: "lastname || family_name",
	Groups:     "memberof || groups",
	Roles:      "roles || realm_access.roles",
}

// withDefaults fills empty expressions from DefaultClaimMapping.
func (m ClaimMapping) withDefaults() ClaimMapping {
	d := DefaultClaimMapping
	if m.UserID == "" {
		m.UserID = d.UserID
	}
	if m.Email == "" {
		m.Email = d.Email
	}
	if m.GivenName == "" {
		m.GivenName = d.GivenName
	}
	if m.FamilyName == "" {
		m.FamilyName = d.FamilyName
	}
	if m.Groups == "" {
		m.Groups = d.Groups
	}
	if m.Roles == "" {
		m.Roles = d.Roles
	}
	return m
}

// Validate compiles every expression.
func (m ClaimMapping) Validate() error {
	for name, expr := range map[string]string{
		"user id": m.UserID, "email": m.Email, "given name": m.GivenName,
		"family name": m.FamilyName, "groups": m.Groups, "roles": m.Roles,
	} {
		if expr == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("invalid %s claim expression %q: %w", name, expr, err)
		}
	}
	return nil
}

// claimFields is the identity extracted from one claims document.
type claimFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	groups     []string
	roles      []string
}

func (m ClaimMapping) extract(claims map[string]any) claimFields {
	return claimFields{
		userID:     searchString(m.UserID, claims),
		email:      searchString(m.Email, claims),
		givenName:  searchString(m.GivenName, claims),
		familyName: searchString(m.FamilyName, claims),
		groups:     searchStrings(m.Groups, claims),
		roles:      searchStrings(m.Roles, claims),
	}
}

// merge fills fields missing from f with values from other.
func (f *claimFields) merge(other claimFields) {
	if f.userID == "" {
		f.userID = other.userID
	}
	if f.email == "" {
		f.email = other.email
	}
	if f.givenName == "" {
		f.givenName = other.givenName
	}
	if f.familyName == "" {
		f.familyName = other.familyName
	}
	if len(f.groups) == 0 {
		f.groups = other.groups
	}
	if len(f.roles) == 0 {
		f.roles = other.roles
	}
}

func searchString(expr string, claims map[string]any) string {
	if expr == "" {
		return ""
	}
	v, err := jmespath.Search(expr, claims)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// searchStrings accepts a single string or a list of strings.
func searchStrings(expr string, claims map[string]any) []string {
	if expr == "" {
		return nil
	}
	v, err := jmespath.Search(expr, claims)
	if err != nil || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
