package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimMapping_ADShape(t *testing.T) {
	claims := map[string]any{
		"sub":            "sub-123",
		"samaccountname": "sammy",
		"firstname":      "First",
		"lastname":       "Last",
		"mail":           "mail@example.com",
		"memberof":       []any{"CN=APP-Loginkit-User,OU=Application"},
	}
	f := DefaultClaimMapping.extract(claims)
	assert.Equal(t, "sammy", f.userID)
	assert.Equal(t, "mail@example.com", f.email)
	assert.Equal(t, "First", f.givenName)
	assert.Equal(t, "Last", f.familyName)
	assert.Equal(t, []string{"CN=APP-Loginkit-User,OU=Application"}, f.groups)
}

func TestClaimMapping_StandardShape(t *testing.T) {
	claims := map[string]any{
		"sub":          "sub-abc",
		"given_name":   "Ada",
		"family_name":  "Lovelace",
		"email":        "ada@example.com",
		"groups":       "engineering",
		"realm_access": map[string]any{"roles": []any{"admin", "user", 7}},
	}
	f := DefaultClaimMapping.extract(claims)
	assert.Equal(t, "sub-abc", f.userID)
	assert.Equal(t, "ada@example.com", f.email)
	assert.Equal(t, "Ada", f.givenName)
	assert.Equal(t, []string{"engineering"}, f.groups)
	assert.Equal(t, []string{"admin", "user"}, f.roles)
}

func TestClaimMapping_Custom(t *testing.T) {
	m := ClaimMapping{UserID: "ext.employee_id", Roles: "permissions[?starts_with(@, 'app:')]"}.withDefaults()
	require.NoError(t, m.Validate())

	f := m.extract(map[string]any{
		"sub":         "ignored",
		"ext":         map[string]any{"employee_id": float64(1042)},
		"permissions": []any{"app:admin", "other:read", "app:user"},
	})
	assert.Equal(t, "1042", f.userID)
	assert.Equal(t, []string{"app:admin", "app:user"}, f.roles)
}

func TestClaimFields_Merge(t *testing.T) {
	f := claimFields{userID: "keep", groups: []string{"x"}}
	f.merge(claimFields{userID: "other", email: "e@example.com", groups: []string{"y"}, roles: []string{"r"}})
	assert.Equal(t, "keep", f.userID)
	assert.Equal(t, "e@example.com", f.email)
	assert.Equal(t, []string{"x"}, f.groups)
	assert.Equal(t, []string{"r"}, f.roles)
}
