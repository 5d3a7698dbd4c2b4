package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/loginkit/internal/http/authn"
	"github.com/target/loginkit/internal/http/login"
	"github.com/target/loginkit/internal/http/session"
	mockauth "github.com/target/loginkit/internal/mocks/auth"
	"github.com/target/loginkit/internal/ports"
)

const (
	testRealm  = "loginkit"
	testNonce  = "0123456789abcdef0123456789abcdef"
	testOpaque = "fedcba9876543210fedcba9876543210"
)

type fixedNonces struct{}

func (fixedNonces) GenerateNonce(context.Context, ports.NonceScope) (string, error) {
	return testNonce, nil
}

func (fixedNonces) VerifyNonce(_ context.Context, _ ports.NonceScope, n string) (bool, error) {
	return n == testNonce, nil
}

func (fixedNonces) GenerateOpaque(context.Context, ports.NonceScope) (string, error) {
	return testOpaque, nil
}

func (fixedNonces) VerifyOpaque(_ context.Context, _ ports.NonceScope, o string) (bool, error) {
	return o == testOpaque, nil
}

type app struct {
	handler http.Handler
	dir     *mockauth.Directory
}

func newApp(t *testing.T) *app {
	t.Helper()
	dir := mockauth.NewDirectory()
	dir.Add("1", "john", "hello", "user")
	dir.Add("2", "susan", "bye", "admin", "user")
	dir.Add("3", "eddie", "pencil", "editor", "user")
	dir.Add("4", "ada", "both", "admin", "editor")
	dir.AddToken("tok-john", "john")

	codec, err := session.NewSignedCodec("router-secret")
	require.NoError(t, err)
	sessions := session.NewCookieStore(codec, session.CookieOptions{})

	m, err := login.NewManager(login.Config{
		SecretKey: "router-secret",
		LoginURL:  "/login",
		Users:     dir,
		Roles:     dir,
	})
	require.NoError(t, err)

	common := authn.Common{Realm: testRealm, Roles: dir}
	basic := authn.NewBasicAuth(authn.BasicConfig{Common: common, Verifier: dir})
	token := authn.NewTokenAuth(authn.TokenConfig{Common: common, Verifier: dir})
	digest, err := authn.NewDigestAuth(authn.DigestConfig{
		Common: common,
		UseHA1: true,
		Passwords: ports.PasswordStoreFunc(func(_ context.Context, u string) (string, bool, error) {
			if u != "john" {
				return "", false, nil
			}
			return authn.ComputeHA1("john", testRealm, "hello"), true, nil
		}),
		Nonces: fixedNonces{},
	})
	require.NoError(t, err)
	multi, err := authn.NewMultiAuth(digest, token, basic)
	require.NoError(t, err)

	return &app{
		dir: dir,
		handler: NewRouter(RouterServices{
			Manager:     m,
			Sessions:    sessions,
			Passwords:   dir,
			Users:       dir,
			DirectLogin: true,
			Basic:       basic,
			Token:       token,
			Digest:      digest,
			Multi:       multi,
		}),
	}
}

func (a *app) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) login(t *testing.T, body string) []*http.Cookie {
	t.Helper()
	rec := a.do(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouter_LoginThenProfile(t *testing.T) {
	a := newApp(t)
	rec := a.do(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"user_id":"1","remember_me":true}`)))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "session")
	assert.Contains(t, names, "remember_me")

	rec = a.do(httptest.NewRequest(http.MethodGet, "/profile", nil), cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, "1", user["id"])
	assert.Equal(t, "john", user["name"])
}

func TestRouter_LoginWithPassword(t *testing.T) {
	a := newApp(t)
	cookies := a.login(t, `{"username":"susan","password":"bye"}`)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/admin", nil), cookies...)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "susan", decodeBody(t, rec)["user"])

	rec = a.do(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"susan","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestRouter_LoginHonoursNext(t *testing.T) {
	a := newApp(t)
	req := httptest.NewRequest(http.MethodPost, "/login?next=/settings", strings.NewReader(`{"user_id":"3"}`))
	rec := a.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/settings", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodPost, "/login?next=https://evil.example/", strings.NewReader(`{"user_id":"3"}`))
	rec = a.do(req)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestRouter_RoleChecks(t *testing.T) {
	a := newApp(t)
	editor := a.login(t, `{"user_id":"3"}`)
	both := a.login(t, `{"user_id":"4"}`)
	admin := a.login(t, `{"user_id":"2"}`)

	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		want    int
	}{
		{"editor denied admin", "/admin", editor, http.StatusForbidden},
		{"editor allowed settings", "/settings", editor, http.StatusOK},
		{"admin denied restricted", "/restricted", admin, http.StatusForbidden},
		{"admin and editor allowed restricted", "/restricted", both, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(httptest.NewRequest(http.MethodGet, tt.path, nil), tt.cookies...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_UnauthenticatedRedirectsToLogin(t *testing.T) {
	a := newApp(t)
	rec := a.do(httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=/profile", rec.Header().Get("Location"))
}

func TestRouter_Logout(t *testing.T) {
	a := newApp(t)
	cookies := a.login(t, `{"user_id":"1"}`)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/logout", nil), cookies...)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	rec = a.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil), sessionCookie)
	assert.Equal(t, false, decodeBody(t, rec)["authenticated"])
}

func TestRouter_MultiAuthDispatch(t *testing.T) {
	a := newApp(t)
	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("john:hello"))

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{"bearer", "Bearer tok-john", http.StatusOK, `"hi, john!"`},
		{"basic", basic, http.StatusOK, `"hi, john!"`},
		{"bad bearer", "Bearer nope", http.StatusUnauthorized, ""},
		{"no credentials", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/multi/hi", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := a.do(req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRouter_MultiAuthChallengeUsesFirstBackend(t *testing.T) {
	a := newApp(t)
	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/multi/hi", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Digest "))
}

func TestRouter_DigestWithStoredHA1(t *testing.T) {
	a := newApp(t)
	const (
		uri    = "/api/digest/hello"
		cnonce = "c1c2c3"
		nc     = "00000001"
	)
	response := authn.DigestResponse(authn.DigestInput{
		Username:  "john",
		Realm:     testRealm,
		Secret:    "hello",
		Algorithm: authn.AlgorithmMD5,
		Method:    http.MethodGet,
		URI:       uri,
		Nonce:     testNonce,
		NC:        nc,
		CNonce:    cnonce,
		Qop:       "auth",
	})
	header := `Digest username="john", realm="` + testRealm + `", nonce="` + testNonce + `", uri="` + uri +
		`", qop=auth, nc=` + nc + `, cnonce="` + cnonce + `", response="` + response + `", opaque="` + testOpaque + `"`

	req := httptest.NewRequest(http.MethodGet, uri, nil)
	req.Header.Set("Authorization", header)
	rec := a.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"hello, john!"`)
}

func TestRouter_BasicRoles(t *testing.T) {
	a := newApp(t)
	auth := func(u, p string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(u+":"+p))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.Header.Set("Authorization", auth("john", "hello"))
	assert.Equal(t, http.StatusForbidden, a.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.Header.Set("Authorization", auth("susan", "bye"))
	assert.Equal(t, http.StatusOK, a.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/welcome", nil)
	req.Header.Set("Authorization", auth("john", "hello"))
	assert.Equal(t, http.StatusOK, a.do(req).Code)
}

func TestRouter_Health(t *testing.T) {
	a := newApp(t)
	rec := a.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = a.do(httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_DirectLoginDisabled(t *testing.T) {
	a := newApp(t)
	m, err := login.NewManager(login.Config{SecretKey: "s", Users: a.dir, Roles: a.dir})
	require.NoError(t, err)
	codec, err := session.NewSignedCodec("s")
	require.NoError(t, err)
	h := NewRouter(RouterServices{Manager: m, Sessions: session.NewCookieStore(codec, session.CookieOptions{}), Users: a.dir})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"user_id":"1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "direct_login_disabled")
}

func TestRouter_RoleRoutesNeedRoleProvider(t *testing.T) {
	a := newApp(t)
	m, err := login.NewManager(login.Config{SecretKey: "s", Users: a.dir})
	require.NoError(t, err)
	codec, err := session.NewSignedCodec("s")
	require.NoError(t, err)

	var h http.Handler
	require.NotPanics(t, func() {
		h = NewRouter(RouterServices{Manager: m, Sessions: session.NewCookieStore(codec, session.CookieOptions{})})
	})
	for _, path := range []string{"/admin", "/settings", "/restricted"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
