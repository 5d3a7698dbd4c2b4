package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/loginkit/config"
	"github.com/target/loginkit/internal/data/cryptoutil"
	"golang.org/x/crypto/bcrypt"
)

func newTestContext(stdin string) (*commandContext, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:    out,
		In:     strings.NewReader(stdin),
	}, out
}

func noConfig() (config.AppConfig, error) {
	return config.AppConfig{}, errors.New("config must not be loaded")
}

func TestDispatch_Usage(t *testing.T) {
	cc, out := newTestContext("")
	require.ErrorIs(t, dispatch(cc, nil, noConfig), errUsage)
	assert.Contains(t, out.String(), "hash-password")

	out.Reset()
	require.ErrorIs(t, dispatch(cc, []string{"nope"}, noConfig), errUsage)
	assert.Contains(t, out.String(), `unknown command "nope"`)
}

func TestHashPassword_FromStdin(t *testing.T) {
	cc, out := newTestContext("correct horse\n")
	require.NoError(t, dispatch(cc, []string{"hash-password"}, noConfig))

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
}

func TestHashPassword_EmptyInput(t *testing.T) {
	cc, _ := newTestContext("")
	require.Error(t, dispatch(cc, []string{"hash-password"}, noConfig))
}

func TestHA1(t *testing.T) {
	cc, out := newTestContext("")
	args := []string{"ha1", "-user", "Mufasa", "-realm", "testrealm@host.com", "-password", "Circle Of Life"}
	require.NoError(t, dispatch(cc, args, noConfig))
	assert.Equal(t, "939e7578ed9e3c518a452acee763bce9\n", out.String())

	require.Error(t, dispatch(cc, []string{"ha1", "-password", "x"}, noConfig))
}

func TestSignRemember(t *testing.T) {
	cc, out := newTestContext("")
	load := func() (config.AppConfig, error) {
		return config.AppConfig{Auth: config.AuthConfig{SecretKey: "k", RememberMeCookieName: "remember_me"}}, nil
	}
	require.NoError(t, dispatch(cc, []string{"sign-remember", "-user-id", "42"}, load))

	name, value, ok := strings.Cut(strings.TrimSpace(out.String()), "=")
	require.True(t, ok)
	assert.Equal(t, "remember_me", name)

	signer, err := cryptoutil.NewTimestampSigner("k", "remember_me")
	require.NoError(t, err)
	id, err := signer.Unsign(value, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestImportRows(t *testing.T) {
	doc := `
users:
  - username: ann
    password: plain-pass
    roles: admin
  - username: bob
    password: "$2a$10$abcdefghijklmnopqrstuuE5S1RkGk3x2cO0O2Q5rJ6mX8s9dY7e"
    ha1: 0123456789abcdef0123456789abcdef
  - username: carl
`
	rows, err := importRows([]byte(doc), "loginkit")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"admin"}, rows[0].Roles)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(rows[0].PasswordHash), []byte("plain-pass")))
	assert.Len(t, rows[0].HA1, 32)

	assert.True(t, strings.HasPrefix(rows[1].PasswordHash, "$2a$"))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", rows[1].HA1)

	assert.Empty(t, rows[2].PasswordHash)

	_, err = importRows([]byte("users:\n  - email: x@example.com\n"), "r")
	require.Error(t, err)
}

func TestSplitRoles(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitRoles(" a, ,b "))
	assert.Nil(t, splitRoles(""))
}
