// Package mocks provides mock implementations of the auth ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	loader := mocks.NewMockUserLoader(ctrl)
//	loader.EXPECT().LoadUser(gomock.Any(), "1").Return(user, nil)
package mocks

// Generate mocks for the credential and identity ports from internal/ports.
// This creates MockUserLoader, MockRoleProvider, MockPasswordVerifier, MockTokenVerifier and MockNonceStore.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/loginkit/internal/ports UserLoader,RoleProvider,PasswordVerifier,TokenVerifier,NonceStore

// Generate mock for SessionStore interface from internal/ports package.
// This creates MockSessionStore with methods for all SessionStore interface methods:
// Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/loginkit/internal/ports SessionStore
