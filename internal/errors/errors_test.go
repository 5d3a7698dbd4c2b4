package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "resource not found", NotFound("resource not found").Error())
	wrapped := Wrap(errors.New("underlying error"), ErrCodeInternal, "failed to process")
	assert.Equal(t, "failed to process: underlying error", wrapped.Error())
}

func TestAppError_UnwrapAndAs(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrapf(cause, ErrCodeConflict, "user %s exists", "john"))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "user john exists: boom", errors.Unwrap(err).Error())
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestValidationField(t *testing.T) {
	err := ValidationField("username", "required")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "username", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{New(ErrCodeUnauthenticated, "x"), http.StatusUnauthorized},
		{New(ErrCodeForbidden, "x"), http.StatusForbidden},
		{New(ErrCodeTimeout, "x"), http.StatusGatewayTimeout},
		{Internal("x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "no such user", PublicMessage(NotFound("no such user")))
	assert.Equal(t, "Internal server error", PublicMessage(Internal("db password is hunter2")))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("raw")))
}
