package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	apperrors "github.com/target/loginkit/internal/errors"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("load: %w", context.Canceled), "canceled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"authentication", fmt.Errorf("digest: %w", domainauth.NewAuthenticationError("Invalid response")), "authentication"},
		{"app not found", apperrors.NotFound("user not found"), "app_not_found"},
		{"wrapped custom", fmt.Errorf("outer: %w", &customErr{}), "errors_customerr"},
		{"plain", errors.New("boom"), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
