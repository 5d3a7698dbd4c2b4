package service

import (
	"context"
	"errors"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// ChainUserLoader tries each loader in order and returns the first present
// principal. Errors are collected and only returned when no loader found the
// user, so an unavailable identity cache does not lock out directory users.
type ChainUserLoader []ports.UserLoader

func (c ChainUserLoader) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	var errs []error
	for _, l := range c {
		if l == nil {
			continue
		}
		user, err := l.LoadUser(ctx, userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if domainauth.Present(user) {
			return user, nil
		}
	}
	return nil, errors.Join(errs...)
}
