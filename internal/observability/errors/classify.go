// Package errors reduces errors to short class names for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	apperrors "github.com/target/loginkit/internal/errors"
)

// Classify returns a stable, low-cardinality class for err. Known auth and
// application errors map to fixed names; anything else is named after its
// innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var authErr *domainauth.AuthenticationError
	if goerrors.As(err, &authErr) {
		return "authentication"
	}
	if code := apperrors.GetCode(err); code != "" {
		return "app_" + strings.ToLower(string(code))
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
