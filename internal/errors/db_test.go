package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_Passthrough(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
	plain := errors.New("plain")
	assert.Same(t, plain, MapDBError(plain))
}

func TestMapDBError_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{context.DeadlineExceeded, ErrCodeTimeout},
		{context.Canceled, ErrCodeCanceled},
		{pgx.ErrNoRows, ErrCodeNotFound},
		{fmt.Errorf("get user: %w", pgx.ErrNoRows), ErrCodeNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetCode(MapDBError(tt.err)), "%v", tt.err)
	}
}

func TestMapDBError_UniqueViolationField(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		field string
	}{
		{"column metadata", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "email"}, "email"},
		{"detail", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (username)=(john) already exists."}, "username"},
		{"expression detail", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (lower(username))=(john) already exists."}, "username"},
		{"constraint name", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_username_key"}, "username"},
		{"unknown", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "a_b_c_key"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			assert.True(t, IsConflict(err))
			assert.Equal(t, tt.field, GetField(err))
		})
	}
}

func TestMapDBError_OtherCodes(t *testing.T) {
	assert.Equal(t, ErrCodeForeignKey, GetCode(MapDBError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})))

	nn := MapDBError(&pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "username"})
	assert.True(t, IsValidation(nn))
	assert.Equal(t, "username", GetField(nn))

	assert.True(t, IsValidation(MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation})))
	assert.Equal(t, ErrCodeInternal, GetCode(MapDBError(&pgconn.PgError{Code: pgerrcode.SyntaxError})))
}
