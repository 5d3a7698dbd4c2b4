package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/loginkit/internal/data/cryptoutil"
	"github.com/target/loginkit/internal/data/pgxutil"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	apperrors "github.com/target/loginkit/internal/errors"
	"github.com/target/loginkit/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ ports.PasswordVerifier = (*UserRepo)(nil)
	_ ports.PasswordStore    = (*UserRepo)(nil)
	_ ports.TokenVerifier    = (*UserRepo)(nil)
	_ ports.UserLoader       = (*UserRepo)(nil)
	_ ports.RoleProvider     = (*UserRepo)(nil)
)

// ErrUserNotFound is returned by lookups that require the user to exist.
var ErrUserNotFound = apperrors.NotFound("user not found")

// User is a row of the users table.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PrincipalID implements domainauth.Identifier.
func (u *User) PrincipalID() string { return u.ID }

// UserCreateRequest is the input to UserRepo.Create.
type UserCreateRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
	// HA1 is the precomputed Digest secret; stored encrypted.
	HA1 string `json:"-"`
}

// Validate checks required fields.
func (r UserCreateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return apperrors.ValidationField("username", "username is required")
	case strings.ContainsAny(r.Username, ":\r\n"):
		return apperrors.ValidationField("username", "username must not contain ':' or line breaks")
	case len(r.Password) < 8:
		return apperrors.ValidationField("password", "password must be at least 8 characters")
	}
	return nil
}

// UserRepoConfig tunes UserRepo.
type UserRepoConfig struct {
	// Encryptor seals HA1 values at rest. Defaults to cryptoutil.NoopEncryptor.
	Encryptor cryptoutil.Encryptor
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

// UserRepo stores users and API tokens in Postgres.
type UserRepo struct {
	db   *sql.DB
	enc  cryptoutil.Encryptor
	cost int
	now  func() time.Time
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(db *sql.DB, cfg UserRepoConfig) *UserRepo {
	if cfg.Encryptor == nil {
		cfg.Encryptor = cryptoutil.NoopEncryptor{}
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &UserRepo{db: db, enc: cfg.Encryptor, cost: cfg.BcryptCost, now: cfg.Now}
}

const userColumns = `id, username, COALESCE(email, ''), to_json(roles), disabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, (*roleList)(&u.Roles), &u.Disabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// roleList scans a to_json(text[]) column.
type roleList []string

func (l *roleList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = roleList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan roles: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan roles: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Create inserts a user. A duplicate username is a Conflict.
func (r *UserRepo) Create(ctx context.Context, req UserCreateRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var ha1 sql.NullString
	if req.HA1 != "" {
		sealed, err := r.enc.Encrypt([]byte(req.HA1))
		if err != nil {
			return nil, fmt.Errorf("encrypt ha1: %w", err)
		}
		ha1 = sql.NullString{String: sealed, Valid: true}
	}
	roles := req.Roles
	if roles == nil {
		roles = []string{}
	}
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, ha1, roles, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $7)
		RETURNING `+userColumns,
		uuid.NewString(), strings.TrimSpace(req.Username), req.Email, string(hash), ha1, roles, now)
	u, err := scanUser(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return u, nil
}

// GetByID returns the user or ErrUserNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return u, nil
}

// GetByUsername matches case-insensitively.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, _, err := r.credentials(ctx, username)
	return u, err
}

func (r *UserRepo) credentials(ctx context.Context, username string) (*User, credentialRow, error) {
	var (
		u     User
		creds credentialRow
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(email, ''), to_json(roles), disabled, created_at, updated_at,
		       COALESCE(password_hash, ''), COALESCE(ha1, '')
		FROM users WHERE lower(username) = lower($1)`, username).
		Scan(&u.ID, &u.Username, &u.Email, (*roleList)(&u.Roles), &u.Disabled, &u.CreatedAt, &u.UpdatedAt,
			&creds.passwordHash, &creds.ha1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creds, ErrUserNotFound
	}
	if err != nil {
		return nil, creds, apperrors.MapDBError(err)
	}
	return &u, creds, nil
}

type credentialRow struct {
	passwordHash string
	ha1          string
}

// List returns users ordered by username.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY lower(username) LIMIT $1 OFFSET $2`, limit, max(offset, 0))
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetRoles replaces the user's roles.
func (r *UserRepo) SetRoles(ctx context.Context, id string, roles []string) (*User, error) {
	if roles == nil {
		roles = []string{}
	}
	return r.update(ctx, id, `roles = $2`, roles)
}

// SetDisabled toggles the disabled flag. Disabled users cannot authenticate.
func (r *UserRepo) SetDisabled(ctx context.Context, id string, disabled bool) (*User, error) {
	return r.update(ctx, id, `disabled = $2`, disabled)
}

func (r *UserRepo) update(ctx context.Context, id, set string, arg any) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET `+set+`, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
		id, arg, r.now().UTC())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return u, nil
}

// Delete removes a user and its tokens. It reports whether a row was removed.
func (r *UserRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IssueToken creates a random API token for the user. Only its SHA-256 is
// stored; the plaintext is returned once.
func (r *UserRepo) IssueToken(ctx context.Context, userID, description string) (string, error) {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	err := pgxutil.WithSQLTx(ctx, r.db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		var disabled bool
		err := tx.QueryRowContext(ctx, `SELECT disabled FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&disabled)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return apperrors.MapDBError(err)
		}
		if disabled {
			return apperrors.Validation("user is disabled")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO api_tokens (token_hash, user_id, description, created_at) VALUES ($1, $2, NULLIF($3, ''), $4)`,
			hashToken(token), userID, description, r.now().UTC()); err != nil {
			return apperrors.MapDBError(err)
		}
		return nil
	}})
	if err != nil {
		return "", err
	}
	return token, nil
}

// RevokeTokens deletes every token of a user.
func (r *UserRepo) RevokeTokens(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return res.RowsAffected()
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UserImport is a prehashed row for ImportUsers.
type UserImport struct {
	Username     string
	Email        string
	PasswordHash string
	HA1          string
	Roles        []string
}

// ImportUsers bulk-loads users with COPY in a single transaction. Rows are
// assigned new ids. Any conflict aborts the whole import.
func (r *UserRepo) ImportUsers(ctx context.Context, users []UserImport) (int64, error) {
	now := r.now().UTC()
	rows := make([][]any, 0, len(users))
	for _, u := range users {
		var ha1 any
		if u.HA1 != "" {
			sealed, err := r.enc.Encrypt([]byte(u.HA1))
			if err != nil {
				return 0, fmt.Errorf("encrypt ha1 for %s: %w", u.Username, err)
			}
			ha1 = sealed
		}
		var email, hash any
		if u.Email != "" {
			email = u.Email
		}
		if u.PasswordHash != "" {
			hash = u.PasswordHash
		}
		roles := u.Roles
		if roles == nil {
			roles = []string{}
		}
		rows = append(rows, []any{uuid.NewString(), u.Username, email, hash, ha1, roles, now, now})
	}

	var copied int64
	err := pgxutil.WithPgxTx(ctx, r.db, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"users"},
			[]string{"id", "username", "email", "password_hash", "ha1", "roles", "created_at", "updated_at"},
			pgx.CopyFromRows(rows))
		copied = n
		return err
	}})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return copied, nil
}

// VerifyPassword implements ports.PasswordVerifier.
func (r *UserRepo) VerifyPassword(ctx context.Context, username, password string) (domainauth.Principal, error) {
	u, creds, err := r.credentials(ctx, username)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled || creds.passwordHash == "" {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.passwordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

// LookupPassword implements ports.PasswordStore. Only HA1 is available since
// passwords are stored as bcrypt hashes.
func (r *UserRepo) LookupPassword(ctx context.Context, username string) (string, bool, error) {
	u, creds, err := r.credentials(ctx, username)
	if apperrors.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if u.Disabled || creds.ha1 == "" {
		return "", false, nil
	}
	plain, err := r.enc.Decrypt(creds.ha1)
	if err != nil {
		return "", false, fmt.Errorf("decrypt ha1: %w", err)
	}
	return string(plain), true, nil
}

// VerifyToken implements ports.TokenVerifier.
func (r *UserRepo) VerifyToken(ctx context.Context, token string) (domainauth.Principal, error) {
	if token == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE api_tokens t SET last_used_at = $2
		FROM users u
		WHERE t.token_hash = $1 AND u.id = t.user_id AND NOT u.disabled
		RETURNING u.id, u.username, COALESCE(u.email, ''), to_json(u.roles), u.disabled, u.created_at, u.updated_at`,
		hashToken(token), r.now().UTC())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return u, nil
}

// LoadUser implements ports.UserLoader.
func (r *UserRepo) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	u, err := r.GetByID(ctx, userID)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, nil
	}
	return u, nil
}

// UserRoles implements ports.RoleProvider. Principals from this repo carry
// their roles; others are looked up by id.
func (r *UserRepo) UserRoles(ctx context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	switch u := user.(type) {
	case *User:
		return domainauth.RolesOf(u.Roles...), nil
	case domainauth.Identifier:
		loaded, err := r.GetByID(ctx, u.PrincipalID())
		if apperrors.IsNotFound(err) {
			return domainauth.RoleSet{}, nil
		}
		if err != nil {
			return nil, err
		}
		return domainauth.RolesOf(loaded.Roles...), nil
	default:
		return domainauth.RoleSet{}, nil
	}
}
