package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/loginkit/internal/adapters/userfile"
	"github.com/target/loginkit/internal/bootstrap"
	"github.com/target/loginkit/internal/data"
	"github.com/target/loginkit/internal/http/authn"
	"github.com/target/loginkit/internal/migrate"
	"gopkg.in/yaml.v3"
)

const defaultCommandTimeout = 2 * time.Minute

// withRepo connects to Postgres without auto-migrating and hands fn a repo.
func withRepo(cc *commandContext, fn func(ctx context.Context, db *sql.DB, repo *data.UserRepo) error) (err error) {
	ctx, cancel := context.WithTimeout(cc.Ctx, defaultCommandTimeout)
	defer cancel()

	dbCfg := cc.Config.Postgres
	dbCfg.RunMigrationsOnStart = false
	db, err := bootstrap.ConnectDB(ctx, dbCfg, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	enc, err := bootstrap.NewHA1Encryptor(dbCfg.EncryptionKey, cc.Config.IsDev, cc.Logger)
	if err != nil {
		return err
	}
	return fn(ctx, db, data.NewUserRepo(db, data.UserRepoConfig{Encryptor: enc}))
}

func runMigrate(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "list pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, db *sql.DB, _ *data.UserRepo) error {
		pending, err := migrate.Pending(ctx, db)
		if err != nil {
			return err
		}
		if *status {
			if len(pending) == 0 {
				_, err = fmt.Fprintln(cc.Out, "database is up to date")
				return err
			}
			for _, m := range pending {
				fmt.Fprintf(cc.Out, "pending  %s\n", m.Version)
			}
			return nil
		}
		if err := migrate.Run(ctx, db); err != nil {
			return err
		}
		cc.Logger.InfoContext(ctx, "migrations applied", "count", len(pending))
		return nil
	})
}

func runCreateUser(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (default: read stdin)")
	roles := fs.String("roles", "user", "comma separated roles")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := readSecret(cc, *password)
	if err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		u, err := repo.Create(ctx, data.UserCreateRequest{
			Username: *username,
			Email:    *email,
			Password: pw,
			Roles:    splitRoles(*roles),
			HA1:      authn.ComputeHA1(*username, cc.Config.Auth.Realm, pw),
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cc.Out, "created %s (%s)\n", u.Username, u.ID)
		return err
	})
}

func runListUsers(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		users, err := repo.List(ctx, *limit, *offset)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cc.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLES\tDISABLED")
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%t\n", u.ID, u.Username, u.Email, u.Roles, u.Disabled)
		}
		return tw.Flush()
	})
}

func runSetRoles(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("set-roles", flag.ContinueOnError)
	id := fs.String("user-id", "", "user id")
	roles := fs.String("roles", "", "comma separated roles (empty clears)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		u, err := repo.SetRoles(ctx, *id, splitRoles(*roles))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cc.Out, "%s roles: %v\n", u.Username, u.Roles)
		return err
	})
}

func runDisableUser(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("disable-user", flag.ContinueOnError)
	id := fs.String("user-id", "", "user id")
	enable := fs.Bool("enable", false, "re-enable instead of disabling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		u, err := repo.SetDisabled(ctx, *id, !*enable)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cc.Out, "%s disabled=%t\n", u.Username, u.Disabled)
		return err
	})
}

func runIssueToken(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	id := fs.String("user-id", "", "user id")
	desc := fs.String("description", "", "what the token is for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		token, err := repo.IssueToken(ctx, *id, *desc)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cc.Out, token)
		return err
	})
}

func runRevokeTokens(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("revoke-tokens", flag.ContinueOnError)
	id := fs.String("user-id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		n, err := repo.RevokeTokens(ctx, *id)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cc.Out, "revoked %d token(s)\n", n)
		return err
	})
}

func runImportUsers(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("import-users", flag.ContinueOnError)
	path := fs.String("file", "", "YAML users file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	rows, err := importRows(raw, cc.Config.Auth.Realm)
	if err != nil {
		return err
	}
	return withRepo(cc, func(ctx context.Context, _ *sql.DB, repo *data.UserRepo) error {
		n, err := repo.ImportUsers(ctx, rows)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cc.Out, "imported %d user(s)\n", n)
		return err
	})
}

// importRows converts users file entries. Plaintext passwords are hashed
// and also produce an HA1 for realm; bcrypt entries keep their stored HA1.
func importRows(raw []byte, realm string) ([]data.UserImport, error) {
	var file userfile.File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	rows := make([]data.UserImport, 0, len(file.Users))
	for i, e := range file.Users {
		if e.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		row := data.UserImport{Username: e.Username, Email: e.Email, HA1: e.HA1, Roles: e.Roles}
		switch {
		case e.Password == "":
		case userfile.IsHashed(e.Password):
			row.PasswordHash = e.Password
		default:
			hash, err := userfile.HashPassword(e.Password)
			if err != nil {
				return nil, err
			}
			row.PasswordHash = hash
			if row.HA1 == "" {
				row.HA1 = authn.ComputeHA1(e.Username, realm, e.Password)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
