package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/target/loginkit/config"
	"github.com/target/loginkit/internal/bootstrap"
)

type commandFn func(cc *commandContext, args []string) error

type command struct {
	name        string
	description string
	// needsConfig loads the environment configuration before run.
	needsConfig bool
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger(config.ObservabilityConfig{LogLevel: os.Getenv("LOG_LEVEL")})
	cc := &commandContext{Ctx: ctx, Logger: logger, Out: os.Stdout, In: os.Stdin}
	if err := dispatch(cc, os.Args[1:], bootstrap.LoadConfig); err != nil {
		if errors.Is(err, errUsage) {
			stop()
			os.Exit(2) //nolint:forbidigo // CLI signals misuse with status 2
		}
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI propagates command failure to the shell
	}
}

func dispatch(cc *commandContext, args []string, load func() (config.AppConfig, error)) error {
	if len(args) == 0 {
		printUsage(cc.Out)
		return errUsage
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		fmt.Fprintf(cc.Out, "unknown command %q\n\n", args[0])
		printUsage(cc.Out)
		return errUsage
	}
	if cmd.needsConfig {
		cfg, err := load()
		if err != nil {
			return err
		}
		cc.Config = cfg
	}
	if err := cmd.run(cc, args[1:]); err != nil {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	return nil
}

func commands() map[string]command {
	list := []command{
		{name: "hash-password", description: "Print a bcrypt hash for a users file entry", run: runHashPassword},
		{name: "ha1", description: "Print the Digest HA1 for a user, realm and password", run: runHA1},
		{name: "sign-remember", description: "Print a signed remember-me cookie value for a user id", needsConfig: true, run: runSignRemember},
		{name: "migrate", description: "Apply pending database migrations (-status lists them)", needsConfig: true, run: runMigrate},
		{name: "create-user", description: "Create a user in the Postgres directory", needsConfig: true, run: runCreateUser},
		{name: "list-users", description: "List users in the Postgres directory", needsConfig: true, run: runListUsers},
		{name: "set-roles", description: "Replace a user's roles", needsConfig: true, run: runSetRoles},
		{name: "disable-user", description: "Disable or re-enable a user", needsConfig: true, run: runDisableUser},
		{name: "issue-token", description: "Issue an API token for a user", needsConfig: true, run: runIssueToken},
		{name: "revoke-tokens", description: "Revoke every API token of a user", needsConfig: true, run: runRevokeTokens},
		{name: "import-users", description: "Bulk-load a YAML users file into Postgres", needsConfig: true, run: runImportUsers},
	}
	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.name] = c
	}
	return out
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: loginkit-admin <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Available commands:")
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, cmds[name].description)
	}
}

// splitRoles parses a comma separated role list.
func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
