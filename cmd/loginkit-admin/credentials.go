package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/target/loginkit/internal/adapters/userfile"
	"github.com/target/loginkit/internal/data/cryptoutil"
	"github.com/target/loginkit/internal/http/authn"
)

// readSecret returns the flag value or the first line of stdin.
func readSecret(cc *commandContext, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	line, err := bufio.NewReader(cc.In).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}

func runHashPassword(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	password := fs.String("password", "", "password to hash (default: read stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := readSecret(cc, *password)
	if err != nil {
		return err
	}
	hash, err := userfile.HashPassword(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cc.Out, hash)
	return err
}

func runHA1(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("ha1", flag.ContinueOnError)
	user := fs.String("user", "", "username")
	realm := fs.String("realm", "Authentication Required", "digest realm")
	password := fs.String("password", "", "password (default: read stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("-user is required")
	}
	pw, err := readSecret(cc, *password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cc.Out, authn.ComputeHA1(*user, *realm, pw))
	return err
}

func runSignRemember(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("sign-remember", flag.ContinueOnError)
	userID := fs.String("user-id", "", "user id to sign")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("-user-id is required")
	}
	auth := cc.Config.Auth
	signer, err := cryptoutil.NewTimestampSigner(auth.SecretKey, auth.RememberMeCookieName)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cc.Out, "%s=%s\n", auth.RememberMeCookieName, signer.Sign(*userID))
	return err
}
