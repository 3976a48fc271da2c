package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/iudanet/gophchat/internal/config"
	"github.com/iudanet/gophchat/internal/crypto"
	"github.com/iudanet/gophchat/internal/logging"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server"
	"github.com/iudanet/gophchat/internal/server/storage"
	"github.com/iudanet/gophchat/internal/server/storage/postgres"
	"github.com/iudanet/gophchat/internal/server/storage/sqlite"
	"github.com/iudanet/gophchat/internal/validation"
)

// flagKeys maps serve flags to config keys
var flagKeys = map[string]string{
	"addr":       "server.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"users":      "credentials.file",
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "gophchat-server",
		Usage:     "authenticated chat proxy in front of a hosted LLM",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Reader:    in,
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			serveCommand(),
			hashPasswordCommand(),
			addUserCommand(),
		},
		DefaultCommand: "serve",
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", EnvVars: []string{"GOPHCHAT_CONFIG"}},
			&cli.StringFlag{Name: "addr", Usage: "listen address, e.g. :8080"},
			&cli.StringFlag{Name: "users", Usage: "path to YAML users file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := server.NewApp(ctx, cfg, logger, Version, nil)
	if err != nil {
		return err
	}

	return app.Run(ctx)
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "print an argon2id hash for the users file",
		Action: func(c *cli.Context) error {
			password, err := readPassword(c.App.Reader, c.App.ErrWriter, "Password: ")
			if err != nil {
				return err
			}
			if err := validation.ValidatePassword(password); err != nil {
				return err
			}

			hash, err := crypto.HashPassword(password)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(c.App.Writer, hash)
			return err
		},
	}
}

func addUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "add-user",
		Usage: "store a user in the sqlite or postgres credential store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: config.DriverSQLite, Usage: "sqlite or postgres"},
			&cli.StringFlag{Name: "dsn", Required: true, Usage: "sqlite path or postgres DSN", EnvVars: []string{"GOPHCHAT_CREDENTIALS_DSN"}},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
		},
		Action: runAddUser,
	}
}

// credentialWriter is a credential store that can be closed
type credentialWriter interface {
	storage.CredentialWriter
	io.Closer
}

func runAddUser(c *cli.Context) error {
	username := c.String("username")
	if err := validation.ValidateUsername(username); err != nil {
		return err
	}

	password, err := readPassword(c.App.Reader, c.App.ErrWriter, "Password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	store, err := openWriter(c.Context, c.String("driver"), c.String("dsn"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	err = store.CreateCredential(c.Context, &models.Credential{Username: username, PasswordHash: hash})
	if errors.Is(err, storage.ErrUserAlreadyExists) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "user %s added\n", username)
	return err
}

func openWriter(ctx context.Context, driver, dsn string) (credentialWriter, error) {
	switch driver {
	case config.DriverSQLite:
		return sqlite.New(ctx, dsn)
	case config.DriverPostgres:
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("driver %q does not support adding users", driver)
	}
}

// readPassword reads without echo from a terminal, or one line otherwise
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
