// Package server wires configuration, storage, the completion client and the
// HTTP layer together and runs the chat server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/iudanet/gophchat/internal/chat"
	"github.com/iudanet/gophchat/internal/config"
	"github.com/iudanet/gophchat/internal/llm"
	"github.com/iudanet/gophchat/internal/llm/langchain"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/auth"
	"github.com/iudanet/gophchat/internal/server/handlers"
	"github.com/iudanet/gophchat/internal/server/metrics"
	"github.com/iudanet/gophchat/internal/server/storage"
	"github.com/iudanet/gophchat/internal/server/storage/memory"
	"github.com/iudanet/gophchat/internal/server/storage/postgres"
	"github.com/iudanet/gophchat/internal/server/storage/sqlite"
	"github.com/iudanet/gophchat/internal/server/storage/static"
)

// App is a configured chat server.
type App struct {
	logger   *slog.Logger
	server   *http.Server
	sessions *memory.SessionStore
	closer   io.Closer
	cfg      *config.Config
}

// NewApp builds the server from cfg. client may be nil, in which case the
// completion client is built from cfg.LLM.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string, client llm.Client) (*App, error) {
	creds, pinger, closer, err := openCredentials(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewService(logger, creds, auth.Config{
		Issuer:   cfg.Auth.Issuer,
		Secret:   []byte(cfg.Auth.SecretKey),
		TokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	if client == nil {
		client, err = langchain.NewFromConfig(ctx, langchain.Config{
			Provider: cfg.LLM.Provider,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
		})
		if err != nil {
			closeQuietly(closer)
			return nil, fmt.Errorf("failed to create completion client: %w", err)
		}
	}

	// У статического хранилища нечего проверять
	var store handlers.Pinger
	if pinger != nil {
		store = pinger
	}

	registry := metrics.NewRegistry()

	sessions := memory.NewSessionStore(
		memory.WithIdleTTL(cfg.Sessions.IdleTTL),
		memory.WithMaxSessions(cfg.Sessions.MaxSessions),
		memory.WithLogger(logger),
		memory.WithObserver(registry),
	)

	chatService := chat.NewService(logger, sessions, client, chat.Config{
		SystemInstruction: cfg.LLM.SystemInstruction,
		ContextTurns:      cfg.Sessions.ContextTurns,
		UpstreamTimeout:   cfg.LLM.Timeout,
		Options: llm.Options{
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
			ThinkingBudget: cfg.LLM.ThinkingBudget,
		},
	}, chat.WithObserver(registry))

	router := NewRouter(RouterConfig{
		Logger:            logger,
		Issuer:            authService,
		Authenticator:     authService,
		Chat:              chatService,
		Store:             store,
		Metrics:           registry,
		Version:           version,
		RequireForSession: cfg.Auth.RequireForSession,
		RequireForChat:    cfg.Auth.RequireForChat,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &App{
		logger:   logger,
		server:   srv,
		sessions: sessions,
		closer:   closer,
		cfg:      cfg,
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer closeQuietly(a.closer)

	a.sessions.StartSweeper(a.cfg.Sessions.SweepInterval)
	defer a.sessions.Stop()

	errC := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "server started", slog.String("addr", ln.Addr().String()))
		errC <- a.server.Serve(ln)
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

// openCredentials opens the configured credential backend. The returned
// pinger and closer are nil for the static store.
func openCredentials(ctx context.Context, cfg config.CredentialsConfig) (storage.CredentialStorage, pingerFunc, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite credentials: %w", err)
		}
		return s, s.Ping, s, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open postgres credentials: %w", err)
		}
		return s, s.Ping, s, nil

	default:
		extra := make([]models.Credential, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			extra = append(extra, models.Credential{Username: u.Username, PasswordHash: u.PasswordHash})
		}
		s, err := static.Load(cfg.File, extra)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load static credentials: %w", err)
		}
		return s, nil, nil, nil
	}
}

// pingerFunc adapts a Ping method value to handlers.Pinger
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
