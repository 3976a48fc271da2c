package server

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/gophchat/internal/server/handlers"
	"github.com/iudanet/gophchat/internal/server/metrics"
	"github.com/iudanet/gophchat/internal/server/middleware"
)

// RouterConfig собирает зависимости HTTP слоя
type RouterConfig struct {
	Logger            *slog.Logger
	Issuer            handlers.TokenIssuer
	Authenticator     middleware.Authenticator
	Chat              handlers.ChatService
	Store             handlers.Pinger
	Metrics           *metrics.Registry
	Version           string
	RequireForSession bool
	RequireForChat    bool
}

// NewRouter регистрирует маршруты и оборачивает их в общие middleware:
// recovery -> metrics -> logging -> mux
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := handlers.NewAuthHandler(cfg.Logger, cfg.Issuer)
	chatHandler := handlers.NewChatHandler(cfg.Logger, cfg.Chat)
	healthHandler := handlers.NewHealthHandler(cfg.Logger, cfg.Store, cfg.Version)

	sessionAuth := middleware.OptionalAuthMiddleware(cfg.Logger, cfg.Authenticator)
	if cfg.RequireForSession {
		sessionAuth = middleware.AuthMiddleware(cfg.Logger, cfg.Authenticator)
	}
	chatAuth := middleware.OptionalAuthMiddleware(cfg.Logger, cfg.Authenticator)
	if cfg.RequireForChat {
		chatAuth = middleware.AuthMiddleware(cfg.Logger, cfg.Authenticator)
	}

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /token", authHandler.Token)
	mux.HandleFunc("GET /health", healthHandler.Health)

	// Chat endpoints
	mux.Handle("POST /{$}", sessionAuth(http.HandlerFunc(chatHandler.StartSession)))
	mux.Handle("POST /chatbot", chatAuth(http.HandlerFunc(chatHandler.Chat)))
	mux.Handle("GET /sessions/{id}", chatAuth(http.HandlerFunc(chatHandler.Transcript)))

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(cfg.Logger, []string{"/health", "/metrics"})(handler)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
		handler = cfg.Metrics.Middleware(handler)
	}

	return middleware.RecoveryMiddleware(cfg.Logger)(handler)
}
