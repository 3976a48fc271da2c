package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophchat/pkg/api"
)

// pingTimeout ограничивает проверку хранилища
const pingTimeout = 2 * time.Second

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	responder
	store   Pinger
	version string
}

// NewHealthHandler создает новый handler для health check.
// store может быть nil, если хранилище не требует проверки.
func NewHealthHandler(logger *slog.Logger, store Pinger, version string) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: logger},
		store:     store,
		version:   version,
	}
}

// Health обрабатывает GET /health
// Health check endpoint для мониторинга
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "credential store unavailable", slog.Any("error", err))
			h.sendJSON(w, api.HealthResponse{Status: "unavailable", Version: h.version}, http.StatusServiceUnavailable)
			return
		}
	}

	h.sendJSON(w, api.HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}
