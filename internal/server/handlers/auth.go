package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/gophchat/internal/server/auth"
	"github.com/iudanet/gophchat/pkg/api"
)

// maxFormBytes ограничивает размер формы логина
const maxFormBytes = 64 * 1024

// TokenIssuer выдает access token по логину и паролю
type TokenIssuer interface {
	IssueToken(ctx context.Context, username, password string) (*auth.Token, error)
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	responder
	issuer TokenIssuer
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger},
		issuer:    issuer,
	}
}

// Token обрабатывает POST /token
// Логин по форме username/password, в ответ bearer token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "failed to parse token form", slog.Any("error", err))
		h.sendError(w, "invalid form body", http.StatusBadRequest)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	token, err := h.issuer.IssueToken(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.WarnContext(ctx, "login failed", slog.String("username", username))
			h.sendError(w, "incorrect username or password", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to issue token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "token issued", slog.String("username", username))

	h.sendJSON(w, api.TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   api.TokenType,
		ExpiresIn:   token.ExpiresIn,
	}, http.StatusOK)
}
