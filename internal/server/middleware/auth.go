package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/auth"
	"github.com/iudanet/gophchat/internal/server/handlers"
)

// unauthorizedBody одинаковый ответ на любую ошибку аутентификации
const unauthorizedBody = `{"error":"unauthorized"}` + "\n"

// Authenticator проверяет bearer token
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// AuthMiddleware создает middleware, требующий валидный bearer token
func AuthMiddleware(logger *slog.Logger, authn Authenticator) func(http.Handler) http.Handler {
	return authMiddleware(logger, authn, true)
}

// OptionalAuthMiddleware пропускает запросы без заголовка Authorization как
// анонимные. Присланный, но невалидный токен все равно отклоняется.
func OptionalAuthMiddleware(logger *slog.Logger, authn Authenticator) func(http.Handler) http.Handler {
	return authMiddleware(logger, authn, false)
}

func authMiddleware(logger *slog.Logger, authn Authenticator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				logger.WarnContext(ctx, "missing Authorization header")
				writeUnauthorized(w)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.WarnContext(ctx, "invalid Authorization header format")
				writeUnauthorized(w)
				return
			}

			identity, err := authn.Authenticate(ctx, parts[1])
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnknownUser) {
					logger.WarnContext(ctx, "access token rejected", slog.Any("error", err))
					writeUnauthorized(w)
					return
				}
				logger.ErrorContext(ctx, "failed to authenticate", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				return
			}

			logger.DebugContext(ctx, "user authenticated", slog.String("username", identity.Username))

			// Передаем запрос дальше с пользователем в контексте
			next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(ctx, identity)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}
