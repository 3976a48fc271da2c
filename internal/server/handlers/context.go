package handlers

import (
	"context"

	"github.com/iudanet/gophchat/internal/models"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// IdentityKey ключ для хранения аутентифицированного пользователя в контексте
	IdentityKey contextKey = "identity"
)

// WithIdentity кладет пользователя в контекст запроса
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity извлекает пользователя из контекста запроса.
// Для анонимных запросов возвращает nil, false.
func GetIdentity(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*models.Identity)
	return identity, ok && identity != nil
}

// GetUsername извлекает username из контекста запроса
func GetUsername(ctx context.Context) (string, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return identity.Username, true
}
