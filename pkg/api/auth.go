package api

// TokenType is the only token type issued by POST /token
const TokenType = "bearer"

// TokenResponse представляет ответ POST /token.
// Запрос приходит формой: username, password.
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	TokenType   string `json:"token_type"`   // всегда "bearer"
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"` // описание ошибки
}

// HealthResponse представляет ответ GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
