package models

// Credential представляет учетную запись, которой разрешен вход на сервер
type Credential struct {
	Username     string `json:"username" yaml:"username"`           // уникальный username
	PasswordHash string `json:"password_hash" yaml:"password_hash"` // argon2id или bcrypt хеш пароля
}

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	Username string `json:"username"`
}
