package models

import "time"

// Role определяет, кто произнес реплику
type Role string

const (
	// RoleUser реплика пользователя
	RoleUser Role = "user"
	// RoleModel ответ модели
	RoleModel Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Turn is one transcript entry. Turns are never modified once appended.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is a read-only snapshot of a conversation.
type Session struct {
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ID           string    `json:"session_id"`
	Owner        string    `json:"owner,omitempty"` // пусто для анонимных сессий
	Turns        []Turn    `json:"turns"`
}
