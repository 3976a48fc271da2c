package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage"
)

// CreateCredential stores a new credential
func (s *Storage) CreateCredential(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, cred.Username, cred.PasswordHash, time.Now().UTC())
	if err != nil {
		// Проверяем на duplicate username
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetCredential retrieves credential by username
func (s *Storage) GetCredential(ctx context.Context, username string) (*models.Credential, error) {
	query := `
		SELECT username, password_hash
		FROM users
		WHERE username = ?
	`

	cred := &models.Credential{}
	err := s.db.QueryRowContext(ctx, query, username).Scan(&cred.Username, &cred.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return cred, nil
}
