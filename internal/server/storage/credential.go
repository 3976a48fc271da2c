package storage

import (
	"context"

	"github.com/iudanet/gophchat/internal/models"
)

// CredentialStorage defines lookup of login credentials.
// Credentials are loaded once and never mutated by the server itself.
type CredentialStorage interface {
	// GetCredential retrieves credential by username
	// Returns ErrUserNotFound if user doesn't exist
	GetCredential(ctx context.Context, username string) (*models.Credential, error)
}

// CredentialWriter is implemented by stores that support provisioning
// users from the command line.
type CredentialWriter interface {
	// CreateCredential stores a new credential
	// Returns ErrUserAlreadyExists if username is taken
	CreateCredential(ctx context.Context, cred *models.Credential) error
}
