// Package static holds credentials loaded once at startup from the
// configuration or a YAML users file.
package static

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage"
	"github.com/iudanet/gophchat/internal/validation"
)

// Store is an immutable username -> credential map.
type Store struct {
	users map[string]models.Credential
}

var _ storage.CredentialStorage = (*Store)(nil)

// usersFile is the on-disk layout:
//
//	users:
//	  - username: demo
//	    password_hash: $argon2id$v=19$...
type usersFile struct {
	Users []models.Credential `yaml:"users"`
}

// New builds a store from creds. Usernames must be valid and unique and
// every credential needs a password hash.
func New(creds []models.Credential) (*Store, error) {
	users := make(map[string]models.Credential, len(creds))

	for i, c := range creds {
		if err := validation.ValidateUsername(c.Username); err != nil {
			return nil, fmt.Errorf("credential #%d: %w", i, err)
		}
		if c.PasswordHash == "" {
			return nil, fmt.Errorf("credential %q: password_hash is required", c.Username)
		}
		if _, exists := users[c.Username]; exists {
			return nil, fmt.Errorf("credential %q: %w", c.Username, storage.ErrUserAlreadyExists)
		}
		users[c.Username] = c
	}

	return &Store{users: users}, nil
}

// Load reads a YAML users file and merges it with extra inline credentials.
func Load(path string, extra []models.Credential) (*Store, error) {
	var creds []models.Credential

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read users file: %w", err)
		}

		var f usersFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
		}
		creds = append(creds, f.Users...)
	}

	creds = append(creds, extra...)

	return New(creds)
}

// GetCredential retrieves credential by username
func (s *Store) GetCredential(_ context.Context, username string) (*models.Credential, error) {
	c, ok := s.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return &c, nil
}

// Len returns the number of credentials.
func (s *Store) Len() int {
	return len(s.users)
}
