package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		errMsg   string
		wantErr  bool
	}{
		{
			name:     "successful hash",
			password: "correct horse battery staple",
			wantErr:  false,
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
			errMsg:   "password cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Empty(t, hash)
				return
			}

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
			assert.Len(t, strings.Split(hash, "$"), 6)
		})
	}
}

func TestHashPassword_SaltIsRandom(t *testing.T) {
	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)

	// Одинаковый пароль дает разные хеши из-за случайной соли
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassword_Argon2id(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword("s3cret-password", hash))
	assert.ErrorIs(t, VerifyPassword("wrong-password", hash), ErrPasswordMismatch)
	assert.ErrorIs(t, VerifyPassword("", hash), ErrPasswordMismatch)
}

func TestVerifyPassword_Bcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword("legacy-password", string(raw)))
	assert.ErrorIs(t, VerifyPassword("nope", string(raw)), ErrPasswordMismatch)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plain text", "password"},
		{"md5 crypt", "$1$abc$def"},
		{"truncated argon2id", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA"},
		{"bad version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$a2V5"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword("password", tt.hash)
			assert.ErrorIs(t, err, ErrUnsupportedHash)
		})
	}
}

func TestVerifyDummy_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { VerifyDummy("anything") })
}
