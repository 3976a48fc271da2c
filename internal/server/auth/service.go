// Package auth issues and verifies HS256 access tokens.
//
// Tokens are stateless: validity depends only on the signature and the
// expiry claim. There is no server side revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/gophchat/internal/crypto"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 360 * time.Minute

// DefaultIssuer is the iss claim when none is configured.
const DefaultIssuer = "gophchat"

// Config содержит конфигурацию для JWT
type Config struct {
	Issuer   string
	Secret   []byte
	TokenTTL time.Duration
}

// Token is an issued access token.
type Token struct {
	ExpiresAt   time.Time
	AccessToken string
	ExpiresIn   int64 // seconds
}

// Service is both the token issuer and the auth guard.
type Service struct {
	creds  storage.CredentialStorage
	logger *slog.Logger
	now    func() time.Time
	cfg    Config
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service over the given credential store.
func NewService(logger *slog.Logger, creds storage.CredentialStorage, cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	s := &Service{
		creds:  creds,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// IssueToken validates username/password and returns a signed access token.
func (s *Service) IssueToken(ctx context.Context, username, password string) (*Token, error) {
	if username == "" || password == "" {
		crypto.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}

	cred, err := s.creds.GetCredential(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Тратим столько же времени, сколько на реальную проверку
			crypto.VerifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if err := crypto.VerifyPassword(password, cred.PasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.ErrorContext(ctx, "stored password hash is unusable",
				slog.String("username", username), slog.Any("error", err))
		}
		return nil, ErrInvalidCredentials
	}

	return s.sign(cred.Username)
}

// Authenticate verifies an access token and resolves it to an identity.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*models.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if _, err := s.creds.GetCredential(ctx, claims.Subject); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &models.Identity{Username: claims.Subject}, nil
}

func (s *Service) sign(username string) (*Token, error) {
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    s.cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

func (s *Service) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			// Проверяем что используется правильный алгоритм подписи
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.cfg.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Токен недействителен начиная с момента exp
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}

	return claims, nil
}
