// Package chat runs conversation turns against the completion service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/gophchat/internal/llm"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage"
	"github.com/iudanet/gophchat/internal/validation"
)

// Значения по умолчанию
const (
	DefaultContextTurns    = 2
	DefaultUpstreamTimeout = 60 * time.Second
)

// Turn results reported to the Observer.
const (
	ResultOK             = "ok"
	ResultInvalid        = "invalid"
	ResultUnknownSession = "unknown_session"
	ResultUpstreamError  = "upstream_error"
	ResultMalformed      = "malformed"
)

// DefaultSystemInstruction is the persona sent with every turn unless
// configured otherwise.
const DefaultSystemInstruction = `You are a motivational speaker. You talk with the user to motivate them, ` +
	`lift their mood and help them push through hard moments. Keep answers short, warm and energetic. ` +
	`Stay on motivational topics only: if the user asks about anything else, politely decline and steer ` +
	`the conversation back to motivation.`

// Observer receives turn outcomes, typically metrics.
type Observer interface {
	TurnCompleted(result string)
	UpstreamObserved(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) TurnCompleted(string)           {}
func (nopObserver) UpstreamObserved(time.Duration) {}

// Config holds turn processing settings.
type Config struct {
	SystemInstruction string
	Options           llm.Options
	ContextTurns      int
	UpstreamTimeout   time.Duration
}

// Service creates sessions and processes conversation turns.
type Service struct {
	logger   *slog.Logger
	sessions storage.SessionStorage
	client   llm.Client
	observer Observer
	cfg      Config
}

// Option configures the Service.
type Option func(*Service)

// WithObserver sets the turn observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a Service. Zero config values fall back to defaults.
func NewService(logger *slog.Logger, sessions storage.SessionStorage, client llm.Client, cfg Config, opts ...Option) *Service {
	if cfg.ContextTurns == 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}

	s := &Service{
		logger:   logger,
		sessions: sessions,
		client:   client,
		observer: nopObserver{},
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateSession starts a new empty session. A non-nil identity becomes the
// owner of the session.
func (s *Service) CreateSession(ctx context.Context, identity *models.Identity) (string, error) {
	owner := ownerOf(identity)

	id, err := s.sessions.CreateSession(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created",
		slog.String("session_id", id),
		slog.String("owner", owner))

	return id, nil
}

// Transcript returns the whole session if identity may access it.
func (s *Service) Transcript(ctx context.Context, sessionID string, identity *models.Identity) (*models.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canUse(session, identity) {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// ProcessTurn appends the user message, asks the completion service for a
// reply using the bounded context window and appends the reply.
//
// Turns of one session run strictly one after another. When the upstream
// fails, the user turn stays in the transcript without a reply.
func (s *Service) ProcessTurn(ctx context.Context, sessionID string, identity *models.Identity, message string) (string, error) {
	if err := validation.ValidateMessage(message); err != nil {
		s.observer.TurnCompleted(ResultInvalid)
		return "", fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if _, err := s.Transcript(ctx, sessionID, identity); err != nil {
		if errors.Is(err, ErrUnknownSession) {
			s.observer.TurnCompleted(ResultUnknownSession)
		}
		return "", err
	}

	release, err := s.sessions.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrUnknownSession) {
			s.observer.TurnCompleted(ResultUnknownSession)
		}
		return "", err
	}
	defer release()

	if err := s.sessions.AppendTurn(ctx, sessionID, models.Turn{Role: models.RoleUser, Text: message}); err != nil {
		return "", fmt.Errorf("failed to append user turn: %w", err)
	}

	window, err := s.sessions.GetContext(ctx, sessionID, s.cfg.ContextTurns)
	if err != nil {
		return "", fmt.Errorf("failed to get context: %w", err)
	}

	reply, err := s.generate(ctx, sessionID, window)
	if err != nil {
		return "", err
	}

	if err := s.sessions.AppendTurn(ctx, sessionID, models.Turn{Role: models.RoleModel, Text: reply}); err != nil {
		return "", fmt.Errorf("failed to append model turn: %w", err)
	}

	s.observer.TurnCompleted(ResultOK)
	s.logger.InfoContext(ctx, "turn completed",
		slog.String("session_id", sessionID),
		slog.Int("context_turns", len(window)),
		slog.Int("reply_len", len(reply)))

	return reply, nil
}

func (s *Service) generate(ctx context.Context, sessionID string, window []models.Turn) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Generate(callCtx, llm.Request{
		SystemInstruction: s.cfg.SystemInstruction,
		Contents:          window,
		Options:           s.cfg.Options,
	})
	s.observer.UpstreamObserved(time.Since(start))

	if err != nil {
		// Текст ошибки апстрима только в лог, клиенту уходит безопасное сообщение
		s.logger.ErrorContext(ctx, "completion request failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		s.observer.TurnCompleted(ResultUpstreamError)
		return "", newUpstreamError(err)
	}

	reply, err := llm.ExtractReply(resp)
	if err != nil {
		s.logger.WarnContext(ctx, "completion response rejected",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		s.observer.TurnCompleted(ResultMalformed)
		return "", fmt.Errorf("%w: %w", ErrMalformedUpstreamResponse, err)
	}

	return reply, nil
}

func ownerOf(identity *models.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.Username
}

// canUse reports whether identity may read or extend the session.
// Anonymous sessions are shared.
func canUse(session *models.Session, identity *models.Identity) bool {
	if session.Owner == "" {
		return true
	}
	return identity != nil && identity.Username == session.Owner
}
