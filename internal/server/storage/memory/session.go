// Package memory provides the in-process session store.
//
// Transcripts live only as long as the process. Each session carries two
// locks: a short mutex guarding its transcript and a turn lock that
// serializes whole conversation turns, so that a slow upstream call blocks
// only the next turn of the same session.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage"
)

// Observer receives session lifecycle events, typically metrics.
type Observer interface {
	SessionCreated()
	SessionsEvicted(n int)
	SessionsActive(n int)
}

type nopObserver struct{}

func (nopObserver) SessionCreated()     {}
func (nopObserver) SessionsEvicted(int) {}
func (nopObserver) SessionsActive(int)  {}

// entry is a single session. turns and lastActive are guarded by mu.
type entry struct {
	createdAt  time.Time
	lastActive time.Time
	turnLock   chan struct{}
	owner      string
	turns      []models.Turn
	mu         sync.Mutex
}

func (e *entry) busy() bool {
	return len(e.turnLock) > 0
}

// SessionStore is a concurrency-safe in-memory storage.SessionStorage.
type SessionStore struct {
	sessions    map[string]*entry
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
	newID       func() string
	stopC       chan struct{}
	idleTTL     time.Duration
	maxSessions int
	mu          sync.RWMutex
	stopOnce    sync.Once
}

// Option configures the SessionStore.
type Option func(*SessionStore)

// WithIdleTTL sets how long a session may stay idle before the sweeper
// removes it. Zero disables idle eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		s.idleTTL = ttl
	}
}

// WithMaxSessions bounds the number of live sessions. Zero means unbounded.
func WithMaxSessions(max int) Option {
	return func(s *SessionStore) {
		s.maxSessions = max
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionStore) {
		s.logger = logger
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *SessionStore) {
		s.observer = o
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

// WithIDGenerator overrides the session id generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *SessionStore) {
		s.newID = gen
	}
}

// NewSessionStore creates an empty store.
func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*entry),
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		stopC:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ storage.SessionStorage = (*SessionStore)(nil)

// maxIDAttempts bounds retries on id collision.
const maxIDAttempts = 8

// CreateSession creates an empty transcript and returns its id.
func (s *SessionStore) CreateSession(_ context.Context, owner string) (string, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		if !s.evictOldestLocked() {
			return "", storage.ErrSessionLimit
		}
	}

	for range maxIDAttempts {
		id := s.newID()
		if _, exists := s.sessions[id]; exists {
			s.logger.Warn("session id collision, regenerating")
			continue
		}

		s.sessions[id] = &entry{
			createdAt:  now,
			lastActive: now,
			turnLock:   make(chan struct{}, 1),
			owner:      owner,
		}
		s.observer.SessionCreated()
		s.observer.SessionsActive(len(s.sessions))

		return id, nil
	}

	return "", fmt.Errorf("failed to generate unique session id after %d attempts", maxIDAttempts)
}

// GetSession returns a snapshot of the session.
func (s *SessionStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	turns := make([]models.Turn, len(e.turns))
	copy(turns, e.turns)

	return &models.Session{
		ID:           id,
		Owner:        e.owner,
		CreatedAt:    e.createdAt,
		LastActiveAt: e.lastActive,
		Turns:        turns,
	}, nil
}

// AppendTurn appends turn to the end of the transcript.
func (s *SessionStore) AppendTurn(_ context.Context, id string, turn models.Turn) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.turns = append(e.turns, turn)
	e.lastActive = s.now()
	e.mu.Unlock()

	return nil
}

// GetContext returns the last maxTurns turns in transcript order.
func (s *SessionStore) GetContext(_ context.Context, id string, maxTurns int) ([]models.Turn, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := 0
	if maxTurns > 0 && len(e.turns) > maxTurns {
		start = len(e.turns) - maxTurns
	}

	window := make([]models.Turn, len(e.turns)-start)
	copy(window, e.turns[start:])

	return window, nil
}

// Acquire takes the per-session turn lock, waiting until it is free or ctx
// is done.
func (s *SessionStore) Acquire(ctx context.Context, id string) (func(), error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	select {
	case e.turnLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Сессия могла быть вытеснена, пока мы ждали блокировку
	s.mu.RLock()
	current, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || current != e {
		<-e.turnLock
		return nil, storage.ErrUnknownSession
	}

	e.mu.Lock()
	e.lastActive = s.now()
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { <-e.turnLock })
	}, nil
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartSweeper runs idle eviction every interval until Stop is called.
// It is a no-op when idle eviction is disabled.
func (s *SessionStore) StartSweeper(interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.EvictIdle(); n > 0 {
					s.logger.Info("evicted idle sessions", slog.Int("count", n))
				}
			case <-s.stopC:
				return
			}
		}
	}()
}

// Stop stops the sweeper goroutine. Safe to call more than once.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopC)
	})
}

// EvictIdle removes sessions idle for longer than the idle TTL that are not
// in the middle of a turn. Returns the number of evicted sessions.
func (s *SessionStore) EvictIdle() int {
	if s.idleTTL <= 0 {
		return 0
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if e.busy() {
			continue
		}
		e.mu.Lock()
		idle := now.Sub(e.lastActive)
		e.mu.Unlock()

		if idle > s.idleTTL {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.observer.SessionsEvicted(evicted)
		s.observer.SessionsActive(len(s.sessions))
	}

	return evicted
}

// evictOldestLocked removes the least recently active session that is not
// in the middle of a turn. s.mu must be held for writing.
func (s *SessionStore) evictOldestLocked() bool {
	var (
		oldestID string
		oldestAt time.Time
	)

	for id, e := range s.sessions {
		if e.busy() {
			continue
		}
		e.mu.Lock()
		at := e.lastActive
		e.mu.Unlock()

		if oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}

	if oldestID == "" {
		return false
	}

	delete(s.sessions, oldestID)
	s.observer.SessionsEvicted(1)
	s.logger.Info("evicted least recently active session to make room")

	return true
}

func (s *SessionStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrUnknownSession
	}
	return e, nil
}
