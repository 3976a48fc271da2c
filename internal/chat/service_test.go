package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophchat/internal/llm"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/internal/server/storage/memory"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient is a scripted completion service
type mockClient struct {
	generate func(ctx context.Context, req llm.Request) (*llm.Response, error)
	requests []llm.Request
	mu       sync.Mutex
}

func (m *mockClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.generate(ctx, req)
}

func (m *mockClient) lastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Candidates: []*llm.Candidate{{
		Content: &llm.Content{Role: "model", Parts: []llm.Part{{Text: text}}},
	}}}
}

func replyWith(text string) *mockClient {
	return &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
		return textResponse(text), nil
	}}
}

// recordingObserver collects turn results
type recordingObserver struct {
	results  []string
	upstream int
	mu       sync.Mutex
}

func (o *recordingObserver) TurnCompleted(result string) {
	o.mu.Lock()
	o.results = append(o.results, result)
	o.mu.Unlock()
}

func (o *recordingObserver) UpstreamObserved(time.Duration) {
	o.mu.Lock()
	o.upstream++
	o.mu.Unlock()
}

func newTestService(t *testing.T, client llm.Client, cfg Config, opts ...Option) (*Service, *memory.SessionStore) {
	t.Helper()

	store := memory.NewSessionStore(memory.WithLogger(setupTestLogger()))
	t.Cleanup(store.Stop)

	return NewService(setupTestLogger(), store, client, cfg, opts...), store
}

var alice = &models.Identity{Username: "alice"}

func TestService_ProcessTurn_Hello(t *testing.T) {
	ctx := context.Background()
	client := replyWith("  You can do it!\n")
	obs := &recordingObserver{}
	svc, _ := newTestService(t, client, Config{
		SystemInstruction: DefaultSystemInstruction,
		Options:           llm.Options{Temperature: 1, MaxTokens: 100},
	}, WithObserver(obs))

	id, err := svc.CreateSession(ctx, alice)
	require.NoError(t, err)

	reply, err := svc.ProcessTurn(ctx, id, alice, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "You can do it!", reply)

	req := client.lastRequest()
	assert.Equal(t, DefaultSystemInstruction, req.SystemInstruction)
	assert.Equal(t, []models.Turn{{Role: models.RoleUser, Text: "Hello"}}, req.Contents)
	assert.Equal(t, 100, req.Options.MaxTokens)

	session, err := svc.Transcript(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Text: "Hello"},
		{Role: models.RoleModel, Text: "You can do it!"},
	}, session.Turns)
	assert.Equal(t, "alice", session.Owner)

	assert.Equal(t, []string{ResultOK}, obs.results)
	assert.Equal(t, 1, obs.upstream)
}

func TestService_ProcessTurn_ContextWindow(t *testing.T) {
	ctx := context.Background()
	client := replyWith("keep going")
	svc, _ := newTestService(t, client, Config{})

	id, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	_, err = svc.ProcessTurn(ctx, id, alice, "first")
	require.NoError(t, err)
	_, err = svc.ProcessTurn(ctx, id, alice, "second")
	require.NoError(t, err)

	// Окно по умолчанию: две последние реплики, включая новое сообщение
	assert.Equal(t, []models.Turn{
		{Role: models.RoleModel, Text: "keep going"},
		{Role: models.RoleUser, Text: "second"},
	}, client.lastRequest().Contents)
}

func TestService_ProcessTurn_WholeTranscriptWhenWindowDisabled(t *testing.T) {
	ctx := context.Background()
	client := replyWith("ok")
	svc, _ := newTestService(t, client, Config{ContextTurns: -1})

	id, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	for _, msg := range []string{"a", "b", "c"} {
		_, err = svc.ProcessTurn(ctx, id, nil, msg)
		require.NoError(t, err)
	}

	assert.Len(t, client.lastRequest().Contents, 5)
}

func TestService_ProcessTurn_MalformedResponses(t *testing.T) {
	tests := []struct {
		resp *llm.Response
		name string
	}{
		{name: "nil response", resp: nil},
		{name: "empty candidate list", resp: &llm.Response{}},
		{name: "candidate without content", resp: &llm.Response{Candidates: []*llm.Candidate{{FinishReason: "SAFETY"}}}},
		{name: "content without parts", resp: &llm.Response{Candidates: []*llm.Candidate{{Content: &llm.Content{}}}}},
		{name: "blank text", resp: textResponse(" \n\t ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
				return tt.resp, nil
			}}
			obs := &recordingObserver{}
			svc, _ := newTestService(t, client, Config{}, WithObserver(obs))

			id, err := svc.CreateSession(ctx, alice)
			require.NoError(t, err)

			reply, err := svc.ProcessTurn(ctx, id, alice, "Hello")
			assert.ErrorIs(t, err, ErrMalformedUpstreamResponse)
			assert.Empty(t, reply)

			session, err := svc.Transcript(ctx, id, alice)
			require.NoError(t, err)
			assert.Equal(t, []models.Turn{{Role: models.RoleUser, Text: "Hello"}}, session.Turns)
			assert.Equal(t, []string{ResultMalformed}, obs.results)
		})
	}
}

func TestService_ProcessTurn_UpstreamError(t *testing.T) {
	ctx := context.Background()
	raw := errors.New("googleapi: Error 429: Resource has been exhausted (key AIza-secret)")
	client := &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, raw
	}}
	obs := &recordingObserver{}
	svc, _ := newTestService(t, client, Config{}, WithObserver(obs))

	id, err := svc.CreateSession(ctx, alice)
	require.NoError(t, err)

	_, err = svc.ProcessTurn(ctx, id, alice, "Hello")
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, raw)
	assert.NotContains(t, upErr.Message, "AIza")
	assert.NotContains(t, err.Error(), "429")

	session, err := svc.Transcript(ctx, id, alice)
	require.NoError(t, err)
	assert.Len(t, session.Turns, 1)
	assert.Equal(t, []string{ResultUpstreamError}, obs.results)
}

func TestService_ProcessTurn_UpstreamTimeout(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{generate: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc, _ := newTestService(t, client, Config{UpstreamTimeout: 20 * time.Millisecond})

	id, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	_, err = svc.ProcessTurn(ctx, id, nil, "Hello")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, upErr.Message, "too long")
}

func TestService_ProcessTurn_Rejections(t *testing.T) {
	ctx := context.Background()
	client := replyWith("never")
	svc, store := newTestService(t, client, Config{})

	owned, err := svc.CreateSession(ctx, alice)
	require.NoError(t, err)

	tests := []struct {
		identity  *models.Identity
		wantErr   error
		name      string
		sessionID string
		message   string
	}{
		{name: "unknown session", sessionID: "00000000-0000-0000-0000-000000000000", identity: alice, message: "hi", wantErr: ErrUnknownSession},
		{name: "empty session id", sessionID: "", identity: alice, message: "hi", wantErr: ErrUnknownSession},
		{name: "someone else's session", sessionID: owned, identity: &models.Identity{Username: "bob"}, message: "hi", wantErr: ErrUnknownSession},
		{name: "anonymous caller on owned session", sessionID: owned, identity: nil, message: "hi", wantErr: ErrUnknownSession},
		{name: "empty message", sessionID: owned, identity: alice, message: "   ", wantErr: ErrInvalidMessage},
		{name: "oversized message", sessionID: owned, identity: alice, message: strings.Repeat("x", 33*1024), wantErr: ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessTurn(ctx, tt.sessionID, tt.identity, tt.message)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Ни один отклоненный запрос не дошел до апстрима и не изменил сессию
	assert.Empty(t, client.requests)
	session, err := store.GetSession(ctx, owned)
	require.NoError(t, err)
	assert.Empty(t, session.Turns)
}

func TestService_AnonymousSessionIsShared(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, replyWith("yes"), Config{})

	id, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	_, err = svc.ProcessTurn(ctx, id, alice, "from alice")
	require.NoError(t, err)
	_, err = svc.ProcessTurn(ctx, id, &models.Identity{Username: "bob"}, "from bob")
	require.NoError(t, err)

	session, err := svc.Transcript(ctx, id, nil)
	require.NoError(t, err)
	assert.Len(t, session.Turns, 4)
}

func TestService_ProcessTurn_SameSessionSerialized(t *testing.T) {
	ctx := context.Background()

	var inFlight, maxInFlight atomic.Int32
	client := &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return textResponse("reply"), nil
	}}
	svc, _ := newTestService(t, client, Config{})

	id, err := svc.CreateSession(ctx, alice)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessTurn(ctx, id, alice, "go")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())

	session, err := svc.Transcript(ctx, id, alice)
	require.NoError(t, err)
	require.Len(t, session.Turns, 2*workers)
	// Реплики чередуются: ход пользователя, затем ответ модели
	for i, turn := range session.Turns {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, turn.Role)
		} else {
			assert.Equal(t, models.RoleModel, turn.Role)
		}
	}
}

func TestService_ProcessTurn_DifferentSessionsConcurrent(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	var started atomic.Int32
	client := &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
		started.Add(1)
		<-release
		return textResponse("done"), nil
	}}
	svc, _ := newTestService(t, client, Config{})

	first, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []string{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessTurn(ctx, id, nil, "hi")
			assert.NoError(t, err)
		}()
	}

	// Оба хода ждут апстрим одновременно
	assert.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestService_CreateSession_Limit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore(memory.WithMaxSessions(1))
	t.Cleanup(store.Stop)

	block := make(chan struct{})
	client := &mockClient{generate: func(context.Context, llm.Request) (*llm.Response, error) {
		<-block
		return textResponse("x"), nil
	}}
	svc := NewService(setupTestLogger(), store, client, Config{})

	id, err := svc.CreateSession(ctx, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.ProcessTurn(ctx, id, nil, "busy")
	}()
	assert.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.requests) == 1
	}, time.Second, time.Millisecond)

	// Единственная сессия занята ходом, вытеснить нечего
	_, err = svc.CreateSession(ctx, nil)
	assert.ErrorIs(t, err, ErrSessionLimit)

	close(block)
	<-done
}
