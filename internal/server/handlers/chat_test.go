package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/gophchat/internal/chat"
	"github.com/iudanet/gophchat/internal/models"
)

func aliceIdentity() *models.Identity {
	return &models.Identity{Username: "alice"}
}

// mockChatService is a mock implementation of ChatService for testing
type mockChatService struct {
	createErr     error
	turnErr       error
	transcriptErr error
	session       *models.Session
	gotIdentity   *models.Identity
	gotSessionID  string
	gotMessage    string
	reply         string
}

func (m *mockChatService) CreateSession(_ context.Context, identity *models.Identity) (string, error) {
	m.gotIdentity = identity
	if m.createErr != nil {
		return "", m.createErr
	}
	return "9b2f6a54-2f41-4c8e-a9a7-3f0d2d0c1e11", nil
}

func (m *mockChatService) ProcessTurn(_ context.Context, sessionID string, identity *models.Identity, message string) (string, error) {
	m.gotSessionID, m.gotIdentity, m.gotMessage = sessionID, identity, message
	if m.turnErr != nil {
		return "", m.turnErr
	}
	return m.reply, nil
}

func (m *mockChatService) Transcript(_ context.Context, sessionID string, identity *models.Identity) (*models.Session, error) {
	m.gotSessionID, m.gotIdentity = sessionID, identity
	if m.transcriptErr != nil {
		return nil, m.transcriptErr
	}
	return m.session, nil
}

func TestChatHandler_StartSession(t *testing.T) {
	tests := []struct {
		identity   *models.Identity
		createErr  error
		name       string
		wantBody   string
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusOK, wantBody: `{"session_id":"9b2f6a54-2f41-4c8e-a9a7-3f0d2d0c1e11"}`},
		{name: "authenticated", identity: aliceIdentity(), wantStatus: http.StatusOK, wantBody: `{"session_id":"9b2f6a54-2f41-4c8e-a9a7-3f0d2d0c1e11"}`},
		{name: "limit reached", createErr: fmt.Errorf("failed to create session: %w", chat.ErrSessionLimit), wantStatus: http.StatusServiceUnavailable, wantBody: `{"error":"too many active sessions, try again later"}`},
		{name: "unexpected", createErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantBody: `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{createErr: tt.createErr}
			handler := NewChatHandler(setupTestLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			}
			w := httptest.NewRecorder()
			handler.StartSession(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.identity, svc.gotIdentity)
		})
	}
}

func TestChatHandler_Chat(t *testing.T) {
	tests := []struct {
		turnErr  error
		name     string
		body     string
		reply    string
		wantBody string
	}{
		{
			name:     "reply",
			body:     `{"session_id":"s1","message":"Hello"}`,
			reply:    "You've got this!",
			wantBody: `{"response":"You've got this!"}`,
		},
		{
			name:     "bad json",
			body:     `{"session_id":`,
			wantBody: `{"error":"invalid request body"}`,
		},
		{
			name:     "unknown session",
			body:     `{"session_id":"nope","message":"Hello"}`,
			turnErr:  chat.ErrUnknownSession,
			wantBody: `{"error":"Invalid session_id"}`,
		},
		{
			name:     "malformed upstream",
			body:     `{"session_id":"s1","message":"Hello"}`,
			turnErr:  fmt.Errorf("%w: no candidates", chat.ErrMalformedUpstreamResponse),
			wantBody: `{"error":"The assistant returned an empty answer, please rephrase and try again."}`,
		},
		{
			name:     "upstream failure hides raw error",
			body:     `{"session_id":"s1","message":"Hello"}`,
			turnErr:  &chat.UpstreamError{Message: "The assistant is unavailable right now, please try again later.", Err: errors.New("googleapi: Error 429")},
			wantBody: `{"error":"The assistant is unavailable right now, please try again later."}`,
		},
		{
			name:     "invalid message",
			body:     `{"session_id":"s1","message":""}`,
			turnErr:  fmt.Errorf("%w: %w", chat.ErrInvalidMessage, errors.New("message cannot be empty")),
			wantBody: `{"error":"invalid message: message cannot be empty"}`,
		},
		{
			name:     "unexpected",
			body:     `{"session_id":"s1","message":"Hello"}`,
			turnErr:  errors.New("disk on fire"),
			wantBody: `{"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{reply: tt.reply, turnErr: tt.turnErr}
			handler := NewChatHandler(setupTestLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/chatbot", strings.NewReader(tt.body))
			req = req.WithContext(WithIdentity(req.Context(), aliceIdentity()))
			w := httptest.NewRecorder()
			handler.Chat(w, req)

			// Ошибки хода всегда с кодом 200
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestChatHandler_Chat_PassesRequest(t *testing.T) {
	svc := &mockChatService{reply: "ok"}
	handler := NewChatHandler(setupTestLogger(), svc)

	req := httptest.NewRequest(http.MethodPost, "/chatbot", strings.NewReader(`{"session_id":"s1","message":"I feel anxious"}`))
	req = req.WithContext(WithIdentity(req.Context(), aliceIdentity()))
	handler.Chat(httptest.NewRecorder(), req)

	assert.Equal(t, "s1", svc.gotSessionID)
	assert.Equal(t, "I feel anxious", svc.gotMessage)
	assert.Equal(t, aliceIdentity(), svc.gotIdentity)
}

func TestChatHandler_Transcript(t *testing.T) {
	session := &models.Session{
		ID:    "s1",
		Owner: "alice",
		Turns: []models.Turn{
			{Role: models.RoleUser, Text: "Hello"},
			{Role: models.RoleModel, Text: "Hi!"},
		},
	}

	tests := []struct {
		err        error
		session    *models.Session
		name       string
		wantBody   string
		wantStatus int
	}{
		{
			name:       "found",
			session:    session,
			wantStatus: http.StatusOK,
			wantBody:   `{"session_id":"s1","turns":[{"role":"user","text":"Hello"},{"role":"model","text":"Hi!"}]}`,
		},
		{
			name:       "empty transcript",
			session:    &models.Session{ID: "s2"},
			wantStatus: http.StatusOK,
			wantBody:   `{"session_id":"s2","turns":[]}`,
		},
		{
			name:       "unknown",
			err:        chat.ErrUnknownSession,
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"session not found"}`,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{session: tt.session, transcriptErr: tt.err}
			handler := NewChatHandler(setupTestLogger(), svc)

			mux := http.NewServeMux()
			mux.HandleFunc("GET /sessions/{id}", handler.Transcript)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			assert.Equal(t, "s1", svc.gotSessionID)
		})
	}
}
