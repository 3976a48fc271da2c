package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophchat/pkg/api"
)

// fakeServer is a minimal in-process imitation of the chat API
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		if r.PostFormValue("username") != "alice" || r.PostFormValue("password") != "alice-password" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "incorrect username or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.TokenResponse{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 60})
	})
	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(api.StartSessionResponse{SessionID: "s1"})
	})
	mux.HandleFunc("POST /chatbot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.SessionID != "s1" {
			_ = json.NewEncoder(w).Encode(api.ChatResponse{Error: "Invalid session_id"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.ChatResponse{Response: "echo: " + req.Message})
	})
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.TranscriptResponse{
			SessionID: r.PathValue("id"),
			Turns:     []api.Turn{{Role: "user", Text: "hi"}, {Role: "model", Text: "echo: hi"}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Flow(t *testing.T) {
	ctx := context.Background()
	c := NewClient(fakeServer(t).URL + "/")

	_, err := c.Transcript(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	tok, err := c.Login(ctx, "alice", "alice-password")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	assert.Equal(t, "tok", c.Token())

	id, err := c.StartSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	reply, err := c.Chat(ctx, id, "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply)

	tr, err := c.Transcript(ctx, id)
	require.NoError(t, err)
	assert.Len(t, tr.Turns, 2)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	srv := fakeServer(t)

	t.Run("bad login", func(t *testing.T) {
		c := NewClient(srv.URL)
		_, err := c.Login(ctx, "alice", "wrong")

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		assert.Equal(t, "incorrect username or password", statusErr.Message)
		assert.Empty(t, c.Token())
	})

	t.Run("unauthorized chat", func(t *testing.T) {
		c := NewClient(srv.URL)
		c.SetToken("expired")
		_, err := c.Chat(ctx, "s1", "hi")

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})

	t.Run("turn error in body", func(t *testing.T) {
		c := NewClient(srv.URL)
		c.SetToken("tok")
		_, err := c.Chat(ctx, "unknown", "hi")

		var chatErr *ChatError
		require.ErrorAs(t, err, &chatErr)
		assert.Equal(t, "Invalid session_id", chatErr.Message)
	})
}
