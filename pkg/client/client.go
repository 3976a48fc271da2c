// Package client is a Go client for the gophchat HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/gophchat/pkg/api"
)

// ErrNotLoggedIn is returned by calls that need a token before Login.
var ErrNotLoggedIn = errors.New("not logged in")

// ChatError is a turn failure reported by the server in the response body.
type ChatError struct {
	Message string
}

func (e *ChatError) Error() string {
	return "chat failed: " + e.Message
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	mu         sync.RWMutex
}

// NewClient создает новый API клиент.
// Таймаут больше, чем у сервера на запрос к модели.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// SetToken задает access token, например сохраненный ранее
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token возвращает текущий access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login получает access token и запоминает его для следующих запросов
func (c *Client) Login(ctx context.Context, username, password string) (*api.TokenResponse, error) {
	form := url.Values{"username": {username}, "password": {password}}

	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/token", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	c.SetToken(resp.AccessToken)
	return &resp, nil
}

// StartSession создает новую сессию
func (c *Client) StartSession(ctx context.Context) (string, error) {
	var resp api.StartSessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/", nil, "", &resp); err != nil {
		return "", fmt.Errorf("start session request failed: %w", err)
	}
	return resp.SessionID, nil
}

// Chat отправляет сообщение и возвращает ответ модели.
// Ошибка хода приходит с HTTP 200 и возвращается как *ChatError.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (string, error) {
	body, err := json.Marshal(api.ChatRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp api.ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chatbot", bytes.NewReader(body), "application/json", &resp); err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	if resp.Error != "" {
		return "", &ChatError{Message: resp.Error}
	}

	return resp.Response, nil
}

// Transcript возвращает историю сессии
func (c *Client) Transcript(ctx context.Context, sessionID string) (*api.TranscriptResponse, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var resp api.TranscriptResponse
	if err := c.doRequest(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, "", &resp); err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
