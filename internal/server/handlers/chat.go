package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/gophchat/internal/chat"
	"github.com/iudanet/gophchat/internal/models"
	"github.com/iudanet/gophchat/pkg/api"
)

// maxChatBodyBytes больше лимита сообщения с запасом на JSON
const maxChatBodyBytes = 64 * 1024

// ChatService создает сессии и обрабатывает реплики
type ChatService interface {
	CreateSession(ctx context.Context, identity *models.Identity) (string, error)
	ProcessTurn(ctx context.Context, sessionID string, identity *models.Identity, message string) (string, error)
	Transcript(ctx context.Context, sessionID string, identity *models.Identity) (*models.Session, error)
}

// ChatHandler обрабатывает запросы чата
type ChatHandler struct {
	responder
	service ChatService
}

// NewChatHandler создает новый handler для чата
func NewChatHandler(logger *slog.Logger, service ChatService) *ChatHandler {
	return &ChatHandler{
		responder: responder{logger: logger},
		service:   service,
	}
}

// StartSession обрабатывает POST /
// Создает пустую сессию, владелец - текущий пользователь, если он есть
func (h *ChatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := GetIdentity(ctx)

	id, err := h.service.CreateSession(ctx, identity)
	if err != nil {
		if errors.Is(err, chat.ErrSessionLimit) {
			h.logger.WarnContext(ctx, "session limit reached")
			h.sendError(w, "too many active sessions, try again later", http.StatusServiceUnavailable)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create session", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.StartSessionResponse{SessionID: id}, http.StatusOK)
}

// Chat обрабатывает POST /chatbot
// Ошибки хода отдаются с HTTP 200 и полем error, как ждут существующие клиенты
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := GetIdentity(ctx)

	var req api.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode chat request", slog.Any("error", err))
		h.sendJSON(w, api.ChatResponse{Error: "invalid request body"}, http.StatusOK)
		return
	}

	reply, err := h.service.ProcessTurn(ctx, req.SessionID, identity, req.Message)
	if err != nil {
		h.sendJSON(w, api.ChatResponse{Error: h.turnErrorMessage(ctx, req.SessionID, err)}, http.StatusOK)
		return
	}

	h.sendJSON(w, api.ChatResponse{Response: reply}, http.StatusOK)
}

// turnErrorMessage переводит ошибку хода в текст для клиента
func (h *ChatHandler) turnErrorMessage(ctx context.Context, sessionID string, err error) string {
	var upErr *chat.UpstreamError

	switch {
	case errors.Is(err, chat.ErrUnknownSession):
		h.logger.WarnContext(ctx, "chat on unknown session", slog.String("session_id", sessionID))
		return "Invalid session_id"
	case errors.Is(err, chat.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, chat.ErrMalformedUpstreamResponse):
		return "The assistant returned an empty answer, please rephrase and try again."
	case errors.As(err, &upErr):
		// Подробности уже в логе сервиса
		return upErr.Message
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		h.logger.ErrorContext(ctx, "chat turn failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return "internal server error"
	}
}

// Transcript обрабатывает GET /sessions/{id}
// Полная история сессии для владельца
func (h *ChatHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := GetIdentity(ctx)

	id := r.PathValue("id")

	session, err := h.service.Transcript(ctx, id, identity)
	if err != nil {
		if errors.Is(err, chat.ErrUnknownSession) {
			h.sendError(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get transcript", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.TranscriptResponse{
		SessionID: session.ID,
		Turns:     make([]api.Turn, 0, len(session.Turns)),
	}
	for _, turn := range session.Turns {
		resp.Turns = append(resp.Turns, api.Turn{Role: string(turn.Role), Text: turn.Text})
	}

	h.sendJSON(w, resp, http.StatusOK)
}
