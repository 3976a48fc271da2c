package api

// StartSessionResponse представляет ответ POST /
type StartSessionResponse struct {
	SessionID string `json:"session_id"` // UUID сессии
}

// ChatRequest представляет запрос POST /chatbot
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse представляет ответ POST /chatbot.
// Ошибки хода возвращаются с HTTP 200 в поле Error.
type ChatResponse struct {
	Response string `json:"response,omitempty"` // ответ модели
	Error    string `json:"error,omitempty"`
}

// Turn одна реплика диалога
type Turn struct {
	Role string `json:"role"` // user или model
	Text string `json:"text"`
}

// TranscriptResponse представляет ответ GET /sessions/{id}
type TranscriptResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}
