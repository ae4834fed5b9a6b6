// Package webchat exposes the question pipeline over WebSocket and HTTP.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/chat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// Asker runs one question through the pipeline, streaming frames to sink.
type Asker interface {
	Ask(ctx context.Context, req chat.AskRequest, sink chat.StreamSink) error
}

// ExchangeReader loads past exchanges for the history endpoint.
type ExchangeReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]chat.Exchange, error)
}

// Handler manages chat connections.
type Handler struct {
	asker     Asker
	exchanges ExchangeReader
	logger    *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*websocket.Conn
}

// InboundMessage is what the client sends over the socket.
type InboundMessage struct {
	Type      string `json:"type"` // "ask", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	MaxTokens int32  `json:"max_tokens,omitempty"`
}

func NewHandler(asker Asker, exchanges ExchangeReader, logger *logging.Logger) *Handler {
	if asker == nil {
		panic("webchat: asker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		asker:     asker,
		exchanges: exchanges,
		logger:    logger.Component("webchat"),
		sessions:  make(map[string]*websocket.Conn),
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// userID extracts the authenticated user, if any. Anonymous sessions carry
// no user ID and are rate limited instead of strike tracked.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// HandleWebSocket upgrades to WebSocket and streams answer frames per ask.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	uid := userID(r)

	_ = websocket.JSON.Send(conn, map[string]string{"type": "session", "session_id": sessionID})

	h.mu.Lock()
	h.sessions[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[sessionID] == conn {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("connection opened", "session_id", sessionID, "authenticated", uid != "")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, map[string]string{"type": "pong"})
			continue
		}
		if msg.Type != "ask" || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}

		err := h.asker.Ask(r.Context(), chat.AskRequest{
			Question:  msg.Text,
			UserID:    uid,
			SessionID: sessionID,
			MaxTokens: msg.MaxTokens,
		}, func(ev chat.StreamEvent) error {
			return websocket.JSON.Send(conn, ev)
		})
		if err != nil {
			h.logger.Error("pipeline failed", "session_id", sessionID, "error", err)
			_ = websocket.JSON.Send(conn, chat.StreamEvent{
				Type:  chat.EventError,
				Error: "Sorry, something went wrong. Please try again.",
			})
		}
	}
}

// askResponse is the aggregated reply for the HTTP fallback.
type askResponse struct {
	SessionID   string               `json:"session_id"`
	Language    chat.Language        `json:"language,omitempty"`
	Answer      string               `json:"answer"`
	Sources     []chat.ContextEntry  `json:"sources,omitempty"`
	Confidence  chat.ConfidenceLabel `json:"confidence,omitempty"`
	Violation   string               `json:"violation,omitempty"`
	Disclaimer  string               `json:"disclaimer,omitempty"`
	Error       string               `json:"error,omitempty"`
	TotalTimeMs int64                `json:"total_time_ms"`
}

// HandleAsk is the non-streaming HTTP fallback: it runs the same pipeline
// and returns the collected frames as one JSON document.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		MaxTokens int32  `json:"max_tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	resp := askResponse{SessionID: req.SessionID}
	var answer strings.Builder
	err := h.asker.Ask(r.Context(), chat.AskRequest{
		Question:  req.Text,
		UserID:    userID(r),
		SessionID: req.SessionID,
		MaxTokens: req.MaxTokens,
	}, func(ev chat.StreamEvent) error {
		switch ev.Type {
		case chat.EventMetadata:
			resp.Language = ev.Language
		case chat.EventSources:
			resp.Sources = ev.Sources
			resp.Confidence = ev.Confidence
		case chat.EventContent:
			answer.WriteString(ev.Text)
		case chat.EventViolation:
			resp.Violation = ev.Category
			if ev.Text != "" {
				answer.Reset()
				answer.WriteString(ev.Text)
			}
		case chat.EventDisclaimer:
			resp.Disclaimer = ev.Text
		case chat.EventDone:
			resp.TotalTimeMs = ev.TotalTimeMs
		case chat.EventError:
			resp.Error = ev.Error
		}
		return nil
	})
	if err != nil {
		h.logger.Error("pipeline failed", "session_id", req.SessionID, "error", err)
		http.Error(w, "failed to answer question", http.StatusInternalServerError)
		return
	}
	resp.Answer = answer.String()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleHistory returns past exchanges for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.exchanges == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"exchanges": []chat.Exchange{}})
		return
	}

	exchanges, err := h.exchanges.ListBySession(r.Context(), sessionID, 100)
	if err != nil {
		h.logger.Error("failed to load history", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if exchanges == nil {
		exchanges = []chat.Exchange{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"exchanges": exchanges})
}
