package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionTTL = 24 * time.Hour

// HistoryStore keeps the rolling transcript for a chat session. Missing
// sessions load as an empty history, not an error: anonymous users start
// fresh when the key expires.
type HistoryStore struct {
	redis    *redis.Client
	tracer   trace.Tracer
	maxTurns int
}

func NewHistoryStore(rdb *redis.Client, maxTurns int, tracer trace.Tracer) *HistoryStore {
	if rdb == nil {
		panic("chat: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("attorney.internal.chat.history")
	}
	if maxTurns <= 0 {
		maxTurns = 24
	}
	return &HistoryStore{
		redis:    rdb,
		tracer:   tracer,
		maxTurns: maxTurns,
	}
}

// Save persists the transcript, trimmed to the most recent turns.
func (s *HistoryStore) Save(ctx context.Context, sessionID string, history []ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "chat.save_history")
	defer span.End()

	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sessionID), data, sessionTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the stored transcript, or an empty slice for an unknown or
// expired session.
func (s *HistoryStore) Load(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "chat.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to load history: %w", err)
	}

	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to decode history: %w", err)
	}
	return history, nil
}

// Append adds a user/assistant exchange to the transcript in one pass.
func (s *HistoryStore) Append(ctx context.Context, sessionID, question, answer string) error {
	history, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history,
		ChatMessage{Role: ChatRoleUser, Content: question},
		ChatMessage{Role: ChatRoleAssistant, Content: answer},
	)
	return s.Save(ctx, sessionID, history)
}

func sessionKey(id string) string {
	return fmt.Sprintf("chat:session:%s", id)
}
