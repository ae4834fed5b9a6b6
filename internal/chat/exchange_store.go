package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// exchangeDB is the subset of pgxpool.Pool used by the exchange store.
type exchangeDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exchange is one persisted question/answer pair with its pipeline outcome.
type Exchange struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id,omitempty"`
	SessionID   string          `json:"session_id"`
	Question    string          `json:"question"`
	Answer      string          `json:"answer"`
	Verdict     VerdictKind     `json:"verdict"`
	Language    Language        `json:"language"`
	Confidence  ConfidenceLabel `json:"confidence,omitempty"`
	Partial     bool            `json:"partial"`
	TotalTimeMs int64           `json:"total_time_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ExchangeStore persists completed (or partially completed) exchanges.
type ExchangeStore struct {
	db exchangeDB
}

func NewExchangeStore(db exchangeDB) *ExchangeStore {
	if db == nil {
		panic("chat: exchange db required")
	}
	return &ExchangeStore{db: db}
}

// Record inserts the exchange and fills in its ID and timestamp.
func (s *ExchangeStore) Record(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	query := `
		INSERT INTO chat_exchanges (id, user_id, session_id, question, answer, verdict, language, confidence, partial, total_time_ms)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		RETURNING created_at
	`
	if err := s.db.QueryRow(ctx, query,
		ex.ID,
		ex.UserID,
		ex.SessionID,
		ex.Question,
		ex.Answer,
		string(ex.Verdict),
		string(ex.Language),
		string(ex.Confidence),
		ex.Partial,
		ex.TotalTimeMs,
	).Scan(&ex.CreatedAt); err != nil {
		return fmt.Errorf("chat: insert exchange failed: %w", err)
	}
	return nil
}

// ListBySession returns the most recent exchanges for a session, newest last.
func (s *ExchangeStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, COALESCE(user_id, ''), session_id, question, answer, verdict, language, COALESCE(confidence, ''), partial, total_time_ms, created_at
		FROM (
			SELECT * FROM chat_exchanges
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list exchanges failed: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var verdict, language, confidence string
		if err := rows.Scan(
			&ex.ID,
			&ex.UserID,
			&ex.SessionID,
			&ex.Question,
			&ex.Answer,
			&verdict,
			&language,
			&confidence,
			&ex.Partial,
			&ex.TotalTimeMs,
			&ex.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("chat: scan exchange failed: %w", err)
		}
		ex.Verdict = VerdictKind(verdict)
		ex.Language = Language(language)
		ex.Confidence = ConfidenceLabel(confidence)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate exchanges failed: %w", err)
	}
	return out, nil
}
