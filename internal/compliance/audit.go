// Package compliance records the safety audit trail: every screening
// decision that blocked, replaced, or flagged content.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType identifies the kind of safety event.
type AuditEventType string

const (
	// EventPromptInjection is logged when an injection attempt is detected.
	EventPromptInjection AuditEventType = "security.prompt_injection"
	// EventUnsafeContent is logged when moderation flags a message.
	EventUnsafeContent AuditEventType = "safety.unsafe_content"
	// EventAnswerReplaced is logged when post-generation review swaps an answer.
	EventAnswerReplaced AuditEventType = "safety.answer_replaced"
	// EventInsufficientGrounding is logged when retrieval declines a question.
	EventInsufficientGrounding AuditEventType = "answer.insufficient_grounding"
	// EventSuspension is logged when the strike policy suspends an account.
	EventSuspension AuditEventType = "enforcement.suspension"
	// EventBan is logged when the strike policy bans an account.
	EventBan AuditEventType = "enforcement.ban"
)

// AuditEvent is an immutable safety audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditService writes and reads the safety audit trail.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records one audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO safety_audit_events (id, event_type, user_id, session_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.UserID),
		nullString(event.SessionID),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// Record satisfies the auditor interfaces used by the pipeline and the
// enforcement service. detail must be JSON-marshalable.
func (s *AuditService) Record(ctx context.Context, eventType, userID string, detail map[string]any) error {
	var raw json.RawMessage
	if len(detail) > 0 {
		data, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("compliance: failed to marshal audit detail: %w", err)
		}
		raw = data
	}
	return s.LogEvent(ctx, AuditEvent{
		EventType: AuditEventType(eventType),
		UserID:    userID,
		Details:   raw,
	})
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	UserID    string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryEvents retrieves audit events, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, session_id, details, created_at
		FROM safety_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var userID, sessionID sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &userID, &sessionID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.UserID = userID.String
		e.SessionID = sessionID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
