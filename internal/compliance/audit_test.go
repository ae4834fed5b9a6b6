package compliance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAudit(t *testing.T) (*AuditService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuditService(db), mock
}

func TestLogEvent(t *testing.T) {
	svc, mock := newMockAudit(t)

	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO safety_audit_events").
		WithArgs("evt-1", EventPromptInjection, "user-1", "sess-1", []byte(`{"detail":"x"}`), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.LogEvent(context.Background(), AuditEvent{
		ID:        "evt-1",
		EventType: EventPromptInjection,
		UserID:    "user-1",
		SessionID: "sess-1",
		Details:   json.RawMessage(`{"detail":"x"}`),
		CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEventFillsDefaults(t *testing.T) {
	svc, mock := newMockAudit(t)

	mock.ExpectExec("INSERT INTO safety_audit_events").
		WithArgs(sqlmock.AnyArg(), EventUnsafeContent, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.LogEvent(context.Background(), AuditEvent{EventType: EventUnsafeContent})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMarshalsDetail(t *testing.T) {
	svc, mock := newMockAudit(t)

	mock.ExpectExec("INSERT INTO safety_audit_events").
		WithArgs(sqlmock.AnyArg(), EventSuspension, "user-1", nil, []byte(`{"suspension_count":1}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Record(context.Background(), "enforcement.suspension", "user-1", map[string]any{
		"suspension_count": 1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordNilDetail(t *testing.T) {
	svc, mock := newMockAudit(t)

	mock.ExpectExec("INSERT INTO safety_audit_events").
		WithArgs(sqlmock.AnyArg(), EventInsufficientGrounding, "user-1", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Record(context.Background(), "answer.insufficient_grounding", "user-1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEventsFilters(t *testing.T) {
	svc, mock := newMockAudit(t)

	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_type", "user_id", "session_id", "details", "created_at"}).
		AddRow("evt-2", string(EventPromptInjection), "user-1", nil, []byte(`{"detail":"b"}`), created).
		AddRow("evt-1", string(EventPromptInjection), "user-1", "sess-1", nil, created.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, event_type, user_id, session_id, details, created_at").
		WithArgs("user-1", EventPromptInjection).
		WillReturnRows(rows)

	got, err := svc.QueryEvents(context.Background(), AuditFilter{
		UserID:    "user-1",
		EventType: EventPromptInjection,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "evt-2", got[0].ID)
	assert.Equal(t, EventPromptInjection, got[0].EventType)
	assert.Equal(t, "user-1", got[0].UserID)
	assert.Empty(t, got[0].SessionID)
	assert.Equal(t, json.RawMessage(`{"detail":"b"}`), got[0].Details)
	assert.Equal(t, "sess-1", got[1].SessionID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEventsTimeRange(t *testing.T) {
	svc, mock := newMockAudit(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, event_type, user_id, session_id, details, created_at").
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "user_id", "session_id", "details", "created_at"}))

	got, err := svc.QueryEvents(context.Background(), AuditFilter{StartTime: start, EndTime: end})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
