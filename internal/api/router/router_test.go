package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/chat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/enforcement"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/http/handlers"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/webchat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

const testAdminSecret = "test-admin-secret"

type stubAsker struct{}

func (stubAsker) Ask(_ context.Context, _ chat.AskRequest, sink chat.StreamSink) error {
	_ = sink(chat.StreamEvent{Type: chat.EventMetadata, Language: chat.LanguageEnglish})
	_ = sink(chat.StreamEvent{Type: chat.EventContent, Text: "answer"})
	_ = sink(chat.StreamEvent{Type: chat.EventDone})
	return nil
}

type stubEnforcementRepo struct{}

func (stubEnforcementRepo) GetStatus(_ context.Context, userID string) (enforcement.ModerationStatus, error) {
	return enforcement.ModerationStatus{UserID: userID, State: enforcement.StateActive}, nil
}

func (stubEnforcementRepo) ExpireSuspension(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (stubEnforcementRepo) RecordViolation(_ context.Context, _ string, _ enforcement.ViolationInput) (enforcement.ViolationOutcome, error) {
	return enforcement.ViolationOutcome{State: enforcement.StateActive, StrikeCount: 1}, nil
}

func (stubEnforcementRepo) LiftSuspension(_ context.Context, _ string) error {
	return enforcement.ErrNotSuspended
}

func (stubEnforcementRepo) LiftBan(_ context.Context, _ string) error { return nil }

func (stubEnforcementRepo) ListViolations(_ context.Context, _ string, _ int) ([]enforcement.Violation, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.New("error")
	svc := enforcement.NewService(stubEnforcementRepo{}, nil, logger)
	return New(&Config{
		Logger:           logger,
		ChatHandler:      webchat.NewHandler(stubAsker{}, nil, logger),
		AdminEnforcement: handlers.NewAdminEnforcementHandler(svc, logger),
		AdminAuthSecret:  testAdminSecret,
		AnonRateLimit:    100,
		AnonRateBurst:    100,
	})
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestChatEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"text":"What is estafa?"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "answer", resp.Answer)
}

func TestAdminRequiresToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/enforcement/user-1/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminRejectsBadToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/enforcement/user-1/status", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "wrong-secret"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminStatusWithValidToken(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/enforcement/user-1/status", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, testAdminSecret))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var check enforcement.StatusCheck
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.True(t, check.Allowed)
	assert.Equal(t, enforcement.StateActive, check.State)
}

func TestAdminLiftSuspensionConflict(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/enforcement/user-1/lift-suspension", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, testAdminSecret))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// The stub reports the user as not suspended.
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
