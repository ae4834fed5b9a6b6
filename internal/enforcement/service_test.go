package enforcement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

type fakeRepo struct {
	status    ModerationStatus
	statusErr error

	outcome    ViolationOutcome
	outcomeErr error

	expired    bool
	expireErr  error
	expireHits int

	liftSuspErr error
	liftBanErr  error

	violations []Violation

	recorded ViolationInput
}

func (f *fakeRepo) GetStatus(_ context.Context, userID string) (ModerationStatus, error) {
	if f.statusErr != nil {
		return ModerationStatus{}, f.statusErr
	}
	status := f.status
	status.UserID = userID
	return status, nil
}

func (f *fakeRepo) ExpireSuspension(_ context.Context, _ string) (bool, error) {
	f.expireHits++
	if f.expireErr != nil {
		return false, f.expireErr
	}
	if f.expired {
		// Mirror what the guarded UPDATE does in Postgres.
		f.status = ModerationStatus{State: StateActive, SuspensionCount: f.status.SuspensionCount}
	}
	return f.expired, nil
}

func (f *fakeRepo) RecordViolation(_ context.Context, _ string, input ViolationInput) (ViolationOutcome, error) {
	f.recorded = input
	return f.outcome, f.outcomeErr
}

func (f *fakeRepo) LiftSuspension(_ context.Context, _ string) error { return f.liftSuspErr }
func (f *fakeRepo) LiftBan(_ context.Context, _ string) error        { return f.liftBanErr }

func (f *fakeRepo) ListViolations(_ context.Context, _ string, _ int) ([]Violation, error) {
	return f.violations, nil
}

type recordingAuditor struct {
	events []string
	err    error
}

func (a *recordingAuditor) Record(_ context.Context, eventType, _ string, _ map[string]any) error {
	a.events = append(a.events, eventType)
	return a.err
}

func newTestService(repo *fakeRepo, auditor *recordingAuditor) *Service {
	return NewService(repo, auditor, logging.New("error"))
}

func TestCheckStatusAnonymousAlwaysAllowed(t *testing.T) {
	repo := &fakeRepo{statusErr: errors.New("must not be called")}
	svc := newTestService(repo, nil)

	check, err := svc.CheckStatus(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, StateActive, check.State)
}

func TestCheckStatusActiveUser(t *testing.T) {
	repo := &fakeRepo{status: ModerationStatus{State: StateActive}}
	svc := newTestService(repo, nil)

	check, err := svc.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 0, repo.expireHits)
}

func TestCheckStatusSuspendedWithinWindow(t *testing.T) {
	until := time.Now().UTC().Add(48 * time.Hour)
	repo := &fakeRepo{status: ModerationStatus{State: StateSuspended, SuspendedUntil: &until}}
	svc := newTestService(repo, nil)

	check, err := svc.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, StateSuspended, check.State)
	require.NotNil(t, check.SuspendedUntil)
	assert.Equal(t, until, *check.SuspendedUntil)
	assert.Equal(t, 0, repo.expireHits)
}

func TestCheckStatusLazyExpiry(t *testing.T) {
	lapsed := time.Now().UTC().Add(-time.Hour)
	repo := &fakeRepo{
		status:  ModerationStatus{State: StateSuspended, SuspendedUntil: &lapsed, SuspensionCount: 1},
		expired: true,
	}
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor)

	check, err := svc.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, StateActive, check.State)
	assert.Equal(t, 1, repo.expireHits)
	assert.Contains(t, auditor.events, "enforcement.suspension_expired")
}

func TestCheckStatusExpiryLostRace(t *testing.T) {
	lapsed := time.Now().UTC().Add(-time.Hour)
	repo := &fakeRepo{
		status:  ModerationStatus{State: StateSuspended, SuspendedUntil: &lapsed},
		expired: false,
	}
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor)

	// The guarded update matched no rows, so no expiry event is filed; the
	// re-read still reports whatever state the winner left behind.
	check, err := svc.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Empty(t, auditor.events)
}

func TestCheckStatusBannedUser(t *testing.T) {
	repo := &fakeRepo{status: ModerationStatus{State: StateBanned}}
	svc := newTestService(repo, nil)

	check, err := svc.CheckStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, StateBanned, check.State)
	assert.Equal(t, 0, repo.expireHits)
}

func TestCheckStatusRepositoryError(t *testing.T) {
	repo := &fakeRepo{statusErr: errors.New("db down")}
	svc := newTestService(repo, nil)

	_, err := svc.CheckStatus(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestRecordViolationAnonymousNoOp(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, nil)

	outcome, err := svc.RecordViolation(context.Background(), "", ViolationInput{Category: CategoryUnsafeContent, OffendingText: "offensive text"})
	require.NoError(t, err)
	assert.Equal(t, StateActive, outcome.State)
	assert.Empty(t, repo.recorded.Category)
}

func TestRecordViolationTruncatesOffendingText(t *testing.T) {
	repo := &fakeRepo{outcome: ViolationOutcome{State: StateActive, StrikeCount: 1}}
	svc := newTestService(repo, nil)

	long := strings.Repeat("x", 5000)
	_, err := svc.RecordViolation(context.Background(), "user-1", ViolationInput{Category: CategoryPromptInjection, OffendingText: long, DetectorScore: 0.9})
	require.NoError(t, err)
	assert.Len(t, repo.recorded.OffendingText, maxOffendingText)
	assert.Equal(t, CategoryPromptInjection, repo.recorded.Category)
	assert.Equal(t, 0.9, repo.recorded.DetectorScore)
}

func TestRecordViolationTruncatesOnRuneBoundary(t *testing.T) {
	repo := &fakeRepo{outcome: ViolationOutcome{State: StateActive, StrikeCount: 1}}
	svc := newTestService(repo, nil)

	// 400 three-byte runes: 1200 bytes, and byte 1000 falls mid-rune.
	long := strings.Repeat("₱", 400)
	_, err := svc.RecordViolation(context.Background(), "user-1", ViolationInput{Category: CategoryUnsafeContent, OffendingText: long})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(repo.recorded.OffendingText))
	assert.LessOrEqual(t, len(repo.recorded.OffendingText), maxOffendingText)
	assert.Equal(t, 999, len(repo.recorded.OffendingText))
}

func TestRecordViolationEscalationAudit(t *testing.T) {
	tests := []struct {
		name      string
		outcome   ViolationOutcome
		wantEvent string
	}{
		{
			name:      "suspension escalation",
			outcome:   ViolationOutcome{State: StateSuspended, SuspensionCount: 1, Escalated: true},
			wantEvent: "enforcement.suspension",
		},
		{
			name:      "ban escalation",
			outcome:   ViolationOutcome{State: StateBanned, SuspensionCount: 3, Escalated: true},
			wantEvent: "enforcement.ban",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{outcome: tt.outcome}
			auditor := &recordingAuditor{}
			svc := newTestService(repo, auditor)

			outcome, err := svc.RecordViolation(context.Background(), "user-1", ViolationInput{Category: CategoryUnsafeContent, OffendingText: "text"})
			require.NoError(t, err)
			assert.True(t, outcome.Escalated)
			assert.Equal(t, []string{tt.wantEvent}, auditor.events)
		})
	}
}

func TestRecordViolationNoEscalationNoAudit(t *testing.T) {
	repo := &fakeRepo{outcome: ViolationOutcome{State: StateActive, StrikeCount: 2}}
	auditor := &recordingAuditor{}
	svc := newTestService(repo, auditor)

	_, err := svc.RecordViolation(context.Background(), "user-1", ViolationInput{Category: CategoryUnsafeContent, OffendingText: "text"})
	require.NoError(t, err)
	assert.Empty(t, auditor.events)
}

func TestRecordViolationAuditFailureDoesNotPropagate(t *testing.T) {
	repo := &fakeRepo{outcome: ViolationOutcome{State: StateSuspended, SuspensionCount: 1, Escalated: true}}
	auditor := &recordingAuditor{err: errors.New("audit db down")}
	svc := newTestService(repo, auditor)

	_, err := svc.RecordViolation(context.Background(), "user-1", ViolationInput{Category: CategoryUnsafeContent, OffendingText: "text"})
	assert.NoError(t, err)
}

func TestLiftSuspension(t *testing.T) {
	auditor := &recordingAuditor{}
	svc := newTestService(&fakeRepo{}, auditor)

	require.NoError(t, svc.LiftSuspension(context.Background(), "user-1"))
	assert.Equal(t, []string{"enforcement.suspension_lifted"}, auditor.events)
}

func TestLiftSuspensionNotSuspended(t *testing.T) {
	auditor := &recordingAuditor{}
	svc := newTestService(&fakeRepo{liftSuspErr: ErrNotSuspended}, auditor)

	err := svc.LiftSuspension(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNotSuspended)
	assert.Empty(t, auditor.events)
}

func TestLiftBan(t *testing.T) {
	auditor := &recordingAuditor{}
	svc := newTestService(&fakeRepo{}, auditor)

	require.NoError(t, svc.LiftBan(context.Background(), "user-1"))
	assert.Equal(t, []string{"enforcement.ban_lifted"}, auditor.events)
}

func TestListViolations(t *testing.T) {
	repo := &fakeRepo{violations: []Violation{{ID: "v-1", Category: CategoryUnsafeContent}}}
	svc := newTestService(repo, nil)

	got, err := svc.ListViolations(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v-1", got[0].ID)
}
