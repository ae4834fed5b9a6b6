package enforcement

import (
	"context"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// maxOffendingText bounds how much of a flagged message is stored verbatim.
const maxOffendingText = 1000

// Repository is the persistence surface the service drives.
type Repository interface {
	GetStatus(ctx context.Context, userID string) (ModerationStatus, error)
	ExpireSuspension(ctx context.Context, userID string) (bool, error)
	RecordViolation(ctx context.Context, userID string, input ViolationInput) (ViolationOutcome, error)
	LiftSuspension(ctx context.Context, userID string) error
	LiftBan(ctx context.Context, userID string) error
	ListViolations(ctx context.Context, userID string, limit int) ([]Violation, error)
}

// Auditor records enforcement events in the compliance trail. Failures are
// logged, never propagated: audit must not block enforcement.
type Auditor interface {
	Record(ctx context.Context, eventType, userID string, detail map[string]any) error
}

// Service applies the strike/suspension/ban policy.
type Service struct {
	repo    Repository
	auditor Auditor
	logger  *logging.Logger
	tracer  trace.Tracer
}

func NewService(repo Repository, auditor Auditor, logger *logging.Logger) *Service {
	if repo == nil {
		panic("enforcement: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.Component("enforcement"),
		tracer:  otel.Tracer("attorney.internal.enforcement"),
	}
}

// CheckStatus gates an inbound request. Suspensions expire lazily here:
// the first check after the window lapses flips the account back to active.
// Anonymous requests (empty userID) carry no standing and always pass.
func (s *Service) CheckStatus(ctx context.Context, userID string) (StatusCheck, error) {
	if userID == "" {
		return StatusCheck{Allowed: true, State: StateActive}, nil
	}

	ctx, span := s.tracer.Start(ctx, "enforcement.check_status")
	defer span.End()

	status, err := s.repo.GetStatus(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return StatusCheck{}, err
	}

	if Expired(status, time.Now().UTC()) {
		expired, err := s.repo.ExpireSuspension(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return StatusCheck{}, err
		}
		if expired {
			s.logger.Info("suspension expired, account reactivated", "user_id", userID)
			s.audit(ctx, "enforcement.suspension_expired", userID, nil)
		}
		// Another checker may have expired it first; both observe active.
		status, err = s.repo.GetStatus(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return StatusCheck{}, err
		}
	}

	check := StatusCheck{
		Allowed:        status.State == StateActive,
		State:          status.State,
		SuspendedUntil: status.SuspendedUntil,
	}
	span.SetAttributes(
		attribute.String("enforcement.state", string(status.State)),
		attribute.Bool("enforcement.allowed", check.Allowed),
	)
	return check, nil
}

// RecordViolation files a strike against an identified user and reports the
// resulting standing. Anonymous violations are not recorded.
func (s *Service) RecordViolation(ctx context.Context, userID string, input ViolationInput) (ViolationOutcome, error) {
	if userID == "" {
		return ViolationOutcome{State: StateActive}, nil
	}

	ctx, span := s.tracer.Start(ctx, "enforcement.record_violation")
	defer span.End()
	span.SetAttributes(attribute.String("enforcement.category", string(input.Category)))

	input.OffendingText = truncateText(input.OffendingText, maxOffendingText)

	outcome, err := s.repo.RecordViolation(ctx, userID, input)
	if err != nil {
		span.RecordError(err)
		return ViolationOutcome{}, err
	}

	s.logger.Warn("violation recorded",
		"user_id", userID,
		"category", string(input.Category),
		"state", string(outcome.State),
		"strikes", outcome.StrikeCount,
		"suspensions", outcome.SuspensionCount,
	)

	if outcome.Escalated {
		event := "enforcement.suspension"
		if outcome.State == StateBanned {
			event = "enforcement.ban"
		}
		s.audit(ctx, event, userID, map[string]any{
			"category":         string(input.Category),
			"suspension_count": outcome.SuspensionCount,
		})
	}
	return outcome, nil
}

// truncateText bounds s to max bytes without splitting a multi-byte rune.
// Offending text is often Tagalog or emoji-laden; cutting mid-rune would
// make the stored value invalid UTF-8 and fail the violation insert.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// LiftSuspension is the operator override for an active suspension.
func (s *Service) LiftSuspension(ctx context.Context, userID string) error {
	if err := s.repo.LiftSuspension(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("suspension lifted by operator", "user_id", userID)
	s.audit(ctx, "enforcement.suspension_lifted", userID, nil)
	return nil
}

// LiftBan is the operator override for a permanent ban.
func (s *Service) LiftBan(ctx context.Context, userID string) error {
	if err := s.repo.LiftBan(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("ban lifted by operator", "user_id", userID)
	s.audit(ctx, "enforcement.ban_lifted", userID, nil)
	return nil
}

// ListViolations exposes a user's violation history for operator review.
func (s *Service) ListViolations(ctx context.Context, userID string, limit int) ([]Violation, error) {
	return s.repo.ListViolations(ctx, userID, limit)
}

func (s *Service) audit(ctx context.Context, eventType, userID string, detail map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, eventType, userID, detail); err != nil {
		s.logger.Error("audit record failed", "event", eventType, "error", err)
	}
}
