package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// db is the subset of pgxpool.Pool the repository needs.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores moderation state in the relational database.
type PostgresRepository struct {
	db     db
	policy Policy
	now    func() time.Time
}

func NewPostgresRepository(db db, policy Policy) *PostgresRepository {
	if db == nil {
		panic("enforcement: db required")
	}
	return &PostgresRepository{
		db:     db,
		policy: policy.withDefaults(),
		now:    time.Now,
	}
}

// GetStatus loads the durable counters for a user. Users with no row have
// never violated and report as active.
func (r *PostgresRepository) GetStatus(ctx context.Context, userID string) (ModerationStatus, error) {
	query := `
		SELECT user_id, state, strike_count, suspension_count, suspended_until, updated_at
		FROM user_moderation_status
		WHERE user_id = $1
	`
	var status ModerationStatus
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&status.UserID,
		&status.State,
		&status.StrikeCount,
		&status.SuspensionCount,
		&status.SuspendedUntil,
		&status.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModerationStatus{UserID: userID, State: StateActive}, nil
		}
		return ModerationStatus{}, fmt.Errorf("enforcement: select status failed: %w", err)
	}
	return status, nil
}

// ExpireSuspension reactivates a suspended account whose window has lapsed.
// The guard on suspended_until makes concurrent expiry idempotent: only one
// caller's UPDATE matches, the rest see the already-active row. The matching
// suspension record flips to expired in the same transaction.
func (r *PostgresRepository) ExpireSuspension(ctx context.Context, userID string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("enforcement: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE user_moderation_status
		SET state = 'active', strike_count = 0, suspended_until = NULL, updated_at = now()
		WHERE user_id = $1 AND state = 'suspended' AND suspended_until <= now()
	`, userID)
	if err != nil {
		return false, fmt.Errorf("enforcement: expire suspension failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE suspensions
		SET status = 'expired'
		WHERE user_id = $1 AND status = 'active' AND suspension_type = 'temporary' AND ends_at <= now()
	`, userID); err != nil {
		return false, fmt.Errorf("enforcement: close suspension record failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("enforcement: commit failed: %w", err)
	}
	return true, nil
}

// RecordViolation appends a violation and applies the strike escalation in
// one transaction. The strike increment is a single atomic UPDATE, so two
// concurrent violations for the same user produce two distinct strike
// counts and at most one escalation. The violation row snapshots the
// counters as they stand after the transition; an escalation additionally
// writes one suspensions row (temporary or permanent) referencing it.
func (r *PostgresRepository) RecordViolation(ctx context.Context, userID string, input ViolationInput) (ViolationOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ViolationOutcome{}, fmt.Errorf("enforcement: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_moderation_status (user_id, state, strike_count, suspension_count)
		VALUES ($1, 'active', 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return ViolationOutcome{}, fmt.Errorf("enforcement: ensure status row failed: %w", err)
	}

	var state AccountState
	var strikes, suspensions int
	if err := tx.QueryRow(ctx, `
		UPDATE user_moderation_status
		SET strike_count = strike_count + 1, updated_at = now()
		WHERE user_id = $1
		RETURNING state, strike_count, suspension_count
	`, userID).Scan(&state, &strikes, &suspensions); err != nil {
		return ViolationOutcome{}, fmt.Errorf("enforcement: increment strike failed: %w", err)
	}

	now := r.now().UTC()
	next := Transition(state, strikes, suspensions, now, r.policy)
	escalated := next.State != state || next.SuspensionCount != suspensions

	action := ActionStrike
	if escalated {
		action = ActionSuspended
		if next.State == StateBanned {
			action = ActionBanned
		}
	}

	violationID := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO violations (id, user_id, category, offending_text, detector_score, detail, action, strike_count, suspension_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, violationID, userID, string(input.Category), input.OffendingText,
		input.DetectorScore, input.Detail, string(action),
		next.StrikeCount, next.SuspensionCount); err != nil {
		return ViolationOutcome{}, fmt.Errorf("enforcement: insert violation failed: %w", err)
	}

	if escalated {
		if _, err := tx.Exec(ctx, `
			UPDATE user_moderation_status
			SET state = $2, strike_count = $3, suspension_count = $4, suspended_until = $5, updated_at = now()
			WHERE user_id = $1
		`, userID, string(next.State), next.StrikeCount, next.SuspensionCount, next.SuspendedUntil); err != nil {
			return ViolationOutcome{}, fmt.Errorf("enforcement: apply escalation failed: %w", err)
		}

		sType := SuspensionTemporary
		if next.State == StateBanned {
			sType = SuspensionPermanent
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO suspensions (id, user_id, suspension_type, violation_id, strike_count, starts_at, ends_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		`, uuid.NewString(), userID, string(sType), violationID, strikes, now, next.SuspendedUntil); err != nil {
			return ViolationOutcome{}, fmt.Errorf("enforcement: insert suspension failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ViolationOutcome{}, fmt.Errorf("enforcement: commit failed: %w", err)
	}

	return ViolationOutcome{
		State:           next.State,
		StrikeCount:     next.StrikeCount,
		SuspensionCount: next.SuspensionCount,
		SuspendedUntil:  next.SuspendedUntil,
		Escalated:       escalated,
	}, nil
}

// LiftSuspension reactivates a suspended account early. Strikes reset;
// the suspension count stays, so the next suspension still escalates.
func (r *PostgresRepository) LiftSuspension(ctx context.Context, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("enforcement: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE user_moderation_status
		SET state = 'active', strike_count = 0, suspended_until = NULL, updated_at = now()
		WHERE user_id = $1 AND state = 'suspended'
	`, userID)
	if err != nil {
		return fmt.Errorf("enforcement: lift suspension failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotSuspended
	}

	if _, err := tx.Exec(ctx, `
		UPDATE suspensions
		SET status = 'lifted'
		WHERE user_id = $1 AND status = 'active' AND suspension_type = 'temporary'
	`, userID); err != nil {
		return fmt.Errorf("enforcement: close suspension record failed: %w", err)
	}

	return tx.Commit(ctx)
}

// LiftBan restores a banned account to active. The suspension count is
// preserved, so the account bans again on its next suspension unless an
// operator also adjusts it.
func (r *PostgresRepository) LiftBan(ctx context.Context, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("enforcement: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE user_moderation_status
		SET state = 'active', strike_count = 0, suspended_until = NULL, updated_at = now()
		WHERE user_id = $1 AND state = 'banned'
	`, userID)
	if err != nil {
		return fmt.Errorf("enforcement: lift ban failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotBanned
	}

	if _, err := tx.Exec(ctx, `
		UPDATE suspensions
		SET status = 'lifted'
		WHERE user_id = $1 AND status = 'active' AND suspension_type = 'permanent'
	`, userID); err != nil {
		return fmt.Errorf("enforcement: close ban record failed: %w", err)
	}

	return tx.Commit(ctx)
}

// ListViolations returns a user's violations, newest first.
func (r *PostgresRepository) ListViolations(ctx context.Context, userID string, limit int) ([]Violation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, category, offending_text, detector_score, detail, action, strike_count, suspension_count, created_at
		FROM violations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("enforcement: list violations failed: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		var category, action string
		if err := rows.Scan(&v.ID, &v.UserID, &category, &v.OffendingText,
			&v.DetectorScore, &v.Detail, &action,
			&v.StrikeCount, &v.SuspensionCount, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("enforcement: scan violation failed: %w", err)
		}
		v.Category = ViolationCategory(category)
		v.Action = ViolationAction(action)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enforcement: iterate violations failed: %w", err)
	}
	return out, nil
}
