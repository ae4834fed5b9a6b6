package enforcement

import "time"

// Default escalation thresholds. Strikes reset when a suspension is issued;
// suspension counts never reset, so repeat suspensions eventually ban.
const (
	DefaultStrikesForSuspension = 3
	DefaultSuspensionsForBan    = 3
	DefaultSuspensionDuration   = 7 * 24 * time.Hour
)

// Policy holds the escalation thresholds. Built once from configuration at
// startup and passed into the repository; never mutated at runtime.
type Policy struct {
	StrikesForSuspension int
	SuspensionsForBan    int
	SuspensionDuration   time.Duration
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		StrikesForSuspension: DefaultStrikesForSuspension,
		SuspensionsForBan:    DefaultSuspensionsForBan,
		SuspensionDuration:   DefaultSuspensionDuration,
	}
}

func (p Policy) withDefaults() Policy {
	if p.StrikesForSuspension <= 0 {
		p.StrikesForSuspension = DefaultStrikesForSuspension
	}
	if p.SuspensionsForBan <= 0 {
		p.SuspensionsForBan = DefaultSuspensionsForBan
	}
	if p.SuspensionDuration <= 0 {
		p.SuspensionDuration = DefaultSuspensionDuration
	}
	return p
}

// Transition computes the next standing after one more strike. Pure
// function of the current counters: the repository applies the result
// inside the same transaction that incremented the strike.
//
// The ban check compares the count of suspensions already served, so an
// account that served two suspensions gets a third temporary one; only an
// account that crossed the threshold before this strike is banned.
func Transition(state AccountState, strikes, suspensions int, now time.Time, policy Policy) (next ModerationStatus) {
	policy = policy.withDefaults()
	next = ModerationStatus{
		State:           state,
		StrikeCount:     strikes,
		SuspensionCount: suspensions,
	}

	if state == StateBanned {
		return next
	}
	if strikes < policy.StrikesForSuspension {
		return next
	}

	// Threshold reached: strikes convert into a suspension or, for an
	// account already at the suspension limit, a permanent ban.
	next.StrikeCount = 0
	next.SuspensionCount = suspensions + 1

	if suspensions >= policy.SuspensionsForBan {
		next.State = StateBanned
		next.SuspendedUntil = nil
		return next
	}

	until := now.Add(policy.SuspensionDuration)
	next.State = StateSuspended
	next.SuspendedUntil = &until
	return next
}

// Expired reports whether a suspension window has lapsed. A nil window on a
// suspended account counts as expired so the account can recover.
func Expired(status ModerationStatus, now time.Time) bool {
	if status.State != StateSuspended {
		return false
	}
	if status.SuspendedUntil == nil {
		return true
	}
	return !now.Before(*status.SuspendedUntil)
}
