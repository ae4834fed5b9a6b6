package enforcement

import (
	"errors"
	"time"
)

// AccountState is the moderation standing of a user account.
type AccountState string

const (
	StateActive    AccountState = "active"
	StateSuspended AccountState = "suspended"
	StateBanned    AccountState = "banned"
)

// ViolationCategory identifies which safety screen the user tripped.
type ViolationCategory string

const (
	CategoryUnsafeContent   ViolationCategory = "unsafe_content"
	CategoryPromptInjection ViolationCategory = "prompt_injection"
)

var (
	ErrUserNotFound  = errors.New("enforcement: user not found")
	ErrNotSuspended  = errors.New("enforcement: user is not suspended")
	ErrNotBanned     = errors.New("enforcement: user is not banned")
	ErrBannedAccount = errors.New("enforcement: account is permanently banned")
)

// ViolationAction is what a recorded violation did to the account.
type ViolationAction string

const (
	ActionStrike    ViolationAction = "strike"
	ActionSuspended ViolationAction = "suspended"
	ActionBanned    ViolationAction = "banned"
)

// ViolationInput carries one detected offense into the repository.
type ViolationInput struct {
	Category      ViolationCategory `json:"category"`
	OffendingText string            `json:"offending_text"`
	// DetectorScore is the triggering detector's confidence in [0,1].
	DetectorScore float64 `json:"detector_score"`
	// Detail is the detector's short explanation, e.g. matched pattern
	// names or flagged moderation categories.
	Detail string `json:"detail"`
}

// Violation is one recorded safety violation. The strike and suspension
// counts are a snapshot of the account immediately after this violation
// was applied.
type Violation struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Category        ViolationCategory `json:"category"`
	OffendingText   string            `json:"offending_text"`
	DetectorScore   float64           `json:"detector_score"`
	Detail          string            `json:"detail,omitempty"`
	Action          ViolationAction   `json:"action"`
	StrikeCount     int               `json:"strike_count"`
	SuspensionCount int               `json:"suspension_count"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ModerationStatus is the durable per-user counter row.
type ModerationStatus struct {
	UserID          string       `json:"user_id"`
	State           AccountState `json:"state"`
	StrikeCount     int          `json:"strike_count"`
	SuspensionCount int          `json:"suspension_count"`
	SuspendedUntil  *time.Time   `json:"suspended_until,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// SuspensionType distinguishes time-boxed suspensions from permanent bans.
type SuspensionType string

const (
	SuspensionTemporary SuspensionType = "temporary"
	SuspensionPermanent SuspensionType = "permanent"
)

// SuspensionStatus tracks the lifecycle of one suspension record.
type SuspensionStatus string

const (
	SuspensionActive  SuspensionStatus = "active"
	SuspensionLifted  SuspensionStatus = "lifted"
	SuspensionExpired SuspensionStatus = "expired"
)

// Suspension is one suspension or ban event. EndsAt is nil for permanent
// records. StrikeCount is the strike total at the moment of triggering.
type Suspension struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Type        SuspensionType   `json:"type"`
	ViolationID string           `json:"violation_id"`
	StrikeCount int              `json:"strike_count"`
	StartsAt    time.Time        `json:"starts_at"`
	EndsAt      *time.Time       `json:"ends_at,omitempty"`
	Status      SuspensionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
}

// StatusCheck is the gate decision for an inbound request.
type StatusCheck struct {
	Allowed        bool         `json:"allowed"`
	State          AccountState `json:"state"`
	SuspendedUntil *time.Time   `json:"suspended_until,omitempty"`
}

// ViolationOutcome reports what a recorded violation did to the account.
type ViolationOutcome struct {
	State           AccountState `json:"state"`
	StrikeCount     int          `json:"strike_count"`
	SuspensionCount int          `json:"suspension_count"`
	SuspendedUntil  *time.Time   `json:"suspended_until,omitempty"`
	// Escalated is true when this violation changed the account state.
	Escalated bool `json:"escalated"`
}
