package escalation

import (
	"context"
	"time"

	"callrouter-platform/internal/tenant"
)

// Escalation is the bounded-retry record for one strategy of one call.
//
// State machine: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}. FAILED
// re-enters PENDING for the next attempt until Attempts == MaxAttempts, then
// the strategy is terminal and the engine advances to the next one.
type Escalation struct {
	ID       string `json:"id"`
	CallID   string `json:"call_id"`
	TenantID string `json:"tenant_id"`

	Reason   string                    `json:"reason"`
	Strategy tenant.EscalationStrategy `json:"strategy"`

	TargetNumber string `json:"target_number,omitempty"`

	Status Status `json:"status"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Request asks the engine to reach a human for a call.
type Request struct {
	CallID   string
	TenantID string

	// Reason is a short machine-readable cause, e.g. "no_rule_match",
	// "no_eligible_destination", "sentiment_threshold".
	Reason string

	Policy tenant.EscalationPolicy

	// Analyzer facts that drive skill derivation for agent_pool.
	Intent    string
	Sentiment float64
	Keywords  []string

	// TenantTimezone backs business_hours schedules with no explicit zone.
	TenantTimezone string
}

// Outcome is the terminal result of a full escalation run.
type Outcome struct {
	// Completed is true when a strategy reached a live destination (or a
	// strategy-level voicemail). False means every strategy exhausted its
	// attempts: the caller must route to the platform voicemail so the
	// call is never silently dropped.
	Completed bool

	Strategy tenant.EscalationStrategy
	Target   string

	// Voicemail marks a business_hours strategy that closed into voicemail.
	Voicemail bool

	// Release returns an agent_pool slot; non-nil only for agent_pool wins.
	// The call owner must invoke it when the call ends.
	Release func(context.Context)

	// Trail carries every escalation record produced during the run.
	Trail []Escalation
}
