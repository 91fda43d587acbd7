package ledger

import "time"

// Entry is an immutable, append-only routing session record.
//
// Invariants:
// - Entries are never updated or deleted.
// - tenant_id is required: the log is partitioned per tenant.
// - Per-call ordering is preserved; cross-call ordering is best-effort.
//
// Storage recommendation (Postgres):
// - Table routing_ledger with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.
type Entry struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	CallID   string `json:"call_id" db:"call_id"`

	Kind Kind `json:"kind" db:"kind"`

	// Decision fields (Kind == KindDecision).
	DepartmentID   string  `json:"department_id,omitempty" db:"department_id"`
	DepartmentName string  `json:"department_name,omitempty" db:"department_name"`
	RuleID         string  `json:"rule_id,omitempty" db:"rule_id"`
	Reason         string  `json:"reason,omitempty" db:"reason"`
	Confidence     float64 `json:"confidence,omitempty" db:"confidence"`
	Sentiment      float64 `json:"sentiment,omitempty" db:"sentiment"`
	Intent         string  `json:"intent,omitempty" db:"intent"`

	// Escalation fields (Kind == KindEscalation).
	EscalationID string `json:"escalation_id,omitempty" db:"escalation_id"`
	Strategy     string `json:"strategy,omitempty" db:"strategy"`
	Status       string `json:"status,omitempty" db:"status"`
	Attempt      int    `json:"attempt,omitempty" db:"attempt"`

	// Metadata is optional JSON with the full decision snapshot.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindDecision   Kind = "routing_decision"
	KindEscalation Kind = "escalation_transition"
)
