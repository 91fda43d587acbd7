package routing

import (
	"time"

	"callrouter-platform/internal/analysis"
	"callrouter-platform/internal/customer"

	"github.com/google/uuid"
)

// CallContext is the per-call arena: created when a call enters the system,
// owned exclusively by the task handling that call, archived to the ledger on
// termination. It is never shared across calls, so no locking is needed here.
type CallContext struct {
	CallID    string `json:"call_id"`
	SessionID string `json:"session_id"`

	TenantID    string `json:"tenant_id"`
	CallerID    string `json:"caller_id"`
	Destination string `json:"destination"`

	// ProviderCallID is the transport collaborator's identifier for this call.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	StartedAt time.Time `json:"started_at"`

	Customer customer.Context `json:"customer"`
	Analysis analysis.Result  `json:"analysis"`

	// History is append-only; decisions are immutable once appended.
	History []Decision `json:"routing_history"`

	CurrentDepartmentID string `json:"current_department_id,omitempty"`

	// EscalationLevel <= MaxEscalationLevel always.
	EscalationLevel    int `json:"escalation_level"`
	MaxEscalationLevel int `json:"max_escalation_level"`
}

func NewCallContext(tenantID, callerID, destination, providerCallID string, maxEscalation int, startedAt time.Time) *CallContext {
	if maxEscalation <= 0 {
		maxEscalation = 3
	}
	return &CallContext{
		CallID:             uuid.NewString(),
		SessionID:          uuid.NewString(),
		TenantID:           tenantID,
		CallerID:           callerID,
		Destination:        destination,
		ProviderCallID:     providerCallID,
		StartedAt:          startedAt,
		History:            []Decision{},
		MaxEscalationLevel: maxEscalation,
	}
}

// AppendDecision records one routing decision. Append-only; the caller must
// not mutate a decision after this returns.
func (c *CallContext) AppendDecision(d Decision) {
	c.History = append(c.History, d)
	if d.DepartmentID != "" {
		c.CurrentDepartmentID = d.DepartmentID
	}
}

// BumpEscalation raises the escalation level, clamped to the maximum.
// Returns false when the call is already at the cap.
func (c *CallContext) BumpEscalation() bool {
	if c.EscalationLevel >= c.MaxEscalationLevel {
		return false
	}
	c.EscalationLevel++
	return true
}

// Decision is the immutable record of which destination was chosen and why.
type Decision struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`

	DepartmentID   string `json:"department_id,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`

	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`

	Snapshot Snapshot `json:"snapshot"`
}

// Snapshot freezes the state that drove the decision, for audit.
type Snapshot struct {
	Tier            string  `json:"tier"`
	Intent          string  `json:"intent"`
	Sentiment       float64 `json:"sentiment"`
	BusinessHours   bool    `json:"business_hours"`
	AgentAvailable  bool    `json:"agent_available"`
	EscalationLevel int     `json:"escalation_level"`

	// ContextDegraded marks decisions taken with a default caller profile
	// because the context store was unreachable.
	ContextDegraded bool `json:"context_degraded,omitempty"`
}

func newDecision(now time.Time) Decision {
	return Decision{ID: uuid.NewString(), At: now}
}
