package customer

import "time"

// Context is the tenant-scoped caller profile attached to each call.
//
// Invariants:
//   - History is append-only.
//   - This core never deletes a profile; anonymization belongs to the external
//     data-isolation collaborator.
type Context struct {
	TenantID string `json:"tenant_id"`
	CallerID string `json:"caller_id"`

	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	Tier Tier `json:"tier"`

	Language string `json:"language"`
	Timezone string `json:"timezone"`

	DoNotCall  bool `json:"do_not_call"`
	DoNotEmail bool `json:"do_not_email"`

	History []Interaction `json:"history"`

	PreferredDepartmentID string `json:"preferred_department_id,omitempty"`
	PreferredAgentID      string `json:"preferred_agent_id,omitempty"`

	FirstContactAt  time.Time `json:"first_contact_at"`
	LastInteraction time.Time `json:"last_interaction,omitempty"`

	// Degraded marks a profile built from defaults because the context store
	// was unreachable. Routing decisions snapshot this flag for audit.
	Degraded bool `json:"degraded,omitempty"`
}

type Tier string

const (
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// IsVIP reports whether the caller gets priority treatment.
func (c Context) IsVIP() bool { return c.Tier == TierEnterprise }

// Interaction is one append-only history record.
type Interaction struct {
	CallID     string    `json:"call_id"`
	Department string    `json:"department"`
	Outcome    string    `json:"outcome"`
	Summary    string    `json:"summary,omitempty"`
	At         time.Time `json:"at"`
}
