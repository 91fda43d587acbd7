package tenant

import "time"

// Tenant is one business customer of the platform.
//
// Multi-tenant invariants:
//   - Destination numbers are unique platform-wide (enforced at provisioning).
//   - The routing core reads tenant configuration; the provisioning service is
//     the sole writer. The only field this core updates is LastActivity.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Numbers are the toll-free/destination numbers owned by this tenant (E.164).
	Numbers []string `json:"numbers"`

	Status Status `json:"status"`

	// Timezone is an IANA zone name, e.g. "America/New_York".
	Timezone        string `json:"timezone"`
	DefaultLanguage string `json:"default_language"`

	// Greeting is tenant branding played on answer.
	Greeting string `json:"greeting,omitempty"`

	Hours BusinessHours `json:"business_hours"`

	// DefaultDepartmentID receives calls when no routing rule matches.
	// Empty means rule misses go straight to escalation.
	DefaultDepartmentID string `json:"default_department_id,omitempty"`

	Departments []Department `json:"departments"`

	Escalation EscalationPolicy `json:"escalation"`

	LastActivity time.Time `json:"last_activity,omitempty"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Department is a routing destination within a tenant.
type Department struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Type DepartmentType `json:"type"`

	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Greeting    string `json:"greeting,omitempty"`

	// Priority 1..10, higher is evaluated first. Ties break by department ID
	// ascending so evaluation order stays deterministic.
	Priority int `json:"priority"`

	// Rules are evaluated in descending rule priority; first match wins.
	Rules []RoutingRule `json:"routing_rules"`

	Agents []Agent `json:"agents"`

	// Hours overrides the tenant-level schedule when set.
	Hours *BusinessHours `json:"business_hours,omitempty"`

	Active bool `json:"active"`

	// Fallback controls what happens when no agent is reachable in-hours.
	Fallback FallbackPolicy `json:"fallback"`
}

type DepartmentType string

const (
	DepartmentSales     DepartmentType = "sales"
	DepartmentSupport   DepartmentType = "support"
	DepartmentBilling   DepartmentType = "billing"
	DepartmentTechnical DepartmentType = "technical"
	DepartmentCustom    DepartmentType = "custom"
)

// FallbackPolicy ranks what a department does when in-hours but unstaffed:
// queue if enabled, else callback if enabled, else voicemail.
type FallbackPolicy struct {
	QueueEnabled    bool `json:"queue_enabled"`
	CallbackEnabled bool `json:"callback_enabled"`
}

// Agent is a human destination inside a department.
//
// CurrentCalls here is a read-side snapshot only. The authoritative counter
// lives in the shared slot store and is mutated through atomic acquire/release;
// 0 <= currentCalls <= MaxConcurrentCalls holds at all times.
type Agent struct {
	ID           string `json:"id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`

	Skills []string `json:"skills"`

	Availability Availability `json:"availability"`

	MaxConcurrentCalls int `json:"max_concurrent_calls"`
	CurrentCalls       int `json:"current_calls"`
}

type Availability string

const (
	AgentAvailable Availability = "available"
	AgentBusy      Availability = "busy"
	AgentOffline   Availability = "offline"
	AgentOnBreak   Availability = "break"
)

// RoutingRule matches analyzer output and call metadata to an action.
type RoutingRule struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	Condition Condition `json:"condition"`
	Operator  Operator  `json:"operator"`
	Value     RuleValue `json:"value"`

	Action Action `json:"action"`
	Target string `json:"target,omitempty"`

	// Priority orders rules within a department, higher first.
	Priority int `json:"priority"`

	Description string `json:"description,omitempty"`

	// Disabled is set by config validation when the rule can never match
	// (e.g. numeric operator on a string value). Disabled rules are skipped.
	Disabled bool `json:"disabled,omitempty"`
}

type Condition string

const (
	CondIntent         Condition = "intent"
	CondSentiment      Condition = "sentiment"
	CondCustomerTier   Condition = "customer_tier"
	CondTimeOfDay      Condition = "time_of_day"
	CondKeyword        Condition = "keyword"
	CondCallerID       Condition = "caller_id"
	CondDepartmentLoad Condition = "department_load"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

type Action string

const (
	ActionRoute        Action = "route"
	ActionTransfer     Action = "transfer"
	ActionVoicemail    Action = "voicemail"
	ActionCallback     Action = "callback"
	ActionQueue        Action = "queue"
	ActionAnnouncement Action = "announcement"
	ActionEscalate     Action = "escalate"
)

// BusinessHours is a per-weekday schedule in the owner's timezone with
// exact-date holiday overrides and optional in-day break windows.
type BusinessHours struct {
	// Timezone overrides the tenant timezone when set.
	Timezone string `json:"timezone,omitempty"`

	// Weekdays is keyed by time.Weekday (0 = Sunday).
	Weekdays [7]DaySchedule `json:"weekdays"`

	Holidays []Holiday `json:"holidays,omitempty"`

	// Breaks apply to every enabled day.
	Breaks []Window `json:"breaks,omitempty"`

	AfterHours AfterHoursPolicy `json:"after_hours"`
}

// DaySchedule holds clock times as "15:04" strings in the schedule timezone.
// Convention: start is inclusive, end is exclusive. A call landing exactly at
// End is outside hours.
type DaySchedule struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Holiday is an exact-date override; it beats the weekday schedule.
type Holiday struct {
	Date    string `json:"date"` // "2006-01-02"
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`

	// Greeting replaces the default after-hours greeting on this date.
	Greeting string `json:"greeting,omitempty"`
	// ForwardTo optionally forwards instead of the after-hours action.
	ForwardTo string `json:"forward_to,omitempty"`
}

type AfterHoursPolicy struct {
	Action   AfterHoursAction `json:"action"`
	Target   string           `json:"target,omitempty"`
	Greeting string           `json:"greeting,omitempty"`
}

type AfterHoursAction string

const (
	AfterHoursVoicemail    AfterHoursAction = "voicemail"
	AfterHoursForward      AfterHoursAction = "forward"
	AfterHoursAnnouncement AfterHoursAction = "announcement"
)

// EscalationPolicy is the tenant-configured human-escalation ladder.
type EscalationPolicy struct {
	// Strategies are attempted in order; each bounds its own retries.
	Strategies []StrategyConfig `json:"strategies"`

	MaxEscalationLevel int `json:"max_escalation_level,omitempty"`
}

type StrategyConfig struct {
	Type EscalationStrategy `json:"type"`

	// PrimaryNumber is the on_call target and the last-resort forward for
	// the other strategies.
	PrimaryNumber string `json:"primary_number,omitempty"`

	// RingGroup numbers, used by the ring_group strategy.
	RingGroup []string `json:"ring_group,omitempty"`
	// RingMode is "simultaneous" (first answer wins) or "sequential".
	RingMode RingMode `json:"ring_mode,omitempty"`

	// Hours is the escalation-specific schedule for business_hours.
	Hours *BusinessHours `json:"business_hours,omitempty"`
	// ForwardNumber receives the call when the business_hours schedule is open.
	ForwardNumber string `json:"forward_number,omitempty"`

	// AgentPool for skills-based escalation.
	AgentPool []Agent `json:"agent_pool,omitempty"`

	MaxAttempts int `json:"max_attempts"`
}

type EscalationStrategy string

const (
	StrategyOnCall        EscalationStrategy = "on_call"
	StrategyRingGroup     EscalationStrategy = "ring_group"
	StrategyBusinessHours EscalationStrategy = "business_hours"
	StrategyAgentPool     EscalationStrategy = "agent_pool"
)

type RingMode string

const (
	RingSimultaneous RingMode = "simultaneous"
	RingSequential   RingMode = "sequential"
)
