package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callrouter-platform/internal/analysis"
	"callrouter-platform/internal/availability"
	"callrouter-platform/internal/customer"
	"callrouter-platform/internal/escalation"
	"callrouter-platform/internal/ledger"
	"callrouter-platform/internal/tenant"
	"callrouter-platform/pkg/logger"
)

// Escalator is the human-escalation collaborator. escalation.Engine
// satisfies this.
type Escalator interface {
	Escalate(ctx context.Context, req escalation.Request) escalation.Outcome
}

// Recorder accepts ledger entries without blocking. ledger.Recorder
// satisfies this.
type Recorder interface {
	Record(e ledger.Entry)
}

// Config carries the router's operational knobs.
type Config struct {
	// MaxEscalationLevel caps per-call escalations.
	MaxEscalationLevel int

	// PlatformVoicemail is the terminal destination when a tenant's own
	// escalation policy is exhausted. A call is never dropped.
	PlatformVoicemail string
}

// RouteInput is one inbound call event, provider-agnostic.
type RouteInput struct {
	From           string
	To             string
	ProviderCallID string

	// Utterance is the caller's transcribed reason for calling. May be empty
	// (caller said nothing yet); analysis then yields the fallback intent.
	Utterance string

	OccurredAt time.Time
}

// ResultAction tells the transport layer what to do with the caller.
type ResultAction string

const (
	// ActionConnect bridges the caller to Result.Agent.
	ActionConnect ResultAction = "connect"
	// ActionQueue holds the caller in the department queue.
	ActionQueue ResultAction = "queue"
	// ActionCallback offers a callback at Result.CallbackAt and hangs up.
	ActionCallback ResultAction = "callback"
	// ActionVoicemail sends the caller to voicemail (department, strategy or
	// platform, per Result.Target).
	ActionVoicemail ResultAction = "voicemail"
	// ActionForward transfers the call off-platform to Result.Target.
	ActionForward ResultAction = "forward"
	// ActionAnnouncement plays Result.Message and ends the call.
	ActionAnnouncement ResultAction = "announcement"
	// ActionReject plays a generic message; the dialed number serves no
	// active tenant.
	ActionReject ResultAction = "reject"
)

// Result is the routing verdict handed back to the transport layer.
type Result struct {
	Call *CallContext

	Action ResultAction

	// Department and Agent are set for ActionConnect/ActionQueue.
	Department tenant.Department
	Agent      tenant.Agent

	// Release returns the held agent slot. Non-nil only for ActionConnect;
	// the transport must call it when the call ends, on every path.
	Release func(context.Context)

	// Target is the forward number or voicemail box, depending on Action.
	Target string

	CallbackAt time.Time

	// Message is caller-facing: the tenant greeting followed by the
	// action-specific line. Transports render it as speech.
	Message string

	Escalated bool
}

// Router is the inbound pipeline: tenant lookup, caller context, content
// analysis, rule evaluation, availability, escalation, ledger. One call per
// invocation; the CallContext never leaves the invocation that owns it.
type Router struct {
	directory *tenant.Directory
	customers *customer.Resolver
	analyzer  *analysis.Analyzer
	evaluator *Evaluator
	agents    *availability.Resolver
	escalator Escalator
	recorder  Recorder

	cfg   Config
	log   *slog.Logger
	clock func() time.Time
}

func NewRouter(
	directory *tenant.Directory,
	customers *customer.Resolver,
	analyzer *analysis.Analyzer,
	evaluator *Evaluator,
	agents *availability.Resolver,
	escalator Escalator,
	recorder Recorder,
	cfg Config,
	log *slog.Logger,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		directory: directory,
		customers: customers,
		analyzer:  analyzer,
		evaluator: evaluator,
		agents:    agents,
		escalator: escalator,
		recorder:  recorder,
		cfg:       cfg,
		log:       log,
		clock:     time.Now,
	}
}

// RouteCall routes one inbound call end to end and returns the verdict.
//
// Rules:
//   - An unknown or non-active destination number rejects gracefully; the
//     caller hears a message, never dead air.
//   - Every other path terminates in a concrete action. When the tenant's
//     escalation policy is exhausted the platform voicemail is the floor.
//   - The decision ledger records every hop, fire-and-forget.
func (r *Router) RouteCall(ctx context.Context, in RouteInput) (Result, error) {
	now := in.OccurredAt
	if now.IsZero() {
		now = r.clock()
	}

	t, err := r.directory.ResolveTenant(ctx, in.To)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			r.log.Warn("call to unserved number", "destination", in.To, "caller", in.From)
			return Result{
				Action:  ActionReject,
				Message: "The number you have dialed is not in service. Please check the number and try again.",
			}, err
		}
		return Result{}, fmt.Errorf("resolve tenant for %s: %w", in.To, err)
	}

	maxLevel := r.cfg.MaxEscalationLevel
	if t.Escalation.MaxEscalationLevel > 0 {
		maxLevel = t.Escalation.MaxEscalationLevel
	}
	call := NewCallContext(t.ID, in.From, in.To, in.ProviderCallID, maxLevel, now)
	log := logger.WithCall(r.log, call.CallID, t.ID)

	call.Customer = r.customers.GetOrCreate(ctx, t.ID, in.From, customer.TenantDefaults{
		Language: t.DefaultLanguage,
		Timezone: t.Timezone,
	})

	call.Analysis = r.analyzer.Analyze(in.Utterance, analysis.CallerHints{
		Tier:            string(call.Customer.Tier),
		DefaultLanguage: call.Customer.Language,
	})
	log.Info("call analyzed",
		"intent", call.Analysis.Intent,
		"sentiment", call.Analysis.Sentiment,
		"urgency", string(call.Analysis.Urgency),
		"confidence", call.Analysis.Confidence,
	)

	r.directory.TouchActivity(ctx, t.ID)

	match, ok := r.evaluator.SelectDepartment(ctx, t, call, call.Analysis, now)
	if !ok {
		return r.escalate(ctx, t, call, "no_rule_match", now, log)
	}
	if match.Rule != nil && match.Rule.Action == tenant.ActionEscalate {
		return r.escalate(ctx, t, call, "rule_"+match.Rule.ID, now, log)
	}

	// Department membership already implies skill; analyzer-derived skills
	// only filter the escalation agent pool.
	avail, err := r.agents.Resolve(ctx, t, match.Department, nil, now)
	if err != nil {
		log.Error("availability check failed", "department_id", match.Department.ID, "err", err)
		return r.escalate(ctx, t, call, "availability_error", now, log)
	}

	if avail.Available {
		res := r.finishConnect(ctx, t, call, match, avail, now)
		return res, nil
	}

	if avail.Fallback == availability.FallbackNone {
		return r.escalate(ctx, t, call, "no_eligible_destination", now, log)
	}

	res := r.finishFallback(ctx, t, call, match, avail, now)
	return res, nil
}

func (r *Router) finishConnect(ctx context.Context, t tenant.Tenant, call *CallContext, match Match, avail availability.Resolution, now time.Time) Result {
	d := r.decision(call, match, avail, now)
	d.Reason = match.Reason
	call.AppendDecision(d)
	r.record(call, d, t)
	r.appendInteraction(ctx, call, match.Department.Name, "connected")

	return Result{
		Call:       call,
		Action:     ActionConnect,
		Department: match.Department,
		Agent:      avail.Agent,
		Release:    avail.Release,
		Message:    openingFor(t, match.Department) + fmt.Sprintf("Connecting you to our %s team.", match.Department.Name),
	}
}

func (r *Router) finishFallback(ctx context.Context, t tenant.Tenant, call *CallContext, match Match, avail availability.Resolution, now time.Time) Result {
	d := r.decision(call, match, avail, now)
	d.Reason = match.Reason + ":" + string(avail.Fallback)
	call.AppendDecision(d)
	r.record(call, d, t)

	res := Result{
		Call:       call,
		Department: match.Department,
		Target:     avail.FallbackTarget,
		CallbackAt: avail.CallbackAt,
	}
	switch avail.Fallback {
	case availability.FallbackQueue:
		res.Action = ActionQueue
		res.Message = openingFor(t, match.Department) + "All of our agents are currently busy. Please hold and you will be connected shortly."
		r.appendInteraction(ctx, call, match.Department.Name, "queued")
	case availability.FallbackCallback:
		res.Action = ActionCallback
		res.Message = openingFor(t, match.Department) + "All of our agents are currently busy. We will call you back as soon as one becomes available."
		r.appendInteraction(ctx, call, match.Department.Name, "callback_offered")
	case availability.FallbackForward:
		res.Action = ActionForward
		res.Message = openingFor(t, match.Department) + "Please hold while we transfer your call."
		r.appendInteraction(ctx, call, match.Department.Name, "forwarded")
	case availability.FallbackAnnouncement:
		res.Action = ActionAnnouncement
		res.Message = openingFor(t, match.Department) + afterHoursMessage(t, avail)
		r.appendInteraction(ctx, call, match.Department.Name, "after_hours")
	default:
		res.Action = ActionVoicemail
		res.Message = openingFor(t, match.Department) + "We are unable to take your call right now. Please leave a message after the tone."
		r.appendInteraction(ctx, call, match.Department.Name, "voicemail")
	}
	return res
}

// escalate runs the tenant escalation policy and converts its outcome into a
// caller-facing result. Exhaustion lands on the platform voicemail.
func (r *Router) escalate(ctx context.Context, t tenant.Tenant, call *CallContext, reason string, now time.Time, log *slog.Logger) (Result, error) {
	if !call.BumpEscalation() {
		log.Error("escalation cap reached", "level", call.EscalationLevel)
		return r.platformVoicemail(ctx, t, call, reason, now), nil
	}

	out := r.escalator.Escalate(ctx, escalation.Request{
		CallID:         call.CallID,
		TenantID:       t.ID,
		Reason:         reason,
		Policy:         t.Escalation,
		Intent:         call.Analysis.Intent,
		Sentiment:      call.Analysis.Sentiment,
		Keywords:       call.Analysis.Keywords,
		TenantTimezone: t.Timezone,
	})

	d := newDecision(now)
	d.Reason = "escalation:" + reason
	d.Confidence = call.Analysis.Confidence
	d.Snapshot = r.snapshot(call, false, out.Completed)
	call.AppendDecision(d)
	r.record(call, d, t)

	if !out.Completed {
		log.Warn("tenant escalation exhausted", "reason", reason)
		return r.platformVoicemail(ctx, t, call, reason, now), nil
	}

	res := Result{
		Call:      call,
		Target:    out.Target,
		Release:   out.Release,
		Escalated: true,
	}
	switch {
	case out.Voicemail:
		res.Action = ActionVoicemail
		res.Message = greeting(t) + "Our team is currently unavailable. Please leave a message after the tone."
		r.appendInteraction(ctx, call, "", "escalation_voicemail")
	default:
		res.Action = ActionForward
		res.Message = greeting(t) + "Please hold while we connect you."
		r.appendInteraction(ctx, call, "", "escalated:"+string(out.Strategy))
	}
	return res, nil
}

func (r *Router) platformVoicemail(ctx context.Context, t tenant.Tenant, call *CallContext, reason string, now time.Time) Result {
	d := newDecision(now)
	d.Reason = "platform_voicemail:" + reason
	d.Snapshot = r.snapshot(call, false, false)
	call.AppendDecision(d)
	r.record(call, d, t)
	r.appendInteraction(ctx, call, "", "platform_voicemail")

	return Result{
		Call:      call,
		Action:    ActionVoicemail,
		Target:    r.cfg.PlatformVoicemail,
		Message:   greeting(t) + "We are unable to connect you at this time. Please leave a message and we will get back to you.",
		Escalated: true,
	}
}

func (r *Router) decision(call *CallContext, match Match, avail availability.Resolution, now time.Time) Decision {
	d := newDecision(now)
	d.DepartmentID = match.Department.ID
	d.DepartmentName = match.Department.Name
	if match.Rule != nil {
		d.RuleID = match.Rule.ID
	}
	d.Confidence = match.Confidence
	d.Snapshot = r.snapshot(call, avail.BusinessHours, avail.Available)
	return d
}

func (r *Router) snapshot(call *CallContext, businessHours, agentAvailable bool) Snapshot {
	return Snapshot{
		Tier:            string(call.Customer.Tier),
		Intent:          call.Analysis.Intent,
		Sentiment:       call.Analysis.Sentiment,
		BusinessHours:   businessHours,
		AgentAvailable:  agentAvailable,
		EscalationLevel: call.EscalationLevel,
		ContextDegraded: call.Customer.Degraded,
	}
}

func (r *Router) record(call *CallContext, d Decision, t tenant.Tenant) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(DecisionEntry(t.ID, call, d))
}

func (r *Router) appendInteraction(ctx context.Context, call *CallContext, department, outcome string) {
	r.customers.AppendInteraction(ctx, call.Customer, customer.Interaction{
		CallID:     call.CallID,
		Department: department,
		Outcome:    outcome,
		Summary:    call.Analysis.Intent,
		At:         call.StartedAt,
	})
}

// DecisionEntry converts a routing decision into its immutable ledger form.
// The full snapshot rides along as metadata for audit.
func DecisionEntry(tenantID string, call *CallContext, d Decision) ledger.Entry {
	meta, _ := json.Marshal(d.Snapshot)
	return ledger.Entry{
		ID:             d.ID,
		TenantID:       tenantID,
		CallID:         call.CallID,
		Kind:           ledger.KindDecision,
		DepartmentID:   d.DepartmentID,
		DepartmentName: d.DepartmentName,
		RuleID:         d.RuleID,
		Reason:         d.Reason,
		Confidence:     d.Confidence,
		Sentiment:      d.Snapshot.Sentiment,
		Intent:         d.Snapshot.Intent,
		Metadata:       string(meta),
		CreatedAt:      d.At,
	}
}

// openingFor prefers the department greeting over the tenant one.
func openingFor(t tenant.Tenant, d tenant.Department) string {
	if d.Greeting != "" {
		return d.Greeting + " "
	}
	return greeting(t)
}

func greeting(t tenant.Tenant) string {
	if t.Greeting == "" {
		return ""
	}
	return t.Greeting + " "
}

func afterHoursMessage(t tenant.Tenant, avail availability.Resolution) string {
	if avail.Announcement != "" {
		return avail.Announcement
	}
	if avail.Holiday != nil && avail.Holiday.Name != "" {
		return fmt.Sprintf("We are closed today for %s. Please call back during business hours.", avail.Holiday.Name)
	}
	if !avail.CallbackAt.IsZero() {
		return fmt.Sprintf("We are currently closed. We reopen %s.", avail.CallbackAt.Format("Monday at 3:04 PM"))
	}
	return "We are currently closed. Please call back during business hours."
}
