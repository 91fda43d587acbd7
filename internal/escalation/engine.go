package escalation

import (
	"context"
	"log/slog"
	"time"

	"callrouter-platform/internal/availability"
	"callrouter-platform/internal/telephony"
	"callrouter-platform/internal/tenant"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

// AgentSelector picks and atomically holds an agent slot. The availability
// resolver satisfies this; the engine stays free of counter mechanics.
type AgentSelector interface {
	SelectAgent(ctx context.Context, tenantID string, agents []tenant.Agent, requiredSkills []string) (tenant.Agent, func(context.Context), bool, error)
}

// EventSink receives every escalation state transition. Implementations must
// be best-effort and fast; the engine never blocks on the sink.
type EventSink interface {
	EscalationTransition(ctx context.Context, e Escalation)
}

// Engine runs the bounded-retry human-escalation protocol.
//
// Strategies are attempted in the tenant-configured order; each strategy
// bounds its own retries. Attempts never exceed MaxAttempts per strategy and
// the run always reaches a terminal outcome; there is no retry loop without
// an exit.
type Engine struct {
	transport telephony.Transport
	agents    AgentSelector
	sink      EventSink

	// attemptTimeout bounds each dial attempt (and each sequential ring leg).
	attemptTimeout time.Duration

	log   *slog.Logger
	clock func() time.Time
}

func NewEngine(transport telephony.Transport, agents AgentSelector, sink EventSink, attemptTimeout time.Duration, log *slog.Logger) *Engine {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		transport:      transport,
		agents:         agents,
		sink:           sink,
		attemptTimeout: attemptTimeout,
		log:            log,
		clock:          time.Now,
	}
}

// Escalate runs every configured strategy until one reaches a human or all
// are exhausted. An exhausted run returns Completed == false; the caller owes
// the caller-facing fallback (platform voicemail), never a dropped call.
func (e *Engine) Escalate(ctx context.Context, req Request) Outcome {
	out := Outcome{}
	log := e.log.With("call_id", req.CallID, "tenant_id", req.TenantID, "reason", req.Reason)

	for _, s := range req.Policy.Strategies {
		esc := e.newEscalation(req, s)
		e.transition(ctx, &esc, StatusPending)

		res, done := e.runStrategy(ctx, req, s, &esc, log)
		out.Trail = append(out.Trail, esc)
		if done {
			out.Completed = true
			out.Strategy = s.Type
			out.Target = res.target
			out.Voicemail = res.voicemail
			out.Release = res.release
			return out
		}
		log.Info("escalation strategy exhausted", "strategy", string(s.Type), "attempts", esc.Attempts)
	}

	log.Error("escalation exhausted, routing to platform voicemail")
	return out
}

type strategyResult struct {
	target    string
	voicemail bool
	release   func(context.Context)
}

func (e *Engine) runStrategy(ctx context.Context, req Request, s tenant.StrategyConfig, esc *Escalation, log *slog.Logger) (strategyResult, bool) {
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	esc.MaxAttempts = maxAttempts

	for esc.Attempts < maxAttempts {
		if ctx.Err() != nil {
			e.transition(ctx, esc, StatusFailed)
			return strategyResult{}, false
		}

		esc.Attempts++
		e.transition(ctx, esc, StatusInProgress)

		res, ok, advance := e.attempt(ctx, req, s, esc)
		if ok {
			esc.TargetNumber = res.target
			e.transition(ctx, esc, StatusCompleted)
			return res, true
		}
		e.transition(ctx, esc, StatusFailed)
		if advance {
			// The strategy cannot produce a target at all (e.g. empty agent
			// pool); retrying would not change that.
			return strategyResult{}, false
		}
		if esc.Attempts < maxAttempts {
			// Failed attempts re-enter pending for the next try.
			e.transition(ctx, esc, StatusPending)
		}
	}
	return strategyResult{}, false
}

// attempt runs one dial attempt. advance=true means the strategy is
// structurally unable to succeed and remaining attempts should be skipped.
func (e *Engine) attempt(ctx context.Context, req Request, s tenant.StrategyConfig, esc *Escalation) (res strategyResult, ok, advance bool) {
	switch s.Type {
	case tenant.StrategyOnCall:
		if s.PrimaryNumber == "" {
			return strategyResult{}, false, true
		}
		if e.dialOne(ctx, req.CallID, s.PrimaryNumber) {
			return strategyResult{target: s.PrimaryNumber}, true, false
		}
		return strategyResult{}, false, false

	case tenant.StrategyRingGroup:
		numbers := s.RingGroup
		if len(numbers) == 0 && s.PrimaryNumber != "" {
			numbers = []string{s.PrimaryNumber}
		}
		if len(numbers) == 0 {
			return strategyResult{}, false, true
		}
		var target string
		var answered bool
		if s.RingMode == tenant.RingSequential {
			target, answered = e.ringSequential(ctx, req.CallID, numbers)
		} else {
			target, answered = e.ringSimultaneous(ctx, req.CallID, numbers)
		}
		if answered {
			return strategyResult{target: target}, true, false
		}
		return strategyResult{}, false, false

	case tenant.StrategyBusinessHours:
		if s.Hours == nil {
			return strategyResult{}, false, true
		}
		hr := availability.EvaluateHours(*s.Hours, req.TenantTimezone, e.clock())
		if hr.Open && s.ForwardNumber != "" {
			if e.dialOne(ctx, req.CallID, s.ForwardNumber) {
				return strategyResult{target: s.ForwardNumber}, true, false
			}
			return strategyResult{}, false, false
		}
		// Outside the escalation schedule: voicemail is this strategy's
		// terminal destination, which still counts as reaching a resolution.
		return strategyResult{target: "voicemail", voicemail: true}, true, false

	case tenant.StrategyAgentPool:
		if len(s.AgentPool) == 0 || e.agents == nil {
			return strategyResult{}, false, true
		}
		skills := SkillsForReason(req.Intent, req.Sentiment)
		agent, release, found, err := e.agents.SelectAgent(ctx, req.TenantID, s.AgentPool, skills)
		if err != nil {
			e.log.Warn("agent pool selection failed", "call_id", req.CallID, "err", err)
			return strategyResult{}, false, false
		}
		if !found {
			return strategyResult{}, false, true
		}
		if e.dialOne(ctx, req.CallID, agent.PhoneNumber) {
			return strategyResult{target: agent.PhoneNumber, release: release}, true, false
		}
		release(ctx)
		return strategyResult{}, false, false

	default:
		e.log.Warn("unknown escalation strategy", "strategy", string(s.Type))
		return strategyResult{}, false, true
	}
}

func (e *Engine) dialOne(ctx context.Context, callID, target string) bool {
	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	res, err := e.transport.DialLeg(actx, callID, target)
	if err != nil {
		e.log.Debug("dial attempt failed", "call_id", callID, "target", target, "err", err)
		return false
	}
	return res.Answered
}

// ringSimultaneous dials every number at once; the first answered leg wins
// and every other in-flight leg is cancelled immediately.
func (e *Engine) ringSimultaneous(ctx context.Context, callID string, numbers []string) (string, bool) {
	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	type legOutcome struct {
		target string
		res    telephony.LegResult
		err    error
	}
	results := make(chan legOutcome, len(numbers))
	for _, n := range numbers {
		go func(target string) {
			res, err := e.transport.DialLeg(actx, callID, target)
			results <- legOutcome{target: target, res: res, err: err}
		}(n)
	}

	winner := ""
	for i := 0; i < len(numbers); i++ {
		o := <-results
		if o.err == nil && o.res.Answered && winner == "" {
			winner = o.target
			// Signal every other leg the moment one answers.
			cancel()
			continue
		}
		if o.res.LegID != "" {
			// Losing or unanswered leg: tell the transport to tear it down.
			// Background context: the shared attempt context is already done.
			if err := e.transport.CancelLeg(context.Background(), o.res.LegID); err != nil {
				e.log.Debug("leg cancel failed", "call_id", callID, "leg_id", o.res.LegID, "err", err)
			}
		}
	}
	return winner, winner != ""
}

// ringSequential dials numbers one at a time with a per-leg timeout.
func (e *Engine) ringSequential(ctx context.Context, callID string, numbers []string) (string, bool) {
	for _, n := range numbers {
		if ctx.Err() != nil {
			return "", false
		}
		if e.dialOne(ctx, callID, n) {
			return n, true
		}
	}
	return "", false
}

func (e *Engine) newEscalation(req Request, s tenant.StrategyConfig) Escalation {
	now := e.clock().UTC()
	return Escalation{
		ID:        uuid.NewString(),
		CallID:    req.CallID,
		TenantID:  req.TenantID,
		Reason:    req.Reason,
		Strategy:  s.Type,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *Engine) transition(ctx context.Context, esc *Escalation, to Status) {
	esc.Status = to
	esc.UpdatedAt = e.clock().UTC()
	if e.sink != nil {
		e.sink.EscalationTransition(ctx, *esc)
	}
}

// SkillsForReason derives the agent skills an escalation needs from the
// analyzed intent, with conflict-resolution skills added for strongly
// negative callers.
func SkillsForReason(intent string, sentiment float64) []string {
	var skills []string
	switch intent {
	case "billing_issue":
		skills = append(skills, "billing", "account_management")
	case "technical_support":
		skills = append(skills, "technical_support", "troubleshooting")
	case "sales_inquiry":
		skills = append(skills, "sales", "product_knowledge")
	case "cancellation":
		skills = append(skills, "retention", "account_management")
	default:
		skills = append(skills, "general_support")
	}
	if sentiment <= -0.4 {
		skills = append(skills, "conflict_resolution")
	}
	return skills
}
