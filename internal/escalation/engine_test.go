package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callrouter-platform/internal/availability"
	"callrouter-platform/internal/telephony"
	"callrouter-platform/internal/tenant"
)

// scriptedTransport answers according to a per-target script and records
// every dial and cancel.
type scriptedTransport struct {
	mu      sync.Mutex
	answers map[string]bool // target -> answered
	dials   []string
	cancels []string
	dialErr error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{answers: map[string]bool{}}
}

func (t *scriptedTransport) Name() string                                           { return "scripted" }
func (t *scriptedTransport) HealthCheck(ctx context.Context) error                  { return nil }
func (t *scriptedTransport) PlaceOrAnswer(ctx context.Context, callID string) error { return nil }
func (t *scriptedTransport) Transfer(ctx context.Context, callID, target string) error {
	return nil
}

func (t *scriptedTransport) DialLeg(ctx context.Context, callID, target string) (telephony.LegResult, error) {
	t.mu.Lock()
	t.dials = append(t.dials, target)
	answered := t.answers[target]
	err := t.dialErr
	t.mu.Unlock()
	if err != nil {
		return telephony.LegResult{}, err
	}
	return telephony.LegResult{LegID: callID + ":" + target, Answered: answered}, nil
}

func (t *scriptedTransport) CancelLeg(ctx context.Context, legID string) error {
	t.mu.Lock()
	t.cancels = append(t.cancels, legID)
	t.mu.Unlock()
	return nil
}

func (t *scriptedTransport) dialCount(target string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, d := range t.dials {
		if d == target {
			n++
		}
	}
	return n
}

type captureSink struct {
	mu     sync.Mutex
	events []Escalation
}

func (s *captureSink) EscalationTransition(ctx context.Context, e Escalation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func baseRequest() Request {
	return Request{
		CallID:         "call-1",
		TenantID:       "t1",
		Reason:         "no_rule_match",
		TenantTimezone: "UTC",
	}
}

func TestEscalate_OnCallAnswers(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15550001111"] = true
	sink := &captureSink{}
	e := NewEngine(tr, nil, sink, time.Second, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15550001111"},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || out.Target != "+15550001111" {
		t.Fatalf("expected completion via on_call, got %+v", out)
	}
	if out.Strategy != tenant.StrategyOnCall {
		t.Fatalf("unexpected strategy %q", out.Strategy)
	}
	if len(out.Trail) != 1 || out.Trail[0].Status != StatusCompleted {
		t.Fatalf("expected completed trail, got %+v", out.Trail)
	}
}

// A failing strategy retries up to its attempt cap and never beyond.
func TestEscalate_AttemptsAreBounded(t *testing.T) {
	tr := newScriptedTransport() // nobody answers
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15550001111", MaxAttempts: 2},
	}}

	out := e.Escalate(context.Background(), req)
	if out.Completed {
		t.Fatal("unanswered strategy must not complete")
	}
	if got := tr.dialCount("+15550001111"); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
	if len(out.Trail) != 1 {
		t.Fatalf("expected one escalation record, got %d", len(out.Trail))
	}
	if esc := out.Trail[0]; esc.Attempts != 2 || esc.Status != StatusFailed {
		t.Fatalf("expected 2 failed attempts, got %+v", esc)
	}
}

func TestEscalate_DefaultAttemptCap(t *testing.T) {
	tr := newScriptedTransport()
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15550001111"},
	}}

	e.Escalate(context.Background(), req)
	if got := tr.dialCount("+15550001111"); got != defaultMaxAttempts {
		t.Fatalf("expected %d attempts by default, got %d", defaultMaxAttempts, got)
	}
}

// Strategies run in the configured order; a later one can still complete.
func TestEscalate_FallsThroughStrategies(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15552220000"] = true
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15551110000", MaxAttempts: 1},
		{Type: tenant.StrategyRingGroup, RingGroup: []string{"+15552220000"}, RingMode: tenant.RingSequential, MaxAttempts: 1},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || out.Strategy != tenant.StrategyRingGroup {
		t.Fatalf("expected ring_group completion, got %+v", out)
	}
	if len(out.Trail) != 2 {
		t.Fatalf("expected a record per strategy, got %d", len(out.Trail))
	}
	if out.Trail[0].Status != StatusFailed || out.Trail[1].Status != StatusCompleted {
		t.Fatalf("unexpected trail %+v", out.Trail)
	}
}

// A strategy with no possible target skips its remaining attempts.
func TestEscalate_StructurallyEmptyStrategyAdvances(t *testing.T) {
	tr := newScriptedTransport()
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, MaxAttempts: 3}, // no primary number
	}}

	out := e.Escalate(context.Background(), req)
	if out.Completed {
		t.Fatal("must not complete")
	}
	if len(tr.dials) != 0 {
		t.Fatalf("expected zero dials, got %v", tr.dials)
	}
	if out.Trail[0].Attempts != 1 {
		t.Fatalf("expected a single aborted attempt, got %d", out.Trail[0].Attempts)
	}
}

func TestEscalate_SequentialRingStopsAtFirstAnswer(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15552220000"] = true
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyRingGroup, RingMode: tenant.RingSequential,
			RingGroup: []string{"+15551110000", "+15552220000", "+15553330000"}, MaxAttempts: 1},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || out.Target != "+15552220000" {
		t.Fatalf("expected second number to win, got %+v", out)
	}
	if tr.dialCount("+15553330000") != 0 {
		t.Fatal("sequential ring must stop after an answer")
	}
}

// Business-hours strategy closed schedule resolves into voicemail, which is
// terminal and counts as completed.
func TestEscalate_BusinessHoursVoicemail(t *testing.T) {
	tr := newScriptedTransport()
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)
	e.clock = func() time.Time { return time.Date(2026, 1, 4, 3, 0, 0, 0, time.UTC) } // Sunday 03:00

	var closed tenant.BusinessHours
	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyBusinessHours, Hours: &closed, ForwardNumber: "+15551110000"},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || !out.Voicemail {
		t.Fatalf("expected voicemail completion, got %+v", out)
	}
	if len(tr.dials) != 0 {
		t.Fatalf("closed schedule must not dial, got %v", tr.dials)
	}
}

func TestEscalate_BusinessHoursForwardsWhenOpen(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15551110000"] = true
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)
	e.clock = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) } // Monday noon

	var open tenant.BusinessHours
	for i := 0; i < 7; i++ {
		open.Weekdays[i] = tenant.DaySchedule{Enabled: true, Start: "00:00", End: "23:59"}
	}
	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyBusinessHours, Hours: &open, ForwardNumber: "+15551110000"},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || out.Voicemail || out.Target != "+15551110000" {
		t.Fatalf("expected forward completion, got %+v", out)
	}
}

func TestEscalate_AgentPoolHoldsAndReleasesSlot(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15554440000"] = true
	counters := availability.NewMemoryCounters()
	agents := availability.NewResolver(counters, nil)
	e := NewEngine(tr, agents, nil, 10*time.Millisecond, nil)

	pool := []tenant.Agent{
		{ID: "a1", PhoneNumber: "+15554440000", Availability: tenant.AgentAvailable,
			MaxConcurrentCalls: 1, Skills: []string{"billing", "account_management"}},
	}
	req := baseRequest()
	req.Intent = "billing_issue"
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyAgentPool, AgentPool: pool},
	}}

	out := e.Escalate(context.Background(), req)
	if !out.Completed || out.Target != "+15554440000" {
		t.Fatalf("expected agent pool completion, got %+v", out)
	}
	if out.Release == nil {
		t.Fatal("agent pool win must return the slot release")
	}
	if load, _ := counters.Load(context.Background(), availability.AgentKey("t1", "a1")); load != 1 {
		t.Fatalf("slot should be held, load=%d", load)
	}
	out.Release(context.Background())
	if load, _ := counters.Load(context.Background(), availability.AgentKey("t1", "a1")); load != 0 {
		t.Fatalf("slot should be released, load=%d", load)
	}
}

// A dial failure releases the held slot before retrying.
func TestEscalate_AgentPoolReleasesOnDialFailure(t *testing.T) {
	tr := newScriptedTransport() // agent never answers
	counters := availability.NewMemoryCounters()
	agents := availability.NewResolver(counters, nil)
	e := NewEngine(tr, agents, nil, 10*time.Millisecond, nil)

	pool := []tenant.Agent{
		{ID: "a1", PhoneNumber: "+15554440000", Availability: tenant.AgentAvailable,
			MaxConcurrentCalls: 1, Skills: []string{"general_support"}},
	}
	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyAgentPool, AgentPool: pool, MaxAttempts: 2},
	}}

	out := e.Escalate(context.Background(), req)
	if out.Completed {
		t.Fatal("must not complete")
	}
	if load, _ := counters.Load(context.Background(), availability.AgentKey("t1", "a1")); load != 0 {
		t.Fatalf("failed dials must not leak slots, load=%d", load)
	}
}

func TestEscalate_SinkSeesEveryTransition(t *testing.T) {
	tr := newScriptedTransport()
	tr.answers["+15550001111"] = true
	sink := &captureSink{}
	e := NewEngine(tr, nil, sink, time.Second, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15550001111"},
	}}
	e.Escalate(context.Background(), req)

	// pending -> in_progress -> completed
	want := []Status{StatusPending, StatusInProgress, StatusCompleted}
	if len(sink.events) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(sink.events))
	}
	for i, s := range want {
		if sink.events[i].Status != s {
			t.Fatalf("transition %d: expected %q, got %q", i, s, sink.events[i].Status)
		}
	}
}

func TestEscalate_TransportErrorCountsAsFailedAttempt(t *testing.T) {
	tr := newScriptedTransport()
	tr.dialErr = errors.New("provider unreachable")
	e := NewEngine(tr, nil, nil, 10*time.Millisecond, nil)

	req := baseRequest()
	req.Policy = tenant.EscalationPolicy{Strategies: []tenant.StrategyConfig{
		{Type: tenant.StrategyOnCall, PrimaryNumber: "+15550001111", MaxAttempts: 1},
	}}

	out := e.Escalate(context.Background(), req)
	if out.Completed {
		t.Fatal("transport errors must not complete an escalation")
	}
}

func TestSkillsForReason(t *testing.T) {
	got := SkillsForReason("billing_issue", -0.6)
	want := map[string]bool{"billing": true, "account_management": true, "conflict_resolution": true}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected skill %q in %v", s, got)
		}
	}

	neutral := SkillsForReason("something_else", 0)
	if len(neutral) != 1 || neutral[0] != "general_support" {
		t.Fatalf("expected general_support fallback, got %v", neutral)
	}
}
