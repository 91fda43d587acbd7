package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"callrouter-platform/internal/tenant"
)

func testAgents() []tenant.Agent {
	return []tenant.Agent{
		{ID: "a1", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 2, Skills: []string{"billing"}},
		{ID: "a2", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 2, Skills: []string{"billing", "technical"}},
		{ID: "a3", Availability: tenant.AgentBusy, MaxConcurrentCalls: 2, Skills: []string{"billing"}},
		{ID: "a4", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 0, Skills: []string{"billing"}},
	}
}

func TestSelectAgent_LeastLoadedWins(t *testing.T) {
	counters := NewMemoryCounters()
	r := NewResolver(counters, nil)
	ctx := context.Background()

	// a1 already carries one call.
	if ok, _ := counters.Acquire(ctx, AgentKey("t1", "a1"), 2); !ok {
		t.Fatal("seed acquire failed")
	}

	agent, release, ok, err := r.SelectAgent(ctx, "t1", testAgents(), nil)
	if err != nil || !ok {
		t.Fatalf("expected selection, ok=%v err=%v", ok, err)
	}
	if agent.ID != "a2" {
		t.Fatalf("expected least-loaded a2, got %q", agent.ID)
	}
	release(ctx)

	if load, _ := counters.Load(ctx, AgentKey("t1", "a2")); load != 0 {
		t.Fatalf("expected slot released, load=%d", load)
	}
}

func TestSelectAgent_TieBreaksByAgentID(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	agent, release, ok, err := r.SelectAgent(context.Background(), "t1", testAgents(), nil)
	if err != nil || !ok {
		t.Fatalf("expected selection, ok=%v err=%v", ok, err)
	}
	if agent.ID != "a1" {
		t.Fatalf("expected a1 on equal load, got %q", agent.ID)
	}
	release(context.Background())
}

func TestSelectAgent_SkillFilter(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	agent, release, ok, err := r.SelectAgent(context.Background(), "t1", testAgents(), []string{"technical"})
	if err != nil || !ok {
		t.Fatalf("expected selection, ok=%v err=%v", ok, err)
	}
	if agent.ID != "a2" {
		t.Fatalf("only a2 has the technical skill, got %q", agent.ID)
	}
	release(context.Background())
}

func TestSelectAgent_ExcludesBusyAndZeroCapacity(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	agents := []tenant.Agent{
		{ID: "busy", Availability: tenant.AgentBusy, MaxConcurrentCalls: 2},
		{ID: "none", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 0},
	}
	_, _, ok, err := r.SelectAgent(context.Background(), "t1", agents, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatal("no agent should be eligible")
	}
}

// Concurrent selections must never exceed the combined slot capacity.
func TestSelectAgent_NoOverbookingUnderContention(t *testing.T) {
	counters := NewMemoryCounters()
	r := NewResolver(counters, nil)
	agents := []tenant.Agent{
		{ID: "a1", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 2},
		{ID: "a2", Availability: tenant.AgentAvailable, MaxConcurrentCalls: 1},
	}
	const capacity = 3
	const callers = 20

	var mu sync.Mutex
	granted := 0
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, ok, err := r.SelectAgent(context.Background(), "t1", agents, nil)
			if err != nil {
				t.Errorf("unexpected err: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
				_ = release // hold the slot for the duration of the test
			}
		}()
	}
	wg.Wait()

	if granted != capacity {
		t.Fatalf("expected exactly %d grants, got %d", capacity, granted)
	}
	total := 0
	for _, a := range agents {
		load, _ := counters.Load(context.Background(), AgentKey("t1", a.ID))
		if load > a.MaxConcurrentCalls {
			t.Fatalf("agent %s overbooked: %d > %d", a.ID, load, a.MaxConcurrentCalls)
		}
		total += load
	}
	if total != capacity {
		t.Fatalf("expected %d held slots, got %d", capacity, total)
	}
}

func TestResolve_DepartmentFallbackChain(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	tn := tenant.Tenant{ID: "t1", Timezone: "UTC", Hours: alwaysOpen()}

	d := tenant.Department{
		ID:       "d1",
		Active:   true,
		Fallback: tenant.FallbackPolicy{QueueEnabled: true, CallbackEnabled: true},
	}
	res, err := r.Resolve(context.Background(), tn, d, nil, monday(12, 0))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Available {
		t.Fatal("no agents configured, must not be available")
	}
	if res.Fallback != FallbackQueue {
		t.Fatalf("queue outranks callback, got %q", res.Fallback)
	}

	d.Fallback = tenant.FallbackPolicy{CallbackEnabled: true}
	res, _ = r.Resolve(context.Background(), tn, d, nil, monday(12, 0))
	if res.Fallback != FallbackCallback {
		t.Fatalf("expected callback, got %q", res.Fallback)
	}
	if res.CallbackAt.IsZero() {
		t.Fatal("callback needs a suggested time")
	}

	d.Fallback = tenant.FallbackPolicy{}
	res, _ = r.Resolve(context.Background(), tn, d, nil, monday(12, 0))
	if res.Fallback != FallbackVoicemail {
		t.Fatalf("expected voicemail floor, got %q", res.Fallback)
	}
}

func TestResolve_AfterHoursPolicies(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	sundayNight := time.Date(2026, 1, 4, 23, 0, 0, 0, time.UTC)

	hours := weekdaySchedule()
	hours.AfterHours = tenant.AfterHoursPolicy{Action: tenant.AfterHoursForward, Target: "+15550001111"}
	tn := tenant.Tenant{ID: "t1", Timezone: "UTC", Hours: hours}
	d := tenant.Department{ID: "d1", Active: true}

	res, err := r.Resolve(context.Background(), tn, d, nil, sundayNight)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.BusinessHours {
		t.Fatal("sunday night is outside hours")
	}
	if res.Fallback != FallbackForward || res.FallbackTarget != "+15550001111" {
		t.Fatalf("expected after-hours forward, got %+v", res)
	}

	hours.AfterHours = tenant.AfterHoursPolicy{Action: tenant.AfterHoursAnnouncement}
	tn.Hours = hours
	res, _ = r.Resolve(context.Background(), tn, d, nil, sundayNight)
	if res.Fallback != FallbackAnnouncement {
		t.Fatalf("expected announcement, got %q", res.Fallback)
	}
	if res.CallbackAt.IsZero() {
		t.Fatal("announcement carries the next opening time")
	}
}

func TestResolve_HolidayForwardBeatsPolicy(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	hours := weekdaySchedule()
	hours.Holidays = []tenant.Holiday{{Date: "2026-01-05", Enabled: true, ForwardTo: "+15559998888"}}
	hours.AfterHours = tenant.AfterHoursPolicy{Action: tenant.AfterHoursVoicemail}
	tn := tenant.Tenant{ID: "t1", Timezone: "UTC", Hours: hours}

	res, err := r.Resolve(context.Background(), tn, tenant.Department{ID: "d1", Active: true}, nil, monday(12, 0))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Fallback != FallbackForward || res.FallbackTarget != "+15559998888" {
		t.Fatalf("holiday forward must win, got %+v", res)
	}
}

func TestResolve_ClosedAnnouncementPrefersHolidayGreeting(t *testing.T) {
	r := NewResolver(NewMemoryCounters(), nil)
	hours := weekdaySchedule()
	hours.AfterHours = tenant.AfterHoursPolicy{
		Action:   tenant.AfterHoursAnnouncement,
		Greeting: "We are closed for the evening.",
	}
	hours.Holidays = []tenant.Holiday{
		{Date: "2026-01-05", Enabled: true, Greeting: "Closed for Founders Day."},
	}
	tn := tenant.Tenant{ID: "t1", Timezone: "UTC", Hours: hours}
	d := tenant.Department{ID: "d1", Active: true}

	res, err := r.Resolve(context.Background(), tn, d, nil, monday(12, 0))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Announcement != "Closed for Founders Day." {
		t.Fatalf("holiday greeting must win, got %q", res.Announcement)
	}

	hours.Holidays = nil
	tn.Hours = hours
	res, _ = r.Resolve(context.Background(), tn, d, nil, time.Date(2026, 1, 4, 23, 0, 0, 0, time.UTC))
	if res.Announcement != "We are closed for the evening." {
		t.Fatalf("expected after-hours greeting, got %q", res.Announcement)
	}
}

func TestDepartmentLoad(t *testing.T) {
	counters := NewMemoryCounters()
	r := NewResolver(counters, nil)
	ctx := context.Background()

	d := tenant.Department{
		ID: "d1",
		Agents: []tenant.Agent{
			{ID: "a1", MaxConcurrentCalls: 2},
			{ID: "a2", MaxConcurrentCalls: 2},
		},
	}
	if got := r.DepartmentLoad(ctx, "t1", d); got != 0 {
		t.Fatalf("expected load 0, got %v", got)
	}

	counters.Acquire(ctx, AgentKey("t1", "a1"), 2)
	counters.Acquire(ctx, AgentKey("t1", "a1"), 2)
	if got := r.DepartmentLoad(ctx, "t1", d); got != 0.5 {
		t.Fatalf("expected load 0.5, got %v", got)
	}

	empty := tenant.Department{ID: "d2"}
	if got := r.DepartmentLoad(ctx, "t1", empty); got != 1 {
		t.Fatalf("zero capacity reads as fully loaded, got %v", got)
	}
}

func alwaysOpen() tenant.BusinessHours {
	var bh tenant.BusinessHours
	for i := 0; i < 7; i++ {
		bh.Weekdays[i] = tenant.DaySchedule{Enabled: true, Start: "00:00", End: "23:59"}
	}
	bh.Timezone = "UTC"
	return bh
}
