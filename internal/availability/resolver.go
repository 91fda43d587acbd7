package availability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"callrouter-platform/internal/tenant"
)

// Fallback is the action taken when a department is unreachable.
type Fallback string

const (
	FallbackQueue        Fallback = "queue"
	FallbackCallback     Fallback = "callback"
	FallbackVoicemail    Fallback = "voicemail"
	FallbackForward      Fallback = "forward"
	FallbackAnnouncement Fallback = "announcement"
	// FallbackNone means no usable fallback exists; the caller must escalate.
	FallbackNone Fallback = ""
)

// Resolution is the outcome of an availability check.
type Resolution struct {
	Available bool

	// Agent and Release are set only when Available. Release returns the
	// agent's call slot and must run on every exit path, including failures.
	Agent   tenant.Agent
	Release func(context.Context)

	BusinessHours bool
	Holiday       *tenant.Holiday

	Fallback       Fallback
	FallbackTarget string

	// Announcement is the tenant-configured closed message, when one is set.
	// A holiday greeting beats the after-hours one.
	Announcement string

	// CallbackAt is the suggested callback time for FallbackCallback.
	CallbackAt time.Time

	Reason string
}

// Resolver decides whether a department can take a call right now and picks
// the agent. Selection and slot acquisition are one atomic step per agent,
// retried down the ranked list on a lost race.
type Resolver struct {
	counters Counters
	log      *slog.Logger
}

func NewResolver(counters Counters, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{counters: counters, log: log}
}

// Resolve checks business hours, then selects the least-loaded eligible agent.
// requiredSkills may be empty; when set, only agents carrying every required
// skill are eligible.
func (r *Resolver) Resolve(ctx context.Context, t tenant.Tenant, d tenant.Department, requiredSkills []string, now time.Time) (Resolution, error) {
	hours := d.Hours
	if hours == nil {
		hours = &t.Hours
	}
	hr := EvaluateHours(*hours, t.Timezone, now)
	if !hr.Open {
		return r.afterHours(*hours, t, hr, now), nil
	}

	agent, release, ok, err := r.SelectAgent(ctx, t.ID, d.Agents, requiredSkills)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		res := Resolution{BusinessHours: true, Reason: "no_eligible_agent"}
		res.Fallback, res.FallbackTarget = departmentFallback(d)
		if res.Fallback == FallbackCallback {
			res.CallbackAt = now.Add(15 * time.Minute)
		}
		return res, nil
	}

	return Resolution{
		Available:     true,
		Agent:         agent,
		Release:       release,
		BusinessHours: true,
		Reason:        "agent_selected",
	}, nil
}

// SelectAgent filters to available agents with free capacity and the required
// skills, ranks by current load ascending (ties by agent ID for determinism),
// and atomically acquires a slot walking down the ranking. A failed acquire
// means another call won the race; the next candidate is tried.
func (r *Resolver) SelectAgent(ctx context.Context, tenantID string, agents []tenant.Agent, requiredSkills []string) (tenant.Agent, func(context.Context), bool, error) {
	type candidate struct {
		agent tenant.Agent
		load  int
	}

	var candidates []candidate
	for _, a := range agents {
		if a.Availability != tenant.AgentAvailable {
			continue
		}
		if a.MaxConcurrentCalls <= 0 {
			continue
		}
		if !hasSkills(a.Skills, requiredSkills) {
			continue
		}
		load, err := r.counters.Load(ctx, AgentKey(tenantID, a.ID))
		if err != nil {
			return tenant.Agent{}, nil, false, err
		}
		if load >= a.MaxConcurrentCalls {
			continue
		}
		candidates = append(candidates, candidate{agent: a, load: load})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].agent.ID < candidates[j].agent.ID
	})

	for _, c := range candidates {
		key := AgentKey(tenantID, c.agent.ID)
		ok, err := r.counters.Acquire(ctx, key, c.agent.MaxConcurrentCalls)
		if err != nil {
			return tenant.Agent{}, nil, false, err
		}
		if !ok {
			// Lost the race for this agent's last slot; try the next one.
			r.log.Debug("agent slot race lost", "tenant_id", tenantID, "agent_id", c.agent.ID)
			continue
		}
		release := func(rctx context.Context) {
			if err := r.counters.Release(rctx, key); err != nil {
				r.log.Warn("agent slot release failed", "tenant_id", tenantID, "agent_id", c.agent.ID, "err", err)
			}
		}
		return c.agent, release, true, nil
	}
	return tenant.Agent{}, nil, false, nil
}

// DepartmentLoad implements routing.LoadProvider: held slots over total
// capacity across the department's agents, in [0, 1].
func (r *Resolver) DepartmentLoad(ctx context.Context, tenantID string, d tenant.Department) float64 {
	var held, capacity int
	for _, a := range d.Agents {
		if a.MaxConcurrentCalls <= 0 {
			continue
		}
		capacity += a.MaxConcurrentCalls
		load, err := r.counters.Load(ctx, AgentKey(tenantID, a.ID))
		if err != nil {
			r.log.Debug("department load read failed", "tenant_id", tenantID, "agent_id", a.ID, "err", err)
			continue
		}
		held += load
	}
	if capacity == 0 {
		return 1
	}
	return float64(held) / float64(capacity)
}

func (r *Resolver) afterHours(bh tenant.BusinessHours, t tenant.Tenant, hr HoursResult, now time.Time) Resolution {
	res := Resolution{BusinessHours: false, Holiday: hr.Holiday}
	if hr.OnBreak {
		res.Reason = "break_window"
	} else if hr.Holiday != nil {
		res.Reason = "holiday"
	} else {
		res.Reason = "after_hours"
	}

	if hr.Holiday != nil && hr.Holiday.Greeting != "" {
		res.Announcement = hr.Holiday.Greeting
	} else if bh.AfterHours.Greeting != "" {
		res.Announcement = bh.AfterHours.Greeting
	}

	// A holiday with its own forward target beats the after-hours policy.
	if hr.Holiday != nil && hr.Holiday.ForwardTo != "" {
		res.Fallback = FallbackForward
		res.FallbackTarget = hr.Holiday.ForwardTo
		return res
	}

	switch bh.AfterHours.Action {
	case tenant.AfterHoursForward:
		res.Fallback = FallbackForward
		res.FallbackTarget = bh.AfterHours.Target
	case tenant.AfterHoursAnnouncement:
		res.Fallback = FallbackAnnouncement
		res.CallbackAt = NextBusinessOpen(bh, t.Timezone, now)
	default:
		res.Fallback = FallbackVoicemail
	}
	return res
}

func departmentFallback(d tenant.Department) (Fallback, string) {
	switch {
	case d.Fallback.QueueEnabled:
		return FallbackQueue, d.ID
	case d.Fallback.CallbackEnabled:
		return FallbackCallback, ""
	default:
		return FallbackVoicemail, d.PhoneNumber
	}
}

func hasSkills(have, required []string) bool {
	for _, req := range required {
		found := false
		for _, h := range have {
			if h == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
