package routing

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"callrouter-platform/internal/analysis"
	"callrouter-platform/internal/tenant"
)

// LoadProvider reports a department's utilization in [0, 1] for
// department_load rule conditions. Implemented by the availability resolver.
type LoadProvider interface {
	DepartmentLoad(ctx context.Context, tenantID string, d tenant.Department) float64
}

// Evaluator matches analyzer output and call metadata against each
// department's ordered rule set.
//
// Determinism contract: departments are walked in descending priority (ties
// by department ID ascending), rules within a department in descending rule
// priority. The first matching rule across that strict nested order wins, so
// the same configuration and input always select the same rule.
type Evaluator struct {
	Load LoadProvider
	Log  *slog.Logger
}

func NewEvaluator(load LoadProvider, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{Load: load, Log: log}
}

// Match is the evaluator outcome when a rule (or the tenant default) fires.
type Match struct {
	Department tenant.Department
	// Rule is nil when the tenant default department was used.
	Rule *tenant.RoutingRule
	// Confidence carries the analyzer's confidence for audit.
	Confidence float64
	Reason     string
}

// SelectDepartment walks the tenant's departments and returns the first rule
// match, the tenant default department on a full miss, or ok=false when the
// call must escalate.
func (e *Evaluator) SelectDepartment(ctx context.Context, t tenant.Tenant, call *CallContext, res analysis.Result, now time.Time) (Match, bool) {
	depts := orderedDepartments(t.Departments)

	for _, d := range depts {
		if !d.Active {
			continue
		}
		rules := orderedRules(d.Rules)
		for i := range rules {
			r := &rules[i]
			if r.Disabled {
				continue
			}
			matched, ok := e.evaluateRule(ctx, t, d, *r, call, res, now)
			if !ok {
				// Malformed at evaluation time: skip, log, keep going.
				continue
			}
			if matched {
				return Match{
					Department: d,
					Rule:       r,
					Confidence: res.Confidence,
					Reason:     ruleReason(*r),
				}, true
			}
		}
	}

	if t.DefaultDepartmentID != "" {
		for _, d := range t.Departments {
			if d.ID == t.DefaultDepartmentID && d.Active {
				return Match{Department: d, Confidence: res.Confidence, Reason: "default_department"}, true
			}
		}
	}
	return Match{}, false
}

func orderedDepartments(in []tenant.Department) []tenant.Department {
	out := make([]tenant.Department, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func orderedRules(in []tenant.RoutingRule) []tenant.RoutingRule {
	out := make([]tenant.RoutingRule, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

func ruleReason(r tenant.RoutingRule) string {
	if r.Description != "" {
		return r.Description
	}
	if r.Name != "" {
		return r.Name
	}
	return "rule " + r.ID
}

// fieldValue is the extracted left-hand side of a rule condition.
type fieldValue struct {
	str     string
	num     float64
	set     []string
	numeric bool
}

func (e *Evaluator) evaluateRule(ctx context.Context, t tenant.Tenant, d tenant.Department, r tenant.RoutingRule, call *CallContext, res analysis.Result, now time.Time) (matched, ok bool) {
	fv, ok := e.extractField(ctx, t, d, r.Condition, call, res, now)
	if !ok {
		return false, false
	}

	switch r.Operator {
	case tenant.OpGreaterThan:
		if !fv.numeric || r.Value.Kind != tenant.ValueNumber {
			e.warnRule(t, d, r, "numeric operator on non-numeric operands")
			return false, false
		}
		return fv.num > r.Value.Num, true
	case tenant.OpLessThan:
		if !fv.numeric || r.Value.Kind != tenant.ValueNumber {
			e.warnRule(t, d, r, "numeric operator on non-numeric operands")
			return false, false
		}
		return fv.num < r.Value.Num, true
	case tenant.OpBetween:
		if !fv.numeric || r.Value.Kind != tenant.ValueRange {
			e.warnRule(t, d, r, "between on non-numeric operands")
			return false, false
		}
		return fv.num >= r.Value.Range[0] && fv.num <= r.Value.Range[1], true
	case tenant.OpEquals:
		return evalEquals(fv, r.Value), true
	case tenant.OpContains:
		return evalContains(fv, r.Value), true
	case tenant.OpIn:
		return evalIn(fv, r.Value), true
	case tenant.OpNotIn:
		return !evalIn(fv, r.Value), true
	default:
		e.warnRule(t, d, r, "unknown operator")
		return false, false
	}
}

func (e *Evaluator) extractField(ctx context.Context, t tenant.Tenant, d tenant.Department, cond tenant.Condition, call *CallContext, res analysis.Result, now time.Time) (fieldValue, bool) {
	switch cond {
	case tenant.CondIntent:
		return fieldValue{str: res.Intent}, true
	case tenant.CondSentiment:
		return fieldValue{num: res.Sentiment, numeric: true}, true
	case tenant.CondCustomerTier:
		return fieldValue{str: string(call.Customer.Tier)}, true
	case tenant.CondTimeOfDay:
		local := now
		if loc, err := time.LoadLocation(t.Timezone); err == nil && t.Timezone != "" {
			local = now.In(loc)
		}
		h := float64(local.Hour()) + float64(local.Minute())/60
		return fieldValue{num: h, numeric: true}, true
	case tenant.CondKeyword:
		return fieldValue{set: res.Keywords, str: strings.Join(res.Keywords, " ")}, true
	case tenant.CondCallerID:
		return fieldValue{str: call.CallerID}, true
	case tenant.CondDepartmentLoad:
		if e.Load == nil {
			return fieldValue{num: 0, numeric: true}, true
		}
		return fieldValue{num: e.Load.DepartmentLoad(ctx, t.ID, d), numeric: true}, true
	default:
		e.Log.Warn("unknown rule condition", "tenant_id", t.ID, "condition", string(cond))
		return fieldValue{}, false
	}
}

func (e *Evaluator) warnRule(t tenant.Tenant, d tenant.Department, r tenant.RoutingRule, msg string) {
	e.Log.Warn("routing rule skipped",
		"tenant_id", t.ID, "department_id", d.ID, "rule_id", r.ID, "reason", msg)
}

func evalEquals(fv fieldValue, v tenant.RuleValue) bool {
	switch v.Kind {
	case tenant.ValueNumber:
		return fv.numeric && fv.num == v.Num
	case tenant.ValueString:
		if len(fv.set) > 0 {
			return setHas(fv.set, v.Str)
		}
		return strings.EqualFold(fv.str, v.Str)
	default:
		return false
	}
}

func evalContains(fv fieldValue, v tenant.RuleValue) bool {
	switch v.Kind {
	case tenant.ValueString:
		needle := strings.ToLower(v.Str)
		if len(fv.set) > 0 {
			for _, s := range fv.set {
				if strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
			return false
		}
		return strings.Contains(strings.ToLower(fv.str), needle)
	case tenant.ValueSet:
		// Any configured item present in the field.
		hay := strings.ToLower(fv.str)
		for _, item := range v.Set {
			if strings.Contains(hay, strings.ToLower(item)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalIn(fv fieldValue, v tenant.RuleValue) bool {
	if v.Kind != tenant.ValueSet {
		return false
	}
	if len(fv.set) > 0 {
		for _, s := range fv.set {
			if setHas(v.Set, s) {
				return true
			}
		}
		return false
	}
	return setHas(v.Set, fv.str)
}

func setHas(set []string, s string) bool {
	for _, item := range set {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
