package tenant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleValue is the tagged variant behind a routing rule's loosely-typed
// "value" field. Provisioning data may carry a string, a number, a two-number
// range, or a string set depending on the operator; decoding it into a closed
// set of shapes turns configuration typos into load-time errors instead of
// rules that silently never match.
type RuleValue struct {
	Kind ValueKind `json:"kind"`

	Str   string     `json:"str,omitempty"`
	Num   float64    `json:"num,omitempty"`
	Range [2]float64 `json:"range,omitempty"`
	Set   []string   `json:"set,omitempty"`
}

type ValueKind string

const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueRange  ValueKind = "range"
	ValueSet    ValueKind = "set"
)

func StringValue(s string) RuleValue  { return RuleValue{Kind: ValueString, Str: s} }
func NumberValue(n float64) RuleValue { return RuleValue{Kind: ValueNumber, Num: n} }
func RangeValue(lo, hi float64) RuleValue {
	return RuleValue{Kind: ValueRange, Range: [2]float64{lo, hi}}
}
func SetValue(items ...string) RuleValue { return RuleValue{Kind: ValueSet, Set: items} }

// UnmarshalJSON accepts the raw provisioning shapes: JSON string, number,
// [lo, hi] numeric pair, or array of strings.
func (v *RuleValue) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return fmt.Errorf("tenant: empty rule value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case '[':
		var nums []float64
		if err := json.Unmarshal(data, &nums); err == nil {
			if len(nums) != 2 {
				return fmt.Errorf("tenant: numeric rule value array must have exactly 2 elements, got %d", len(nums))
			}
			*v = RangeValue(nums[0], nums[1])
			return nil
		}
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("tenant: rule value array must be two numbers or a string set: %w", err)
		}
		*v = SetValue(items...)
		return nil
	case '{':
		// Already in tagged form (round-trip of our own encoding).
		type alias RuleValue
		var a alias
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		*v = RuleValue(a)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("tenant: unsupported rule value %s", string(data))
		}
		*v = NumberValue(n)
		return nil
	}
}

// IsNumeric reports whether the value can serve a numeric operator.
func (v RuleValue) IsNumeric() bool {
	return v.Kind == ValueNumber || v.Kind == ValueRange
}

// ConfigWarning describes a rule that can never match as configured.
// Warnings are logged and the rule disabled; a malformed rule must never
// abort evaluation.
type ConfigWarning struct {
	TenantID     string
	DepartmentID string
	RuleID       string
	Message      string
}

func (w ConfigWarning) String() string {
	return fmt.Sprintf("tenant %s dept %s rule %s: %s", w.TenantID, w.DepartmentID, w.RuleID, w.Message)
}

// ValidateConfig checks every rule of every department and disables rules
// whose operator/value/condition combination can never match. Returns the
// collected warnings; the tenant snapshot is mutated in place.
func ValidateConfig(t *Tenant) []ConfigWarning {
	var warns []ConfigWarning

	warn := func(d *Department, r *RoutingRule, msg string) {
		r.Disabled = true
		warns = append(warns, ConfigWarning{
			TenantID:     t.ID,
			DepartmentID: d.ID,
			RuleID:       r.ID,
			Message:      msg,
		})
	}

	for di := range t.Departments {
		d := &t.Departments[di]
		for ri := range d.Rules {
			r := &d.Rules[ri]

			switch r.Operator {
			case OpGreaterThan, OpLessThan:
				if r.Value.Kind != ValueNumber {
					warn(d, r, fmt.Sprintf("operator %q requires a number value, got %q", r.Operator, r.Value.Kind))
					continue
				}
			case OpBetween:
				if r.Value.Kind != ValueRange {
					warn(d, r, fmt.Sprintf("operator %q requires a [lo, hi] range value, got %q", r.Operator, r.Value.Kind))
					continue
				}
				if r.Value.Range[0] > r.Value.Range[1] {
					warn(d, r, "range lower bound exceeds upper bound")
					continue
				}
			case OpIn, OpNotIn:
				if r.Value.Kind != ValueSet || len(r.Value.Set) == 0 {
					warn(d, r, fmt.Sprintf("operator %q requires a non-empty string set", r.Operator))
					continue
				}
			case OpEquals, OpContains:
				if r.Value.Kind == ValueRange {
					warn(d, r, fmt.Sprintf("operator %q cannot match a range value", r.Operator))
					continue
				}
			default:
				warn(d, r, fmt.Sprintf("unknown operator %q", r.Operator))
				continue
			}

			// Numeric conditions never match string-shaped values and vice versa.
			switch r.Condition {
			case CondSentiment, CondTimeOfDay, CondDepartmentLoad:
				if !r.Value.IsNumeric() {
					warn(d, r, fmt.Sprintf("condition %q is numeric but value is %q", r.Condition, r.Value.Kind))
				}
			case CondIntent, CondCustomerTier, CondKeyword, CondCallerID:
				if r.Value.IsNumeric() {
					warn(d, r, fmt.Sprintf("condition %q is text but value is %q", r.Condition, r.Value.Kind))
				}
			default:
				warn(d, r, fmt.Sprintf("unknown condition %q", r.Condition))
			}
		}
	}
	return warns
}
