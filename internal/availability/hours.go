package availability

import (
	"strconv"
	"strings"
	"time"

	"callrouter-platform/internal/tenant"
)

// HoursResult is the outcome of a business-hours evaluation.
type HoursResult struct {
	Open bool

	// Holiday is set when an exact-date holiday override applied.
	Holiday *tenant.Holiday

	// OnBreak is set when the call landed inside a configured break window.
	OnBreak bool
}

// EvaluateHours checks now against the schedule.
//
// Rules, in order:
//  1. An enabled holiday with today's exact date wins over the weekday
//     schedule: the day is closed (the holiday may carry its own greeting
//     and forward target).
//  2. The weekday schedule applies in the schedule timezone (falling back to
//     defaultTZ, then UTC). Boundary convention: start is inclusive, end is
//     exclusive; a call at exactly End is outside hours.
//  3. Break windows carve closed stretches out of an open day.
func EvaluateHours(bh tenant.BusinessHours, defaultTZ string, now time.Time) HoursResult {
	loc := resolveLocation(bh.Timezone, defaultTZ)
	local := now.In(loc)

	dateStr := local.Format("2006-01-02")
	for i := range bh.Holidays {
		h := &bh.Holidays[i]
		if h.Enabled && h.Date == dateStr {
			return HoursResult{Open: false, Holiday: h}
		}
	}

	day := bh.Weekdays[int(local.Weekday())]
	if !day.Enabled {
		return HoursResult{Open: false}
	}

	minute := local.Hour()*60 + local.Minute()
	start, okS := parseClock(day.Start)
	end, okE := parseClock(day.End)
	if !okS || !okE {
		// Malformed schedule reads as closed; provisioning validation should
		// have caught this upstream.
		return HoursResult{Open: false}
	}
	if minute < start || minute >= end {
		return HoursResult{Open: false}
	}

	for _, b := range bh.Breaks {
		bs, okBS := parseClock(b.Start)
		be, okBE := parseClock(b.End)
		if okBS && okBE && minute >= bs && minute < be {
			return HoursResult{Open: false, OnBreak: true}
		}
	}

	return HoursResult{Open: true}
}

// NextBusinessOpen returns the next moment the schedule opens, used for
// callback scheduling. Scans at most 14 days ahead; the zero time means the
// schedule never opens.
func NextBusinessOpen(bh tenant.BusinessHours, defaultTZ string, now time.Time) time.Time {
	loc := resolveLocation(bh.Timezone, defaultTZ)
	local := now.In(loc)

	for i := 0; i < 14; i++ {
		day := local.AddDate(0, 0, i)
		sched := bh.Weekdays[int(day.Weekday())]
		if !sched.Enabled {
			continue
		}
		if holidayOn(bh, day.Format("2006-01-02")) {
			continue
		}
		start, ok := parseClock(sched.Start)
		if !ok {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
		if open.After(now) {
			return open
		}
	}
	return time.Time{}
}

func holidayOn(bh tenant.BusinessHours, dateStr string) bool {
	for _, h := range bh.Holidays {
		if h.Enabled && h.Date == dateStr {
			return true
		}
	}
	return false
}

func resolveLocation(primary, fallback string) *time.Location {
	for _, name := range []string{primary, fallback} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// parseClock parses "15:04" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
