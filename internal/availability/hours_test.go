package availability

import (
	"testing"
	"time"

	"callrouter-platform/internal/tenant"
)

func weekdaySchedule() tenant.BusinessHours {
	var bh tenant.BusinessHours
	for d := time.Monday; d <= time.Friday; d++ {
		bh.Weekdays[int(d)] = tenant.DaySchedule{Enabled: true, Start: "09:00", End: "17:00"}
	}
	bh.Timezone = "UTC"
	return bh
}

// 2026-01-05 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2026, 1, 5, hour, min, 0, 0, time.UTC)
}

func TestEvaluateHours_Boundaries(t *testing.T) {
	bh := weekdaySchedule()

	cases := []struct {
		at   time.Time
		open bool
	}{
		{monday(8, 59), false},
		{monday(9, 0), true}, // start is inclusive
		{monday(16, 59), true},
		{monday(17, 0), false}, // end is exclusive
		{monday(12, 30), true},
	}
	for _, tc := range cases {
		got := EvaluateHours(bh, "", tc.at)
		if got.Open != tc.open {
			t.Fatalf("at %v: expected open=%v, got %v", tc.at, tc.open, got.Open)
		}
	}
}

func TestEvaluateHours_WeekendClosed(t *testing.T) {
	bh := weekdaySchedule()
	saturday := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	if got := EvaluateHours(bh, "", saturday); got.Open {
		t.Fatal("saturday should be closed")
	}
}

func TestEvaluateHours_HolidayOverridesWeekday(t *testing.T) {
	bh := weekdaySchedule()
	bh.Holidays = []tenant.Holiday{
		{Date: "2026-01-05", Name: "Company Day", Enabled: true},
	}

	got := EvaluateHours(bh, "", monday(12, 0))
	if got.Open {
		t.Fatal("holiday must close an otherwise open day")
	}
	if got.Holiday == nil || got.Holiday.Name != "Company Day" {
		t.Fatalf("expected holiday detail, got %+v", got.Holiday)
	}

	// Disabled holidays are ignored.
	bh.Holidays[0].Enabled = false
	if got := EvaluateHours(bh, "", monday(12, 0)); !got.Open {
		t.Fatal("disabled holiday must not close the day")
	}
}

func TestEvaluateHours_BreakWindow(t *testing.T) {
	bh := weekdaySchedule()
	bh.Breaks = []tenant.Window{{Start: "12:00", End: "13:00"}}

	got := EvaluateHours(bh, "", monday(12, 30))
	if got.Open || !got.OnBreak {
		t.Fatalf("expected closed on break, got %+v", got)
	}
	if got := EvaluateHours(bh, "", monday(13, 0)); !got.Open {
		t.Fatal("break end is exclusive")
	}
}

func TestEvaluateHours_TimezoneConversion(t *testing.T) {
	bh := weekdaySchedule()
	bh.Timezone = "America/New_York"

	// 14:00 UTC on Monday is 09:00 in New York (EST): exactly opening time.
	at := monday(14, 0)
	if got := EvaluateHours(bh, "", at); !got.Open {
		t.Fatal("expected open at 09:00 local")
	}
	// 13:59 UTC is 08:59 local: still closed.
	if got := EvaluateHours(bh, "", monday(13, 59)); got.Open {
		t.Fatal("expected closed at 08:59 local")
	}
}

func TestEvaluateHours_MalformedScheduleReadsClosed(t *testing.T) {
	var bh tenant.BusinessHours
	bh.Weekdays[int(time.Monday)] = tenant.DaySchedule{Enabled: true, Start: "9am", End: "17:00"}
	if got := EvaluateHours(bh, "", monday(12, 0)); got.Open {
		t.Fatal("malformed schedule must read as closed")
	}
}

func TestNextBusinessOpen_SkipsWeekendAndHoliday(t *testing.T) {
	bh := weekdaySchedule()
	// Monday the 5th is a holiday; Friday evening should resolve to Tuesday.
	bh.Holidays = []tenant.Holiday{{Date: "2026-01-05", Enabled: true}}

	fridayEvening := time.Date(2026, 1, 2, 19, 0, 0, 0, time.UTC)
	got := NextBusinessOpen(bh, "", fridayEvening)

	want := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected next open %v, got %v", want, got)
	}
}

func TestNextBusinessOpen_SameDayBeforeOpening(t *testing.T) {
	bh := weekdaySchedule()
	got := NextBusinessOpen(bh, "", monday(6, 0))
	want := monday(9, 0)
	if !got.Equal(want) {
		t.Fatalf("expected same-day opening %v, got %v", want, got)
	}
}

func TestNextBusinessOpen_NeverOpens(t *testing.T) {
	var bh tenant.BusinessHours // all days disabled
	if got := NextBusinessOpen(bh, "", monday(6, 0)); !got.IsZero() {
		t.Fatalf("expected zero time for a never-open schedule, got %v", got)
	}
}
