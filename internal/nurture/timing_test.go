package nurture

import (
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestNextSendTimeLandsOnPreferredWeekday(t *testing.T) {
	loc := mustLocation(t, "America/New_York")

	tests := []struct {
		name string
		ref  time.Time
		want time.Time
	}{
		{
			// Friday skips the weekend and Monday.
			name: "friday rolls to tuesday",
			ref:  time.Date(2026, 3, 6, 9, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
		},
		{
			name: "monday rolls to tuesday",
			ref:  time.Date(2026, 3, 9, 8, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
		},
		{
			name: "tuesday morning before slot sends same day",
			ref:  time.Date(2026, 3, 10, 8, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
		},
		{
			// Past today's slot the schedule shifts a full week so the
			// weekday preference is preserved.
			name: "tuesday afternoon shifts one week",
			ref:  time.Date(2026, 3, 10, 15, 0, 0, 0, loc),
			want: time.Date(2026, 3, 17, 10, 0, 0, 0, loc),
		},
		{
			name: "saturday rolls to tuesday",
			ref:  time.Date(2026, 3, 7, 12, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextSendTime(tt.ref, loc, EngagementSnapshot{})
			if !got.Equal(tt.want) {
				t.Fatalf("NextSendTime(%v) = %v, want %v", tt.ref, got, tt.want)
			}
			if !preferredWeekday(got.In(loc).Weekday()) {
				t.Fatalf("result %v falls on %v", got, got.In(loc).Weekday())
			}
		})
	}
}

func TestNextSendTimeHourHeuristics(t *testing.T) {
	loc := mustLocation(t, "America/Chicago")
	ref := time.Date(2026, 3, 9, 8, 0, 0, 0, loc) // Monday

	tests := []struct {
		name     string
		snap     EngagementSnapshot
		wantHour int
	}{
		{"default is morning", EngagementSnapshot{}, 10},
		{"frequent clicker stays morning", EngagementSnapshot{Clicks: 3, Opens: 5}, 10},
		{"long dwell with opens moves to afternoon", EngagementSnapshot{Opens: 2, DwellSeconds: 400}, 14},
		{"long dwell without opens stays morning", EngagementSnapshot{DwellSeconds: 400}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextSendTime(ref, loc, tt.snap)
			if got.In(loc).Hour() != tt.wantHour {
				t.Fatalf("hour = %d, want %d", got.In(loc).Hour(), tt.wantHour)
			}
		})
	}
}

func TestNextSendTimeRespectsPracticeTimezone(t *testing.T) {
	ny := mustLocation(t, "America/New_York")
	la := mustLocation(t, "America/Los_Angeles")
	ref := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) // Monday noon UTC

	inNY := NextSendTime(ref, ny, EngagementSnapshot{})
	inLA := NextSendTime(ref, la, EngagementSnapshot{})

	if inNY.In(ny).Hour() != 10 || inLA.In(la).Hour() != 10 {
		t.Fatalf("expected 10:00 local in both zones, got %v and %v", inNY.In(ny), inLA.In(la))
	}
	if inNY.Equal(inLA) {
		t.Fatal("expected different instants for different practice timezones")
	}
}

func TestNextSendTimeNilLocationDefaultsToUTC(t *testing.T) {
	ref := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	got := NextSendTime(ref, nil, EngagementSnapshot{})
	want := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextSendTime = %v, want %v", got, want)
	}
}

func TestStepReference(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	// Normal case: previous send plus the delay is in the future.
	prev := now.AddDate(0, 0, -1)
	if got := StepReference(now, prev, 3); !got.Equal(prev.AddDate(0, 0, 3)) {
		t.Fatalf("StepReference = %v, want %v", got, prev.AddDate(0, 0, 3))
	}

	// A stalled run whose delay already elapsed resumes from now, never
	// the past.
	stale := now.AddDate(0, 0, -10)
	if got := StepReference(now, stale, 3); !got.Equal(now) {
		t.Fatalf("StepReference = %v, want now %v", got, now)
	}
}
