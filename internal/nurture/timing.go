package nurture

import "time"

// Send-time heuristics. Tuesday through Thursday outperform the rest of
// the week; morning is the safe default while long-dwell readers who open
// email respond better in the early afternoon.
const (
	morningSendHour   = 10
	afternoonSendHour = 14

	clickerClicksFloor = 2
	readerDwellFloor   = 300
	readerOpensFloor   = 1
)

// EngagementSnapshot carries the signals the timing heuristics read.
type EngagementSnapshot struct {
	Opens        int
	Clicks       int
	DwellSeconds int
}

func preferredWeekday(d time.Weekday) bool {
	return d == time.Tuesday || d == time.Wednesday || d == time.Thursday
}

// sendHour picks the time of day. High-click leads get the morning slot;
// leads that read long and open email get the afternoon slot.
func sendHour(snap EngagementSnapshot) int {
	switch {
	case snap.Clicks >= clickerClicksFloor:
		return morningSendHour
	case snap.DwellSeconds >= readerDwellFloor && snap.Opens >= readerOpensFloor:
		return afternoonSendHour
	default:
		return morningSendHour
	}
}

// NextSendTime computes the next optimal send instant at or after ref:
// the next Tuesday, Wednesday or Thursday at the heuristic hour in the
// practice's timezone. A result not after ref shifts forward exactly one
// week so the weekday and hour preference is preserved. Deterministic:
// the same ref and snapshot always yield the same instant.
func NextSendTime(ref time.Time, loc *time.Location, snap EngagementSnapshot) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	local := ref.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), sendHour(snap), 0, 0, 0, loc)
	for !preferredWeekday(candidate.Weekday()) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if !candidate.After(ref) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// StepReference is the baseline instant for a step's send-time
// calculation: the previous step's send plus the step delay, but never in
// the past.
func StepReference(now, previousSentAt time.Time, delayDays int) time.Time {
	ref := previousSentAt.AddDate(0, 0, delayDays)
	if ref.Before(now) {
		return now
	}
	return ref
}
