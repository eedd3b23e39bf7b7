package domain

import "time"

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusScoring   Status = "SCORING"
	StatusHot       Status = "HOT"
	StatusWarm      Status = "WARM"
	StatusCold      Status = "COLD"
	StatusNurturing Status = "NURTURING"
	StatusReady     Status = "READY"
	StatusConverted Status = "CONVERTED"
	StatusLost      Status = "LOST"
)

var knownStatuses = map[Status]bool{
	StatusNew:       true,
	StatusScoring:   true,
	StatusHot:       true,
	StatusWarm:      true,
	StatusCold:      true,
	StatusNurturing: true,
	StatusReady:     true,
	StatusConverted: true,
	StatusLost:      true,
}

func IsKnownStatus(s Status) bool {
	return knownStatuses[s]
}

// terminalStatuses end the automated lifecycle. Terminal leads are never
// rescored, nurtured or reassigned; only manual reactivation leaves them.
var terminalStatuses = map[Status]bool{
	StatusConverted: true,
	StatusLost:      true,
}

func IsTerminalStatus(s Status) bool {
	return terminalStatuses[s]
}

// legalTransitions is the full transition table. Terminal statuses only
// allow reactivation back to NEW; READY only moves forward or cools off.
var legalTransitions = map[Status][]Status{
	StatusNew:       {StatusScoring, StatusHot, StatusWarm, StatusCold, StatusNurturing, StatusReady, StatusConverted, StatusLost},
	StatusScoring:   {StatusNew, StatusHot, StatusWarm, StatusCold, StatusNurturing, StatusReady, StatusConverted, StatusLost},
	StatusHot:       {StatusWarm, StatusCold, StatusNurturing, StatusReady, StatusConverted, StatusLost},
	StatusWarm:      {StatusHot, StatusCold, StatusNurturing, StatusReady, StatusConverted, StatusLost},
	StatusCold:      {StatusHot, StatusWarm, StatusNurturing, StatusReady, StatusConverted, StatusLost},
	StatusNurturing: {StatusHot, StatusWarm, StatusCold, StatusReady, StatusConverted, StatusLost},
	StatusReady:     {StatusHot, StatusWarm, StatusConverted, StatusLost},
	StatusConverted: {StatusNew},
	StatusLost:      {StatusNew},
}

// CanTransition reports whether moving from one status to another is
// allowed. Self-transitions are always allowed and treated as no-ops.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Classification thresholds. A lead is HOT only when both quality and
// urgency clear their floors; WARM needs either decent quality or a real
// conversion chance; COLD needs both low quality and meaningful age.
const (
	hotQualityFloor    = 70
	hotUrgencyFloor    = 60
	warmQualityFloor   = 50
	warmProbability    = 0.4
	coldQualityCeiling = 30
	coldAgeDaysFloor   = 14
)

// ClassifyOnScore derives the post-scoring status. Only NEW and SCORING
// leads are reclassified: once a lead is HOT, WARM, COLD or deeper into
// the funnel, scoring never moves it, so manual placements and nurture
// progress survive rescoring. The returned bool reports whether the
// status changed.
func ClassifyOnScore(current Status, quality, urgency int, probability float64, ageDays int) (Status, bool) {
	if current != StatusNew && current != StatusScoring {
		return current, false
	}

	next := StatusNew
	switch {
	case quality >= hotQualityFloor && urgency >= hotUrgencyFloor:
		next = StatusHot
	case quality >= warmQualityFloor || probability >= warmProbability:
		next = StatusWarm
	case quality < coldQualityCeiling && ageDays > coldAgeDaysFloor:
		next = StatusCold
	}

	return next, next != current
}

// NurtureExitStatus is where a lead lands after finishing a sequence:
// high quality goes straight to a human, the rest stays workable.
func NurtureExitStatus(quality int) Status {
	if quality >= hotQualityFloor {
		return StatusHot
	}
	return StatusWarm
}

// ReplyEscalationStatus is where a replying lead lands. A positive reply
// is sales-ready; anything else still needs a human promptly.
func ReplyEscalationStatus(positive bool) Status {
	if positive {
		return StatusReady
	}
	return StatusHot
}

// StaleAfter reports whether a scoring pass has left the freshness window.
func StaleAfter(scoredAt, now time.Time) bool {
	return now.Sub(scoredAt) >= ScoreFreshnessWindow
}
