// Package nurture runs multi-step outreach campaigns: it selects a
// sequence for a lead, schedules each step at an optimal send time,
// reacts to engagement events, and escalates or terminates runs.
package nurture

import "growthdesk_backend/internal/nurture/catalog"

// Selection thresholds. Re-engagement wins first because a stale,
// disengaged lead needs winning back before any pitch can land; decision
// targets leads that are both valuable and time-sensitive; consideration
// catches everything with real potential; awareness is the default.
const (
	reEngageAgeDaysFloor     = 21
	reEngageScoreCeiling     = 20
	decisionQualityFloor     = 70
	decisionUrgencyFloor     = 50
	considerationQuality     = 40
	considerationProbability = 0.3
)

// SelectSequence picks the campaign template for a lead. Deterministic:
// identical inputs always return the same key.
func SelectSequence(quality, urgency int, probability float64, ageDays, engagementScore int) string {
	switch {
	case ageDays > reEngageAgeDaysFloor && engagementScore < reEngageScoreCeiling:
		return catalog.KeyReEngagement
	case quality >= decisionQualityFloor && urgency >= decisionUrgencyFloor:
		return catalog.KeyDecision
	case quality >= considerationQuality || probability >= considerationProbability:
		return catalog.KeyConsideration
	default:
		return catalog.KeyAwareness
	}
}
