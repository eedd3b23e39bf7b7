package nurture

// Engagement score weights. Each channel has diminishing returns via a
// hard cap; replies weigh heaviest per event because they are the
// strongest intent signal.
const (
	openPoints  = 10
	openCap     = 30
	clickPoints = 15
	clickCap    = 40
	replyPoints = 20
	replyCap    = 30

	fastResponderBonus     = 10
	fastResponderFloor     = 30
	fastResponderStepLimit = 2

	engagementScoreMax = 100
)

// EngagementScore reduces opens/clicks/replies to a bounded 0-100 score.
// currentStep is the lead's position in its active sequence; leads that
// engage meaningfully within the first two steps earn a fast-responder
// bonus. A zero currentStep means no active run, so no bonus applies.
func EngagementScore(opens, clicks, replies, currentStep int) int {
	total := capped(opens*openPoints, openCap) +
		capped(clicks*clickPoints, clickCap) +
		capped(replies*replyPoints, replyCap)

	if total >= fastResponderFloor && currentStep >= 1 && currentStep <= fastResponderStepLimit {
		total += fastResponderBonus
	}

	if total > engagementScoreMax {
		total = engagementScoreMax
	}
	return total
}

func capped(value, max int) int {
	if value > max {
		return max
	}
	return value
}
