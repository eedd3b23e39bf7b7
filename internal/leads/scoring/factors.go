// Package scoring turns raw behavioral counters into quality and urgency
// scores, a bounded conversion probability and an actionable
// recommendation. Scores are pure functions of the lead's counters, so a
// pass is idempotent until the counters move.
package scoring

import (
	"math"
	"time"

	"growthdesk_backend/internal/leads/domain"
)

// Maximum contribution of each quality factor. The caps sum to 100, so
// the clamp below only guards future factor changes.
const (
	maxVisitFrequency  = 20
	maxPageDepth       = 15
	maxDwellTime       = 15
	maxFormFriction    = 15
	maxEmailEngagement = 15
	maxSourceQuality   = 20
)

// Probability bounds. A probability of exactly 0 or 1 is never reported:
// no lead is hopeless and none is a sure thing.
const (
	probabilityFloor   = 0.01
	probabilityCeiling = 0.95
)

// FactorVector is the per-factor breakdown of a quality score. Persisted
// as JSON alongside the score so past ratings stay explainable.
type FactorVector struct {
	VisitFrequency  int `json:"visitFrequency"`
	PageDepth       int `json:"pageDepth"`
	DwellTime       int `json:"dwellTime"`
	FormFriction    int `json:"formFriction"`
	EmailEngagement int `json:"emailEngagement"`
	SourceQuality   int `json:"sourceQuality"`
}

// Quality sums the factors, clamped to 0-100.
func (f FactorVector) Quality() int {
	total := f.VisitFrequency + f.PageDepth + f.DwellTime +
		f.FormFriction + f.EmailEngagement + f.SourceQuality
	return clampInt(total, 0, 100)
}

// ExtractFactors computes the quality factor breakdown for a lead.
func ExtractFactors(lead *domain.Lead) FactorVector {
	return FactorVector{
		VisitFrequency:  scoreVisitFrequency(lead.WebsiteVisits),
		PageDepth:       scorePageDepth(lead.PageViews),
		DwellTime:       scoreDwellTime(lead.TimeOnSiteSeconds),
		FormFriction:    scoreFormFriction(lead.FormAbandoned),
		EmailEngagement: scoreEmailEngagement(lead.EmailsOpened, lead.LinksClicked),
		SourceQuality:   scoreSourceQuality(lead.Source),
	}
}

// scoreVisitFrequency rewards repeat visitors. Returning five or more
// times is the strongest browsing signal a practice site produces.
func scoreVisitFrequency(visits int) int {
	switch {
	case visits >= 5:
		return maxVisitFrequency
	case visits >= 3:
		return 15
	case visits == 2:
		return 10
	case visits == 1:
		return 5
	default:
		return 0
	}
}

// scorePageDepth rewards browsing breadth. Deep sessions mean the
// visitor is comparing treatments, not bouncing off the homepage.
func scorePageDepth(pages int) int {
	switch {
	case pages >= 10:
		return maxPageDepth
	case pages >= 6:
		return 10
	case pages >= 3:
		return 5
	default:
		return 0
	}
}

// scoreDwellTime rewards accumulated time on site. Five minutes of
// reading is a researched decision in the making.
func scoreDwellTime(seconds int) int {
	switch {
	case seconds >= 300:
		return maxDwellTime
	case seconds >= 120:
		return 10
	case seconds >= 60:
		return 5
	default:
		return 0
	}
}

// scoreFormFriction treats an abandoned form as high intent with
// friction, not a negative signal: the visitor wanted to book and
// something stopped them.
func scoreFormFriction(abandoned bool) int {
	if abandoned {
		return maxFormFriction
	}
	return 0
}

// scoreEmailEngagement rates interaction with outbound email. Clicks
// outrank opens; a second click outranks everything else here.
func scoreEmailEngagement(opens, clicks int) int {
	switch {
	case clicks >= 2:
		return maxEmailEngagement
	case clicks == 1:
		return 10
	case opens >= 3:
		return 10
	case opens >= 1:
		return 5
	default:
		return 0
	}
}

// sourceQualityTable ranks acquisition channels by observed intent:
// people sent by someone they trust convert best, broad paid reach worst.
var sourceQualityTable = map[domain.Source]int{
	domain.SourceReferral:   maxSourceQuality,
	domain.SourceWalkIn:     15,
	domain.SourceWebsite:    10,
	domain.SourcePaidSearch: 8,
	domain.SourceSocial:     6,
	domain.SourceOther:      5,
}

func scoreSourceQuality(source domain.Source) int {
	if score, ok := sourceQualityTable[source]; ok {
		return score
	}
	return sourceQualityTable[domain.SourceOther]
}

// UrgencyScore measures decay: how quickly this lead needs contact before
// interest cools. It accumulates recency bonuses and applies an age
// penalty, clamped to 0-100.
func UrgencyScore(lead *domain.Lead, now time.Time) int {
	score := 0

	// Recent high-frequency visits are the strongest urgency signal.
	switch {
	case lead.WebsiteVisits >= 3 && visitedWithin(lead, now, 72*time.Hour):
		score += 30
	case lead.WebsiteVisits >= 2 && visitedWithin(lead, now, 7*24*time.Hour):
		score += 20
	}

	if lead.PageViews >= 5 {
		score += 20
	}

	switch {
	case lead.TimeOnSiteSeconds >= 300:
		score += 20
	case lead.TimeOnSiteSeconds >= 120:
		score += 10
	}

	if lead.FormAbandoned {
		score += 15
	}

	// Age penalty: urgency decays even when the counters look good.
	switch ageDays := lead.AgeDays(now); {
	case ageDays > 14:
		score -= 20
	case ageDays > 7:
		score -= 10
	}

	return clampInt(score, 0, 100)
}

func visitedWithin(lead *domain.Lead, now time.Time, window time.Duration) bool {
	if lead.LastVisitAt == nil {
		return false
	}
	return now.Sub(*lead.LastVisitAt) <= window
}

// sourceMultipliers scale conversion probability by channel. Referral-type
// sources run above 1, broad paid and social reach below.
var sourceMultipliers = map[domain.Source]float64{
	domain.SourceReferral:   1.2,
	domain.SourceWalkIn:     1.1,
	domain.SourceWebsite:    1.0,
	domain.SourcePaidSearch: 0.9,
	domain.SourceSocial:     0.85,
	domain.SourceOther:      0.8,
}

// ageDecay discounts probability as the lead ages. Multiplicative, so the
// probability decreases monotonically with age holding everything else
// fixed.
func ageDecay(ageDays int) float64 {
	switch {
	case ageDays > 30:
		return 0.5
	case ageDays > 14:
		return 0.7
	case ageDays > 7:
		return 0.85
	default:
		return 1.0
	}
}

// ConversionProbability combines quality, urgency, source and age into a
// bounded probability. Quality dominates (0.5 weight vs 0.2): durable fit
// predicts conversion better than momentary urgency.
func ConversionProbability(quality, urgency int, source domain.Source, ageDays int) float64 {
	multiplier, ok := sourceMultipliers[source]
	if !ok {
		multiplier = sourceMultipliers[domain.SourceOther]
	}

	base := 0.5*float64(quality)/100 + 0.2*float64(urgency)/100
	return clampFloat(base*multiplier*ageDecay(ageDays), probabilityFloor, probabilityCeiling)
}

// Recommendation pairs the narrative assessment with one atomic next
// action for the front desk.
type Recommendation struct {
	Assessment string `json:"assessment"`
	NextAction string `json:"nextAction"`
}

// Recommend maps scores onto a recommendation via a priority-ordered rule
// cascade. First match wins; order is significant.
func Recommend(quality, urgency int, probability float64, ageDays int) Recommendation {
	switch {
	case quality >= 70 && urgency >= 60:
		return Recommendation{
			Assessment: "Hot lead - contact within minutes",
			NextAction: "Call now and offer the earliest available consultation",
		}
	case quality >= 70:
		return Recommendation{
			Assessment: "High value lead - worth a personalized follow-up",
			NextAction: "Send a personalized email and call within one business day",
		}
	case urgency >= 60:
		return Recommendation{
			Assessment: "Time-sensitive lead - interest is decaying fast",
			NextAction: "Send a quick response within the hour",
		}
	case quality >= 40 || probability >= 0.3:
		return Recommendation{
			Assessment: "Promising lead - continue nurturing",
			NextAction: "Keep the nurture sequence running and watch engagement",
		}
	case ageDays > 14:
		return Recommendation{
			Assessment: "Aging lead - interest has likely moved on",
			NextAction: "Move to the re-engagement sequence or archive",
		}
	default:
		return Recommendation{
			Assessment: "New lead - monitor and nurture",
			NextAction: "Start the awareness sequence and watch for intent signals",
		}
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// roundProbability keeps stored probabilities at four decimals so equal
// inputs compare equal after a round-trip through the database.
func roundProbability(p float64) float64 {
	return math.Round(p*10000) / 10000
}
