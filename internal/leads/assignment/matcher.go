// Package assignment picks the best staff owner for a lead by ranking the
// active roster on current load and historical conversion rate.
package assignment

import (
	"context"
	"fmt"

	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Match score tuning. Load pushes work away from busy staff; the
// conversion term and the top-performer bonus route the best leads to
// the people who close them.
const (
	baseMatchScore       = 100.0
	openLeadPenalty      = 5.0
	conversionRateWeight = 50.0
	topPerformerBonus    = 20.0

	// A lead qualifies for the bonus routing when its quality clears
	// this floor and the candidate converts at least this rate.
	bonusQualityFloor    = 70
	bonusConversionFloor = 0.3
)

// Candidate is an ephemeral ranking entry, recomputed per assignment
// request and never persisted.
type Candidate struct {
	StaffID        uuid.UUID `json:"staffId"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	OpenLeads      int       `json:"openLeads"`
	ConversionRate float64   `json:"conversionRate"`
}

// CandidateSource supplies the active roster with live load and
// conversion stats.
type CandidateSource interface {
	ListActiveCandidates(ctx context.Context) ([]Candidate, error)
	GetActiveCandidate(ctx context.Context, id uuid.UUID) (Candidate, error)
}

// Match is the assignment decision with its human-readable reason.
type Match struct {
	StaffID   uuid.UUID `json:"staffId"`
	StaffName string    `json:"staffName"`
	Score     float64   `json:"matchScore"`
	Reason    string    `json:"reason"`
	Preferred bool      `json:"preferred"`
}

// Matcher ranks staff candidates for lead ownership.
type Matcher struct {
	source CandidateSource
	log    *logger.Logger
}

func NewMatcher(source CandidateSource, log *logger.Logger) *Matcher {
	return &Matcher{source: source, log: log}
}

// Pick selects the owner for a lead of the given quality. A preferred
// assignee bypasses matching when they exist and are active; otherwise
// the request falls through to the ranked roster. Ties keep the earlier
// candidate, so equal scores resolve deterministically.
func (m *Matcher) Pick(ctx context.Context, quality int, preferred *uuid.UUID) (Match, error) {
	if preferred != nil {
		candidate, err := m.source.GetActiveCandidate(ctx, *preferred)
		if err == nil {
			return Match{
				StaffID:   candidate.StaffID,
				StaffName: candidate.Name,
				Score:     matchScore(candidate, quality),
				Reason:    "Manually preferred assignee",
				Preferred: true,
			}, nil
		}
		m.log.Warn("preferred assignee unavailable, falling back to matching",
			"staffId", preferred.String(), "error", err)
	}

	candidates, err := m.source.ListActiveCandidates(ctx)
	if err != nil {
		return Match{}, err
	}
	if len(candidates) == 0 {
		return Match{}, apperr.NotFound("no active staff available for assignment")
	}

	best := candidates[0]
	bestScore := matchScore(best, quality)
	for _, candidate := range candidates[1:] {
		if score := matchScore(candidate, quality); score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	return Match{
		StaffID:   best.StaffID,
		StaffName: best.Name,
		Score:     bestScore,
		Reason:    matchReason(best, quality),
	}, nil
}

func matchScore(c Candidate, quality int) float64 {
	score := baseMatchScore
	score -= openLeadPenalty * float64(c.OpenLeads)
	score += c.ConversionRate * conversionRateWeight
	if quality >= bonusQualityFloor && c.ConversionRate >= bonusConversionFloor {
		score += topPerformerBonus
	}
	return score
}

func matchReason(c Candidate, quality int) string {
	reason := fmt.Sprintf("Best available match: %d open leads, %.0f%% historical conversion",
		c.OpenLeads, c.ConversionRate*100)
	if quality >= bonusQualityFloor && c.ConversionRate >= bonusConversionFloor {
		reason += "; high-quality lead routed to a top performer"
	}
	return reason
}
