// Package domain holds the lead lifecycle model: entities, statuses and
// the classification rules that move leads between them.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies the acquisition channel of a lead.
type Source string

const (
	SourceWebsite    Source = "website"
	SourceReferral   Source = "referral"
	SourceSocial     Source = "social"
	SourceWalkIn     Source = "walk_in"
	SourcePaidSearch Source = "paid_search"
	SourceOther      Source = "other"
)

var knownSources = map[Source]bool{
	SourceWebsite:    true,
	SourceReferral:   true,
	SourceSocial:     true,
	SourceWalkIn:     true,
	SourcePaidSearch: true,
	SourceOther:      true,
}

func IsKnownSource(s Source) bool {
	return knownSources[s]
}

// sourceAliases maps common capture-form spellings onto canonical sources.
var sourceAliases = map[string]Source{
	"walk-in":       SourceWalkIn,
	"walkin":        SourceWalkIn,
	"referral":      SourceReferral,
	"refer":         SourceReferral,
	"word_of_mouth": SourceReferral,
	"google_ads":    SourcePaidSearch,
	"google-ads":    SourcePaidSearch,
	"adwords":       SourcePaidSearch,
	"ppc":           SourcePaidSearch,
	"sem":           SourcePaidSearch,
	"facebook":      SourceSocial,
	"instagram":     SourceSocial,
	"tiktok":        SourceSocial,
	"linkedin":      SourceSocial,
	"twitter":       SourceSocial,
	"web":           SourceWebsite,
	"homepage":      SourceWebsite,
	"landing_page":  SourceWebsite,
}

// NormalizeSource folds free-form capture input onto a canonical source.
// Unrecognized values become SourceOther rather than failing the capture.
func NormalizeSource(raw string) Source {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if IsKnownSource(Source(cleaned)) {
		return Source(cleaned)
	}
	if alias, ok := sourceAliases[cleaned]; ok {
		return alias
	}
	return SourceOther
}

// ScoreFreshnessWindow is how long a scoring pass stays authoritative.
// Within the window recalculation returns the stored scores unchanged.
const ScoreFreshnessWindow = 24 * time.Hour

// Lead is the aggregate root of the leads context. Behavioral counters
// accumulate across captures; scores are derived and carry the version of
// the model that produced them. The nurture pointers are projected from
// the live run at read time and are zero-valued on write-path returns.
type Lead struct {
	ID            uuid.UUID `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	PhoneMatchKey *string   `json:"-"`
	Source        Source    `json:"source"`
	Status        Status    `json:"status"`

	WebsiteVisits     int        `json:"websiteVisits"`
	PageViews         int        `json:"pageViews"`
	TimeOnSiteSeconds int        `json:"timeOnSiteSeconds"`
	FormAbandoned     bool       `json:"formAbandoned"`
	LastPageViewed    *string    `json:"lastPageViewed,omitempty"`
	LastVisitAt       *time.Time `json:"lastVisitAt,omitempty"`

	EmailsOpened    int `json:"emailsOpened"`
	LinksClicked    int `json:"linksClicked"`
	RepliesReceived int `json:"repliesReceived"`

	QualityScore          int     `json:"qualityScore"`
	UrgencyScore          int     `json:"urgencyScore"`
	ConversionProbability float64 `json:"conversionProbability"`
	ScoreFactors          []byte  `json:"-"`
	ScoreVersion          string  `json:"scoreVersion,omitempty"`
	Recommendation        string  `json:"recommendation,omitempty"`
	SuggestedAction       string  `json:"suggestedAction,omitempty"`

	RequiresHumanFollowUp bool    `json:"requiresHumanFollowUp"`
	OptedOut              bool    `json:"optedOut"`
	LostReason            *string `json:"lostReason,omitempty"`

	AssignedStaffID *uuid.UUID `json:"assignedStaffId,omitempty"`

	ActiveSequenceKey *string `json:"activeSequenceKey,omitempty"`
	CurrentStepNumber int     `json:"currentStepNumber,omitempty"`

	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	LastScoredAt     *time.Time `json:"lastScoredAt,omitempty"`
	NurtureStartedAt *time.Time `json:"nurtureStartedAt,omitempty"`
	ConvertedAt      *time.Time `json:"convertedAt,omitempty"`
}

// FullName joins the name parts, tolerating either being empty.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// AgeDays is the lead age in whole days since capture.
func (l *Lead) AgeDays(now time.Time) int {
	if now.Before(l.CreatedAt) {
		return 0
	}
	return int(now.Sub(l.CreatedAt).Hours() / 24)
}

// HasFreshScore reports whether the last scoring pass is still inside the
// freshness window.
func (l *Lead) HasFreshScore(now time.Time) bool {
	if l.LastScoredAt == nil {
		return false
	}
	return now.Sub(*l.LastScoredAt) < ScoreFreshnessWindow
}

// IsTerminal reports whether the lead sits in a terminal status.
func (l *Lead) IsTerminal() bool {
	return IsTerminalStatus(l.Status)
}

// HasContactChannel reports whether the lead can be reached at all.
// Leads without a channel never enter nurturing.
func (l *Lead) HasContactChannel() bool {
	return (l.Email != nil && *l.Email != "") || (l.Phone != nil && *l.Phone != "")
}

// BehavioralCounters carries the tracked browsing behavior of a capture.
type BehavioralCounters struct {
	WebsiteVisits     int        `json:"websiteVisits"`
	PageViews         int        `json:"pageViews"`
	TimeOnSiteSeconds int        `json:"timeOnSiteSeconds"`
	FormAbandoned     bool       `json:"formAbandoned"`
	LastPageViewed    string     `json:"lastPageViewed,omitempty"`
	LastVisitAt       *time.Time `json:"lastVisitAt,omitempty"`
}

// Validate rejects negative counters. Counters are additive across merges,
// so a negative value would silently corrupt the accumulated history.
func (c BehavioralCounters) Validate() error {
	if c.WebsiteVisits < 0 {
		return fmt.Errorf("websiteVisits must not be negative, got %d", c.WebsiteVisits)
	}
	if c.PageViews < 0 {
		return fmt.Errorf("pageViews must not be negative, got %d", c.PageViews)
	}
	if c.TimeOnSiteSeconds < 0 {
		return fmt.Errorf("timeOnSiteSeconds must not be negative, got %d", c.TimeOnSiteSeconds)
	}
	return nil
}
