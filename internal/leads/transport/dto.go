package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enum values accepted on the wire. They mirror the domain enums so the
// validate tags reject bad values before a service sees them.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusScoring   LeadStatus = "SCORING"
	LeadStatusHot       LeadStatus = "HOT"
	LeadStatusWarm      LeadStatus = "WARM"
	LeadStatusCold      LeadStatus = "COLD"
	LeadStatusNurturing LeadStatus = "NURTURING"
	LeadStatusReady     LeadStatus = "READY"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusLost      LeadStatus = "LOST"
)

type LeadSource string

const (
	LeadSourceWebsite    LeadSource = "website"
	LeadSourceReferral   LeadSource = "referral"
	LeadSourceSocial     LeadSource = "social"
	LeadSourceWalkIn     LeadSource = "walk_in"
	LeadSourcePaidSearch LeadSource = "paid_search"
	LeadSourceOther      LeadSource = "other"
)

type EngagementType string

const (
	EngagementEmailOpened   EngagementType = "email_opened"
	EngagementLinkClicked   EngagementType = "link_clicked"
	EngagementReplyReceived EngagementType = "reply_received"
	EngagementSMSReply      EngagementType = "sms_reply"
	EngagementOptOut        EngagementType = "opt_out"
)

// Request DTOs

// BehaviorPayload carries the tracked browsing counters a capture may
// attach. Sources without tracking (walk-ins, phone referrals) omit it.
type BehaviorPayload struct {
	WebsiteVisits     int        `json:"websiteVisits" validate:"min=0"`
	PageViews         int        `json:"pageViews" validate:"min=0"`
	TimeOnSiteSeconds int        `json:"timeOnSiteSeconds" validate:"min=0"`
	FormAbandoned     bool       `json:"formAbandoned"`
	LastPageViewed    string     `json:"lastPageViewed,omitempty" validate:"max=500"`
	LastVisitAt       *time.Time `json:"lastVisitAt,omitempty"`
}

type CreateLeadRequest struct {
	FirstName string           `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string           `json:"lastName,omitempty" validate:"max=100"`
	Email     string           `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string           `json:"phone,omitempty" validate:"omitempty,min=5,max=32"`
	Source    string           `json:"source,omitempty" validate:"max=50"`
	Behavior  *BehaviorPayload `json:"behavior,omitempty"`
}

type UpdateLeadRequest struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,min=5,max=32"`
}

type ChangeStatusRequest struct {
	Status LeadStatus `json:"status" validate:"required,oneof=NEW SCORING HOT WARM COLD NURTURING READY CONVERTED LOST"`
	Reason string     `json:"reason,omitempty" validate:"max=500"`
}

type AssignLeadRequest struct {
	PreferredStaffID *uuid.UUID `json:"preferredStaffId,omitempty" validate:"omitempty"`
}

type ScoreLeadRequest struct {
	ForceRecalculate bool `json:"forceRecalculate"`
}

type BulkScoreRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=500"`
	Force   bool        `json:"force"`
}

type ConvertLeadRequest struct {
	StaffID     *uuid.UUID `json:"staffId,omitempty" validate:"omitempty"`
	Amount      *float64   `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExternalRef string     `json:"externalRef,omitempty" validate:"max=100"`
	Notes       string     `json:"notes,omitempty" validate:"max=2000"`
}

type EngagementRequest struct {
	Type       EngagementType `json:"type" validate:"required,oneof=email_opened link_clicked reply_received sms_reply opt_out"`
	Message    string         `json:"message,omitempty" validate:"max=2000"`
	OccurredAt *time.Time     `json:"occurredAt,omitempty"`
}

type ListLeadsRequest struct {
	Statuses        []LeadStatus `form:"status" validate:"omitempty,dive,oneof=NEW SCORING HOT WARM COLD NURTURING READY CONVERTED LOST"`
	AssignedStaffID *uuid.UUID   `form:"assignedTo"`
	Search          string       `form:"search" validate:"max=100"`
	Sort            string       `form:"sort" validate:"omitempty,oneof=newest priority"`
	Page            int          `form:"page" validate:"min=0"`
	PageSize        int          `form:"pageSize" validate:"min=0,max=100"`
}

// Response DTOs

// FactorBreakdown mirrors the persisted quality factor vector.
type FactorBreakdown struct {
	VisitFrequency  int `json:"visitFrequency"`
	PageDepth       int `json:"pageDepth"`
	DwellTime       int `json:"dwellTime"`
	FormFriction    int `json:"formFriction"`
	EmailEngagement int `json:"emailEngagement"`
	SourceQuality   int `json:"sourceQuality"`
}

type RecommendationResponse struct {
	Assessment string `json:"assessment"`
	NextAction string `json:"nextAction"`
}

type LeadResponse struct {
	ID                    uuid.UUID        `json:"id"`
	FirstName             string           `json:"firstName"`
	LastName              string           `json:"lastName"`
	Email                 *string          `json:"email,omitempty"`
	Phone                 *string          `json:"phone,omitempty"`
	Source                LeadSource       `json:"source"`
	Status                LeadStatus       `json:"status"`
	WebsiteVisits         int              `json:"websiteVisits"`
	PageViews             int              `json:"pageViews"`
	TimeOnSiteSeconds     int              `json:"timeOnSiteSeconds"`
	FormAbandoned         bool             `json:"formAbandoned"`
	LastPageViewed        *string          `json:"lastPageViewed,omitempty"`
	LastVisitAt           *time.Time       `json:"lastVisitAt,omitempty"`
	EmailsOpened          int              `json:"emailsOpened"`
	LinksClicked          int              `json:"linksClicked"`
	RepliesReceived       int              `json:"repliesReceived"`
	QualityScore          int              `json:"qualityScore"`
	UrgencyScore          int              `json:"urgencyScore"`
	ConversionProbability float64          `json:"conversionProbability"`
	FactorBreakdown       *FactorBreakdown `json:"factorBreakdown,omitempty"`
	ScoreVersion          string           `json:"scoreVersion,omitempty"`
	Recommendation        string           `json:"recommendation,omitempty"`
	SuggestedAction       string           `json:"suggestedAction,omitempty"`
	RequiresHumanFollowUp bool             `json:"requiresHumanFollowUp"`
	OptedOut              bool             `json:"optedOut"`
	LostReason            *string          `json:"lostReason,omitempty"`
	AssignedStaffID       *uuid.UUID       `json:"assignedStaffId,omitempty"`
	ActiveSequenceKey     *string          `json:"activeSequenceKey,omitempty"`
	CurrentStepNumber     int              `json:"currentStepNumber,omitempty"`
	IntentSignals         []string         `json:"intentSignals,omitempty"`
	PriorityRank          *int             `json:"priorityRank,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
	LastScoredAt          *time.Time       `json:"lastScoredAt,omitempty"`
	NurtureStartedAt      *time.Time       `json:"nurtureStartedAt,omitempty"`
	ConvertedAt           *time.Time       `json:"convertedAt,omitempty"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type CaptureResponse struct {
	Lead      LeadResponse `json:"lead"`
	Created   bool         `json:"created"`
	Merged    bool         `json:"merged"`
	MatchedBy string       `json:"matchedBy,omitempty"`
}

type ScoreResponse struct {
	LeadID          uuid.UUID              `json:"leadId"`
	QualityScore    int                    `json:"qualityScore"`
	UrgencyScore    int                    `json:"urgencyScore"`
	Probability     float64                `json:"probability"`
	FactorBreakdown FactorBreakdown        `json:"factorBreakdown"`
	Recommendation  RecommendationResponse `json:"recommendation"`
	IntentSignals   []string               `json:"intentSignals,omitempty"`
	Status          LeadStatus             `json:"status"`
	ScoreVersion    string                 `json:"scoreVersion"`
	ScoredAt        time.Time              `json:"scoredAt"`
	Cached          bool                   `json:"cached"`
}

type BulkScoreResponse struct {
	Scored   int               `json:"scored"`
	Cached   int               `json:"cached"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

type AssignmentResponse struct {
	Lead       LeadResponse `json:"lead"`
	StaffID    uuid.UUID    `json:"staffId"`
	StaffName  string       `json:"staffName"`
	MatchScore float64      `json:"matchScore"`
	Reason     string       `json:"reason"`
	Preferred  bool         `json:"preferred"`
}

type ConversionResponse struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	StaffID     *uuid.UUID `json:"staffId,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Currency    string     `json:"currency"`
	ExternalRef *string    `json:"externalRef,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ConvertLeadResponse struct {
	Lead       LeadResponse       `json:"lead"`
	Conversion ConversionResponse `json:"conversion"`
}

type ActivityResponse struct {
	ID        uuid.UUID       `json:"id"`
	ActorType string          `json:"actorType"`
	ActorID   *uuid.UUID      `json:"actorId,omitempty"`
	Action    string          `json:"action"`
	Summary   string          `json:"summary"`
	OldValue  *string         `json:"oldValue,omitempty"`
	NewValue  *string         `json:"newValue,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
}

type EngagementResponse struct {
	LeadID                uuid.UUID      `json:"leadId"`
	Type                  EngagementType `json:"type"`
	EngagementScore       int            `json:"engagementScore"`
	UrgencyScore          int            `json:"urgencyScore"`
	Status                LeadStatus     `json:"status"`
	Escalated             bool           `json:"escalated"`
	EscalationReason      string         `json:"escalationReason,omitempty"`
	RequiresHumanFollowUp bool           `json:"requiresHumanFollowUp"`
}
