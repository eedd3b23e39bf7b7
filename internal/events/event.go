// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"growthdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCaptured is published after the intake path created a new lead or
// merged a capture into an existing one.
type LeadCaptured struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	Source       string    `json:"source"`
	SourceDomain string    `json:"sourceDomain,omitempty"`
	Merged       bool      `json:"merged"`
}

func (e LeadCaptured) EventName() string { return "leads.lead.captured" }

// LeadMerged is published when a duplicate capture was folded into an
// existing lead matched by email or phone.
type LeadMerged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	MatchedBy string    `json:"matchedBy"` // "email" or "phone"
}

func (e LeadMerged) EventName() string { return "leads.lead.merged" }

// LeadScored is published after a scoring pass wrote fresh scores.
// Cached passes (freshness window hit) do not publish.
type LeadScored struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	Quality     int       `json:"quality"`
	Urgency     int       `json:"urgency"`
	Probability float64   `json:"probability"`
}

func (e LeadScored) EventName() string { return "leads.lead.scored" }

// LeadStatusChanged is published on every lifecycle transition,
// automatic or manual.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID  `json:"leadId"`
	OldStatus string     `json:"oldStatus"`
	NewStatus string     `json:"newStatus"`
	ActorType string     `json:"actorType"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadAssigned is published when the matcher picked an owner for a lead.
type LeadAssigned struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	StaffID    uuid.UUID `json:"staffId"`
	StaffName  string    `json:"staffName"`
	MatchScore float64   `json:"matchScore"`
	Reason     string    `json:"reason"`
}

func (e LeadAssigned) EventName() string { return "leads.lead.assigned" }

// LeadConverted is published when a conversion record links a lead to a
// realized patient.
type LeadConverted struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	ConversionID uuid.UUID  `json:"conversionId"`
	StaffID      *uuid.UUID `json:"staffId,omitempty"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

// LeadLost is published when a lead reaches LOST, by opt-out or manual loss.
type LeadLost struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Reason string    `json:"reason"`
}

func (e LeadLost) EventName() string { return "leads.lead.lost" }

// LeadOptedOut is published on the compliance path before any other
// opt-out side effects run.
type LeadOptedOut struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadOptedOut) EventName() string { return "leads.lead.opted_out" }

// =============================================================================
// Nurture Domain Events
// =============================================================================

// NurtureStarted is published when a sequence run begins for a lead.
type NurtureStarted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	RunID       uuid.UUID `json:"runId"`
	SequenceKey string    `json:"sequenceKey"`
	TotalSteps  int       `json:"totalSteps"`
	Restarted   bool      `json:"restarted"`
}

func (e NurtureStarted) EventName() string { return "nurture.run.started" }

// NurtureAdvanced is published after a step was sent and the run moved on.
type NurtureAdvanced struct {
	BaseEvent
	LeadID      uuid.UUID  `json:"leadId"`
	RunID       uuid.UUID  `json:"runId"`
	SequenceKey string     `json:"sequenceKey"`
	SentStep    int        `json:"sentStep"`
	NextSendAt  *time.Time `json:"nextSendAt,omitempty"`
}

func (e NurtureAdvanced) EventName() string { return "nurture.run.advanced" }

// NurtureCompleted is published when the final step of a run was sent.
type NurtureCompleted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	RunID       uuid.UUID `json:"runId"`
	SequenceKey string    `json:"sequenceKey"`
	ExitStatus  string    `json:"exitStatus"`
}

func (e NurtureCompleted) EventName() string { return "nurture.run.completed" }

// NurturePaused is published when a run is paused manually.
type NurturePaused struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	RunID  uuid.UUID `json:"runId"`
}

func (e NurturePaused) EventName() string { return "nurture.run.paused" }

// NurtureResumed is published when a paused run is resumed.
type NurtureResumed struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	RunID  uuid.UUID `json:"runId"`
}

func (e NurtureResumed) EventName() string { return "nurture.run.resumed" }

// EngagementReceived is published after an engagement event mutated the
// lead, carrying the recomputed engagement score.
type EngagementReceived struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	RunID           *uuid.UUID `json:"runId,omitempty"`
	Type            string     `json:"type"`
	EngagementScore int        `json:"engagementScore"`
}

func (e EngagementReceived) EventName() string { return "nurture.engagement.received" }

// EscalationRaised is published when an engagement signal forces the lead
// in front of a human (reply, second link click in a sequence).
type EscalationRaised struct {
	BaseEvent
	LeadID uuid.UUID  `json:"leadId"`
	RunID  *uuid.UUID `json:"runId,omitempty"`
	Reason string     `json:"reason"`
}

func (e EscalationRaised) EventName() string { return "nurture.escalation.raised" }

// =============================================================================
// Scheduler Domain Events
// =============================================================================

// ScheduledMessageDue is published by the scheduler worker when a
// scheduled nurture message should be delivered.
type ScheduledMessageDue struct {
	BaseEvent
	MessageID uuid.UUID `json:"messageId"`
	LeadID    uuid.UUID `json:"leadId"`
}

func (e ScheduledMessageDue) EventName() string { return "scheduler.message.due" }
