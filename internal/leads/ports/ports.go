// Package ports defines the interfaces the leads domain requires from
// other modules. They form an anti-corruption layer: leads only knows
// about the data it needs, shaped the way it wants, and never imports
// the staff or nurture domains directly.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StaffCounters updates roster statistics when lead ownership changes.
// The implementation is provided by the composition root and wraps the
// staff service.
type StaffCounters interface {
	// RecordAssignment increments the staff member's open lead count.
	RecordAssignment(ctx context.Context, staffID uuid.UUID) error

	// RecordConversion moves one lead from open to converted for the
	// staff member who closed it.
	RecordConversion(ctx context.Context, staffID uuid.UUID) error
}

// NurtureStarter begins an automated follow-up sequence for a lead.
// Sequence selection happens on the other side of the port; leads only
// asks for nurturing to start.
type NurtureStarter interface {
	// Start selects a sequence for the lead and schedules its first
	// send. Starting a lead that already has an active run is a no-op.
	Start(ctx context.Context, leadID uuid.UUID) error
}

// NurtureCanceler stops an active sequence run when a lead leaves the
// automated pipeline (conversion, manual loss, opt-out).
type NurtureCanceler interface {
	// CancelForLead cancels the lead's active run, if any, and clears
	// its scheduled sends before returning.
	CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) error
}

// EngagementInput is one inbound engagement event on a lead.
type EngagementInput struct {
	Type       string // email_opened, link_clicked, reply_received, sms_reply, opt_out
	Message    string // reply body, when the channel carries one
	OccurredAt time.Time
}

// EngagementOutcome reports how an engagement event moved the lead.
type EngagementOutcome struct {
	EngagementScore       int
	UrgencyScore          int
	Status                string
	Escalated             bool
	EscalationReason      string
	RequiresHumanFollowUp bool
}

// EngagementRecorder applies engagement events to leads and their
// active sequence runs. Implemented by the nurture module, which owns
// the run state the scoring rules depend on.
type EngagementRecorder interface {
	Record(ctx context.Context, leadID uuid.UUID, input EngagementInput) (EngagementOutcome, error)
}
