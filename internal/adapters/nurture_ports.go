package adapters

import (
	"context"

	"growthdesk_backend/internal/leads/ports"
	"growthdesk_backend/internal/nurture"

	"github.com/google/uuid"
)

// NurtureBridge exposes the nurture service through the ports the leads
// module depends on: starting runs, canceling them, and recording
// engagement.
type NurtureBridge struct {
	nurture *nurture.Service
}

func NewNurtureBridge(svc *nurture.Service) *NurtureBridge {
	return &NurtureBridge{nurture: svc}
}

func (a *NurtureBridge) Start(ctx context.Context, leadID uuid.UUID) error {
	return a.nurture.Start(ctx, leadID)
}

func (a *NurtureBridge) CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) error {
	return a.nurture.CancelForLead(ctx, leadID, reason)
}

func (a *NurtureBridge) Record(ctx context.Context, leadID uuid.UUID, input ports.EngagementInput) (ports.EngagementOutcome, error) {
	result, err := a.nurture.Record(ctx, leadID, input.Type, input.Message)
	if err != nil {
		return ports.EngagementOutcome{}, err
	}
	return ports.EngagementOutcome{
		EngagementScore:       result.EngagementScore,
		UrgencyScore:          result.UrgencyScore,
		Status:                string(result.Status),
		Escalated:             result.Escalated,
		EscalationReason:      result.EscalationReason,
		RequiresHumanFollowUp: result.RequiresHumanFollowUp,
	}, nil
}

var (
	_ ports.NurtureStarter     = (*NurtureBridge)(nil)
	_ ports.NurtureCanceler    = (*NurtureBridge)(nil)
	_ ports.EngagementRecorder = (*NurtureBridge)(nil)
)
