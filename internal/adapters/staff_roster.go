// Package adapters bridges module boundaries at the composition root.
// Each adapter translates one module's public surface into the narrow
// interface another module consumes, so the modules never import each
// other directly.
package adapters

import (
	"context"

	"growthdesk_backend/internal/leads/assignment"
	"growthdesk_backend/internal/leads/ports"
	"growthdesk_backend/internal/staff"
	"growthdesk_backend/internal/staff/repository"
	"growthdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// StaffRoster exposes the staff module as the assignment candidate
// source and the lead-ownership counter sink.
type StaffRoster struct {
	staff *staff.Service
}

func NewStaffRoster(svc *staff.Service) *StaffRoster {
	return &StaffRoster{staff: svc}
}

func (a *StaffRoster) ListActiveCandidates(ctx context.Context) ([]assignment.Candidate, error) {
	members, err := a.staff.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]assignment.Candidate, 0, len(members))
	for _, m := range members {
		candidates = append(candidates, toCandidate(m))
	}
	return candidates, nil
}

func (a *StaffRoster) GetActiveCandidate(ctx context.Context, id uuid.UUID) (assignment.Candidate, error) {
	member, err := a.staff.GetByID(ctx, id)
	if err != nil {
		return assignment.Candidate{}, err
	}
	if !member.Active {
		return assignment.Candidate{}, apperr.NotFound("staff member is not assignable")
	}
	return toCandidate(member), nil
}

func (a *StaffRoster) RecordAssignment(ctx context.Context, staffID uuid.UUID) error {
	return a.staff.RecordAssignment(ctx, staffID)
}

func (a *StaffRoster) RecordConversion(ctx context.Context, staffID uuid.UUID) error {
	return a.staff.RecordConversion(ctx, staffID)
}

func toCandidate(m repository.Member) assignment.Candidate {
	return assignment.Candidate{
		StaffID:        m.ID,
		Name:           m.Name,
		Role:           m.Role,
		OpenLeads:      m.OpenLeads,
		ConversionRate: m.ConversionRate,
	}
}

var (
	_ assignment.CandidateSource = (*StaffRoster)(nil)
	_ ports.StaffCounters        = (*StaffRoster)(nil)
)
