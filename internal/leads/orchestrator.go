package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/ports"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/leads/scoring"
	"growthdesk_backend/internal/leads/transport"
	"growthdesk_backend/platform/logger"
)

// ScoreRunner recalculates lead scores for the pipeline.
type ScoreRunner interface {
	Recalculate(ctx context.Context, leadID uuid.UUID, force bool) (*scoring.Result, error)
	RecalculateBulk(ctx context.Context, leadIDs []uuid.UUID, force bool) scoring.BulkOutcome
}

// LeadAssigner routes a lead to a staff member. Implemented by the
// management service so automatic assignment shares the manual path's
// side effects.
type LeadAssigner interface {
	Assign(ctx context.Context, id uuid.UUID, req transport.AssignLeadRequest, actor domain.Actor) (transport.AssignmentResponse, error)
}

// Orchestrator drives the automated pipeline: captured leads get
// scored, scored leads get classified, and fresh classifications route
// to assignment or nurturing. Each handler runs on the bus's dispatch
// goroutine; the guard map keeps concurrent events for the same lead
// from racing each other.
type Orchestrator struct {
	repo     repository.LeadsRepository
	scorer   ScoreRunner
	assigner LeadAssigner
	nurture  ports.NurtureStarter
	bus      events.Bus
	log      *logger.Logger

	activeRuns map[string]bool
	runsMu     sync.Mutex
}

func NewOrchestrator(repo repository.LeadsRepository, scorer ScoreRunner, assigner LeadAssigner, bus events.Bus, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		scorer:     scorer,
		assigner:   assigner,
		bus:        bus,
		log:        log,
		activeRuns: make(map[string]bool),
	}
}

// SetNurtureStarter sets the nurture starter after initialization.
// This is needed to break circular dependencies during module initialization.
func (o *Orchestrator) SetNurtureStarter(starter ports.NurtureStarter) {
	o.nurture = starter
}

// Subscribe registers the orchestrator's event handlers on the bus.
// Called once during module wiring.
func (o *Orchestrator) Subscribe(bus events.Bus) {
	bus.Subscribe(events.LeadCaptured{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		if evt, ok := event.(events.LeadCaptured); ok {
			o.OnLeadCaptured(ctx, evt)
		}
		return nil
	}))
	bus.Subscribe(events.LeadScored{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		if evt, ok := event.(events.LeadScored); ok {
			o.OnLeadScored(ctx, evt)
		}
		return nil
	}))
}

// markRunning attempts to mark a pipeline step as active for a lead.
// Returns false if the step is already running.
func (o *Orchestrator) markRunning(step string, leadID uuid.UUID) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()

	key := step + ":" + leadID.String()
	if o.activeRuns[key] {
		return false
	}
	o.activeRuns[key] = true
	return true
}

// markComplete removes the active step marker.
func (o *Orchestrator) markComplete(step string, leadID uuid.UUID) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()

	delete(o.activeRuns, step+":"+leadID.String())
}

// OnLeadCaptured scores a freshly captured or merged lead. Captures
// always force a recalculation: a merge changed the behavioral
// counters, and a brand-new lead has no score at all.
func (o *Orchestrator) OnLeadCaptured(ctx context.Context, evt events.LeadCaptured) {
	if !o.markRunning("score", evt.LeadID) {
		o.log.Info("orchestrator: scoring already running for lead, skipping", "leadId", evt.LeadID)
		return
	}
	defer o.markComplete("score", evt.LeadID)

	if !evt.Merged {
		if err := o.moveToScoring(ctx, evt.LeadID); err != nil {
			o.log.Error("orchestrator: failed to mark lead scoring", "leadId", evt.LeadID, "error", err)
		}
	}

	if _, err := o.scorer.Recalculate(ctx, evt.LeadID, true); err != nil {
		o.log.Error("orchestrator: scoring failed after capture", "leadId", evt.LeadID, "error", err)
	}
}

// moveToScoring flags a new lead while its first scoring pass runs.
func (o *Orchestrator) moveToScoring(ctx context.Context, leadID uuid.UUID) error {
	lead, err := o.repo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.Status != domain.StatusNew {
		return nil
	}

	if _, err := o.repo.UpdateStatus(ctx, leadID, domain.StatusScoring); err != nil {
		return err
	}

	o.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		OldStatus: string(domain.StatusNew),
		NewStatus: string(domain.StatusScoring),
		ActorType: string(domain.ActorSystem),
	})
	return nil
}

// OnLeadScored classifies a lead after a fresh scoring pass and routes
// it: HOT leads go straight to a staff member, WARM and settled NEW
// leads enter nurturing, COLD leads wait for a human decision. Leads
// outside NEW and SCORING keep whatever status a human or the nurture
// flow gave them.
func (o *Orchestrator) OnLeadScored(ctx context.Context, evt events.LeadScored) {
	if !o.markRunning("route", evt.LeadID) {
		o.log.Info("orchestrator: routing already running for lead, skipping", "leadId", evt.LeadID)
		return
	}
	defer o.markComplete("route", evt.LeadID)

	lead, err := o.repo.GetByID(ctx, evt.LeadID)
	if err != nil {
		o.log.Error("orchestrator: failed to load scored lead", "leadId", evt.LeadID, "error", err)
		return
	}
	if lead.Status != domain.StatusNew && lead.Status != domain.StatusScoring {
		return
	}

	now := time.Now().UTC()
	newStatus, changed := domain.ClassifyOnScore(lead.Status, evt.Quality, evt.Urgency, evt.Probability, lead.AgeDays(now))

	if changed {
		oldStatus := string(lead.Status)
		updated, err := o.repo.UpdateStatus(ctx, evt.LeadID, newStatus)
		if err != nil {
			o.log.Error("orchestrator: failed to apply classification", "leadId", evt.LeadID, "status", newStatus, "error", err)
			return
		}
		lead = updated
		o.recordClassification(ctx, evt, oldStatus, newStatus)
	}

	switch newStatus {
	case domain.StatusHot:
		o.assignHotLead(ctx, lead)
	case domain.StatusWarm, domain.StatusNew:
		if o.nurture == nil {
			o.log.Warn("orchestrator: nurture starter not configured, lead not enrolled", "leadId", evt.LeadID)
			return
		}
		if err := o.nurture.Start(ctx, evt.LeadID); err != nil {
			o.log.Error("orchestrator: nurture start failed", "leadId", evt.LeadID, "error", err)
		}
	}
}

func (o *Orchestrator) recordClassification(ctx context.Context, evt events.LeadScored, oldStatus string, newStatus domain.Status) {
	newValue := string(newStatus)
	if err := o.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:   evt.LeadID,
		Actor:    domain.AgentActor(),
		Action:   repository.ActionStatusChanged,
		Summary:  fmt.Sprintf("Auto-classified as %s after scoring", newStatus),
		OldValue: &oldStatus,
		NewValue: &newValue,
		Meta: map[string]any{
			"quality":     evt.Quality,
			"urgency":     evt.Urgency,
			"probability": evt.Probability,
		},
	}); err != nil {
		o.log.Warn("orchestrator: activity write failed", "leadId", evt.LeadID, "error", err)
	}

	o.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    evt.LeadID,
		OldStatus: oldStatus,
		NewStatus: string(newStatus),
		ActorType: string(domain.ActorAutomatedAgent),
	})
}

// assignHotLead hands a hot lead to the best available staff member.
// When nobody is available the lead is flagged for human follow-up
// instead of silently staying unrouted.
func (o *Orchestrator) assignHotLead(ctx context.Context, lead domain.Lead) {
	if lead.AssignedStaffID != nil {
		o.log.Info("orchestrator: hot lead already assigned", "leadId", lead.ID, "staffId", *lead.AssignedStaffID)
		return
	}

	resp, err := o.assigner.Assign(ctx, lead.ID, transport.AssignLeadRequest{}, domain.AgentActor())
	if err != nil {
		o.log.Error("orchestrator: hot lead could not be assigned", "leadId", lead.ID, "error", err)
		o.escalateUnassigned(ctx, lead.ID)
		return
	}

	o.log.Info("orchestrator: hot lead assigned",
		"leadId", lead.ID,
		"staffId", resp.StaffID,
		"matchScore", resp.MatchScore,
	)
}

func (o *Orchestrator) escalateUnassigned(ctx context.Context, leadID uuid.UUID) {
	reason := "hot lead could not be auto-assigned"

	if err := o.repo.SetRequiresHumanFollowUp(ctx, leadID, true); err != nil {
		o.log.Error("orchestrator: failed to flag lead for follow-up", "leadId", leadID, "error", err)
	}

	if err := o.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:  leadID,
		Actor:   domain.AgentActor(),
		Action:  repository.ActionEscalated,
		Summary: "Hot lead needs manual assignment: no staff available",
	}); err != nil {
		o.log.Warn("orchestrator: activity write failed", "leadId", leadID, "error", err)
	}

	o.bus.Publish(ctx, events.EscalationRaised{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Reason:    reason,
	})
}

// RescoreStale recalculates every active lead whose score left the
// freshness window, so age decay keeps pulling idle leads down without
// waiting for new events. Invoked periodically by the scheduler.
func (o *Orchestrator) RescoreStale(ctx context.Context, limit int) (scoring.BulkOutcome, error) {
	cutoff := time.Now().UTC().Add(-domain.ScoreFreshnessWindow)
	ids, err := o.repo.ListStaleActiveIDs(ctx, cutoff, limit)
	if err != nil {
		return scoring.BulkOutcome{}, err
	}
	if len(ids) == 0 {
		return scoring.BulkOutcome{}, nil
	}

	outcome := o.scorer.RecalculateBulk(ctx, ids, false)
	o.log.Info("orchestrator: stale rescore pass complete",
		"scanned", len(ids),
		"scored", outcome.Scored,
		"cached", outcome.Cached,
		"failed", outcome.Failed,
	)
	return outcome, nil
}
