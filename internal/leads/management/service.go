// Package management provides the lead management service: detail reads,
// list queries, detail updates, lifecycle transitions, assignment,
// conversion, and the engagement entry point.
package management

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/assignment"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/ports"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/leads/scoring"
	"growthdesk_backend/internal/leads/transport"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/phone"
	"growthdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultActivityLimit = 50
	maxActivityLimit     = 200

	defaultCurrency = "USD"

	errEngagementNotConfigured = "engagement recorder not configured"
)

// Repository is the persistence surface the management service needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.RankReader
	repository.ActivityLogger
	repository.ConversionStore
}

// Scorer recalculates lead scores on demand.
type Scorer interface {
	Recalculate(ctx context.Context, leadID uuid.UUID, force bool) (*scoring.Result, error)
	RecalculateBulk(ctx context.Context, leadIDs []uuid.UUID, force bool) scoring.BulkOutcome
}

// Matcher picks the best staff member for a lead.
type Matcher interface {
	Pick(ctx context.Context, quality int, preferred *uuid.UUID) (assignment.Match, error)
}

// Service implements lead management use cases.
type Service struct {
	repo    Repository
	scorer  Scorer
	matcher Matcher
	staff   ports.StaffCounters
	nurture ports.NurtureCanceler
	engage  ports.EngagementRecorder
	bus     events.Bus
	log     *logger.Logger
}

// New creates the management service. The nurture canceler and engagement
// recorder are injected later via setters because the nurture module is
// constructed after the leads module.
func New(repo Repository, scorer Scorer, matcher Matcher, staff ports.StaffCounters, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		scorer:  scorer,
		matcher: matcher,
		staff:   staff,
		bus:     bus,
		log:     log,
	}
}

// SetNurtureCanceler sets the nurture canceler after initialization.
// This is needed to break circular dependencies during module initialization.
func (s *Service) SetNurtureCanceler(canceler ports.NurtureCanceler) {
	s.nurture = canceler
}

// SetEngagementRecorder sets the engagement recorder after initialization.
// This is needed to break circular dependencies during module initialization.
func (s *Service) SetEngagementRecorder(recorder ports.EngagementRecorder) {
	s.engage = recorder
}

// GetByID returns a single lead with its live intent signals and its
// rank within the active population.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	rank := 0
	if !lead.IsTerminal() && lead.LastScoredAt != nil {
		above, rankErr := s.repo.CountRankedAbove(ctx, lead.QualityScore, lead.ConversionProbability)
		if rankErr != nil {
			s.log.Warn("priority rank unavailable", "leadId", id, "error", rankErr)
		} else {
			rank = above + 1
		}
	}

	return ToLeadDetailResponse(lead, rank), nil
}

// List returns a filtered, paginated page of leads.
func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	statuses := make([]domain.Status, 0, len(req.Statuses))
	for _, st := range req.Statuses {
		statuses = append(statuses, domain.Status(st))
	}

	leads, total, err := s.repo.List(ctx, repository.ListParams{
		Statuses:        statuses,
		AssignedStaffID: req.AssignedStaffID,
		Search:          strings.TrimSpace(req.Search),
		Sort:            req.Sort,
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		return transport.LeadListResponse{}, err
	}

	items := make([]transport.LeadResponse, len(leads))
	for i, lead := range leads {
		items[i] = ToLeadResponse(lead)
	}

	totalPages := (total + pageSize - 1) / pageSize

	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Update edits a lead's contact details. Phone edits recompute the
// match key so dedupe keeps working against the new number.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateLeadRequest, actor domain.Actor) (transport.LeadResponse, error) {
	params := repository.UpdateLeadParams{}
	changed := make([]string, 0, 4)

	if req.FirstName != nil {
		name := sanitize.Text(*req.FirstName)
		if name == "" {
			return transport.LeadResponse{}, apperr.Validation("first name cannot be empty")
		}
		params.FirstName = &name
		changed = append(changed, "firstName")
	}
	if req.LastName != nil {
		name := sanitize.Text(*req.LastName)
		params.LastName = &name
		changed = append(changed, "lastName")
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return transport.LeadResponse{}, apperr.Validation("email cannot be cleared")
		}
		params.Email = &email
		changed = append(changed, "email")
	}
	if req.Phone != nil {
		normalized := phone.NormalizeE164(*req.Phone)
		if normalized == "" {
			return transport.LeadResponse{}, apperr.Validation("phone cannot be cleared")
		}
		key := phone.MatchKey(normalized)
		params.Phone = &normalized
		params.PhoneMatchKey = &key
		changed = append(changed, "phone")
	}

	if len(changed) == 0 {
		return s.GetByID(ctx, id)
	}

	updated, err := s.repo.UpdateDetails(ctx, id, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:  id,
		Actor:   actor,
		Action:  repository.ActionDetailsUpdated,
		Summary: "Contact details updated",
		Meta:    map[string]any{"fields": changed},
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", id, "action", repository.ActionDetailsUpdated, "error", err)
	}

	return ToLeadResponse(updated), nil
}

// ChangeStatus applies a manual lifecycle transition. Transitions the
// state machine forbids are rejected; CONVERTED and NURTURING have
// dedicated operations that carry their side effects.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, req transport.ChangeStatusRequest, actor domain.Actor) (transport.LeadResponse, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	target := domain.Status(req.Status)
	if target == current.Status {
		return ToLeadResponse(current), nil
	}

	switch target {
	case domain.StatusConverted:
		return transport.LeadResponse{}, apperr.Validation("conversions are recorded through the convert operation")
	case domain.StatusNurturing:
		return transport.LeadResponse{}, apperr.Validation("nurturing starts through the nurture operation")
	}

	if !domain.CanTransition(current.Status, target) {
		return transport.LeadResponse{}, apperr.InvalidState(fmt.Sprintf("cannot move lead from %s to %s", current.Status, target))
	}

	var updated domain.Lead
	var lostReason string
	if target == domain.StatusLost {
		lostReason = strings.TrimSpace(req.Reason)
		if lostReason == "" {
			lostReason = "manually marked lost"
		}
		updated, err = s.repo.MarkLost(ctx, id, lostReason, false)
		if err == nil {
			s.cancelNurture(ctx, id, "lead marked lost")
		}
	} else {
		updated, err = s.repo.UpdateStatus(ctx, id, target)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	action := repository.ActionStatusChanged
	summary := fmt.Sprintf("Status changed from %s to %s", current.Status, target)
	if current.IsTerminal() && target == domain.StatusNew {
		action = repository.ActionReactivated
		summary = fmt.Sprintf("Lead reactivated from %s", current.Status)
	}

	oldValue := string(current.Status)
	newValue := string(target)
	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:   id,
		Actor:    actor,
		Action:   action,
		Summary:  summary,
		OldValue: &oldValue,
		NewValue: &newValue,
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", id, "action", action, "error", err)
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    id,
		OldStatus: string(current.Status),
		NewStatus: string(target),
		ActorType: string(actor.Type),
		ActorID:   actor.UserID,
	})

	if target == domain.StatusLost {
		s.bus.Publish(ctx, events.LeadLost{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    id,
			Reason:    lostReason,
		})
	}

	return ToLeadResponse(updated), nil
}

// Assign routes a lead to a staff member, either the caller's preferred
// assignee or the best match by load and conversion history.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, req transport.AssignLeadRequest, actor domain.Actor) (transport.AssignmentResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.AssignmentResponse{}, apperr.NotFound("lead not found")
		}
		return transport.AssignmentResponse{}, err
	}
	if lead.IsTerminal() {
		return transport.AssignmentResponse{}, apperr.InvalidState(fmt.Sprintf("cannot assign a %s lead", lead.Status))
	}

	match, err := s.matcher.Pick(ctx, lead.QualityScore, req.PreferredStaffID)
	if err != nil {
		return transport.AssignmentResponse{}, err
	}

	updated, err := s.repo.Assign(ctx, id, match.StaffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.AssignmentResponse{}, apperr.NotFound("lead not found")
		}
		return transport.AssignmentResponse{}, err
	}

	if err := s.staff.RecordAssignment(ctx, match.StaffID); err != nil {
		s.log.Warn("staff assignment counter update failed", "staffId", match.StaffID, "error", err)
	}

	var oldValue *string
	if lead.AssignedStaffID != nil {
		prev := lead.AssignedStaffID.String()
		oldValue = &prev
	}
	newValue := match.StaffID.String()
	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:   id,
		Actor:    actor,
		Action:   repository.ActionAssigned,
		Summary:  fmt.Sprintf("Assigned to %s", match.StaffName),
		OldValue: oldValue,
		NewValue: &newValue,
		Meta: map[string]any{
			"matchScore": match.Score,
			"reason":     match.Reason,
			"preferred":  match.Preferred,
		},
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", id, "action", repository.ActionAssigned, "error", err)
	}

	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     id,
		StaffID:    match.StaffID,
		StaffName:  match.StaffName,
		MatchScore: match.Score,
		Reason:     match.Reason,
	})

	return transport.AssignmentResponse{
		Lead:       ToLeadResponse(updated),
		StaffID:    match.StaffID,
		StaffName:  match.StaffName,
		MatchScore: match.Score,
		Reason:     match.Reason,
		Preferred:  match.Preferred,
	}, nil
}

// Convert records a conversion and moves the lead to CONVERTED. The
// staff credit goes to the explicit staffId or falls back to the
// current assignee.
func (s *Service) Convert(ctx context.Context, id uuid.UUID, req transport.ConvertLeadRequest, actor domain.Actor) (transport.ConvertLeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.ConvertLeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.ConvertLeadResponse{}, err
	}

	if lead.Status == domain.StatusConverted {
		return transport.ConvertLeadResponse{}, apperr.Conflict("lead is already converted")
	}
	if !domain.CanTransition(lead.Status, domain.StatusConverted) {
		return transport.ConvertLeadResponse{}, apperr.InvalidState(fmt.Sprintf("cannot convert a %s lead", lead.Status))
	}

	staffID := req.StaffID
	if staffID == nil {
		staffID = lead.AssignedStaffID
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	var externalRef *string
	if ref := strings.TrimSpace(req.ExternalRef); ref != "" {
		externalRef = &ref
	}

	conv, err := s.repo.CreateConversion(ctx, repository.CreateConversionParams{
		LeadID:      id,
		StaffID:     staffID,
		Amount:      req.Amount,
		Currency:    currency,
		ExternalRef: externalRef,
		Notes:       sanitize.Text(req.Notes),
	})
	if err != nil {
		return transport.ConvertLeadResponse{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, domain.StatusConverted)
	if err != nil {
		return transport.ConvertLeadResponse{}, err
	}

	s.cancelNurture(ctx, id, "lead converted")

	if staffID != nil {
		if err := s.staff.RecordConversion(ctx, *staffID); err != nil {
			s.log.Warn("staff conversion counter update failed", "staffId", *staffID, "error", err)
		}
	}

	oldValue := string(lead.Status)
	newValue := string(domain.StatusConverted)
	meta := map[string]any{"conversionId": conv.ID}
	if req.Amount != nil {
		meta["amount"] = *req.Amount
		meta["currency"] = currency
	}
	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:   id,
		Actor:    actor,
		Action:   repository.ActionConverted,
		Summary:  "Lead converted to patient",
		OldValue: &oldValue,
		NewValue: &newValue,
		Meta:     meta,
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", id, "action", repository.ActionConverted, "error", err)
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    id,
		OldStatus: string(lead.Status),
		NewStatus: string(domain.StatusConverted),
		ActorType: string(actor.Type),
		ActorID:   actor.UserID,
	})
	s.bus.Publish(ctx, events.LeadConverted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       id,
		ConversionID: conv.ID,
		StaffID:      staffID,
	})

	return transport.ConvertLeadResponse{
		Lead:       ToLeadResponse(updated),
		Conversion: ToConversionResponse(conv),
	}, nil
}

// Score recalculates one lead's scores. Classification and routing run
// asynchronously off the scored event, so the returned status is the
// status at scoring time.
func (s *Service) Score(ctx context.Context, id uuid.UUID, req transport.ScoreLeadRequest) (transport.ScoreResponse, error) {
	result, err := s.scorer.Recalculate(ctx, id, req.ForceRecalculate)
	if err != nil {
		return transport.ScoreResponse{}, err
	}
	return ToScoreResponse(result), nil
}

// ScoreBulk recalculates scores for a batch of leads, isolating
// per-lead failures.
func (s *Service) ScoreBulk(ctx context.Context, req transport.BulkScoreRequest) (transport.BulkScoreResponse, error) {
	outcome := s.scorer.RecalculateBulk(ctx, req.LeadIDs, req.Force)
	return transport.BulkScoreResponse{
		Scored:   outcome.Scored,
		Cached:   outcome.Cached,
		Failed:   outcome.Failed,
		Failures: outcome.Failures,
	}, nil
}

// RecordEngagement applies an inbound engagement event to the lead and
// its active sequence run.
func (s *Service) RecordEngagement(ctx context.Context, id uuid.UUID, req transport.EngagementRequest) (transport.EngagementResponse, error) {
	if s.engage == nil {
		return transport.EngagementResponse{}, errors.New(errEngagementNotConfigured)
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	outcome, err := s.engage.Record(ctx, id, ports.EngagementInput{
		Type:       string(req.Type),
		Message:    req.Message,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return transport.EngagementResponse{}, err
	}

	return transport.EngagementResponse{
		LeadID:                id,
		Type:                  req.Type,
		EngagementScore:       outcome.EngagementScore,
		UrgencyScore:          outcome.UrgencyScore,
		Status:                transport.LeadStatus(outcome.Status),
		Escalated:             outcome.Escalated,
		EscalationReason:      outcome.EscalationReason,
		RequiresHumanFollowUp: outcome.RequiresHumanFollowUp,
	}, nil
}

// ListActivity returns the lead's audit trail, newest first.
func (s *Service) ListActivity(ctx context.Context, id uuid.UUID, limit, offset int) (transport.ActivityListResponse, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.ActivityListResponse{}, apperr.NotFound("lead not found")
		}
		return transport.ActivityListResponse{}, err
	}

	if limit < 1 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.ListActivity(ctx, id, limit, offset)
	if err != nil {
		return transport.ActivityListResponse{}, err
	}

	items := make([]transport.ActivityResponse, len(entries))
	for i, entry := range entries {
		items[i] = ToActivityResponse(entry)
	}
	return transport.ActivityListResponse{Items: items}, nil
}

// ListConversions returns the conversion records for a lead.
func (s *Service) ListConversions(ctx context.Context, id uuid.UUID) ([]transport.ConversionResponse, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}

	conversions, err := s.repo.ListConversions(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]transport.ConversionResponse, len(conversions))
	for i, conv := range conversions {
		items[i] = ToConversionResponse(conv)
	}
	return items, nil
}

// cancelNurture clears the lead's active sequence run and scheduled sends.
// Cancellation failures are logged, not propagated: the lifecycle change
// that triggered it has already been persisted.
func (s *Service) cancelNurture(ctx context.Context, id uuid.UUID, reason string) {
	if s.nurture == nil {
		s.log.Warn("nurture canceler not configured; scheduled sends not cleared", "leadId", id)
		return
	}
	if err := s.nurture.CancelForLead(ctx, id, reason); err != nil {
		s.log.Error("nurture cancel failed", "leadId", id, "reason", reason, "error", err)
	}
}
