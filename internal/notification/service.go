package notification

import (
	"context"
	"fmt"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Notification categories.
const (
	CategoryInfo       = "info"
	CategorySuccess    = "success"
	CategoryEscalation = "escalation"
	CategoryCompliance = "compliance"
)

const resourceTypeLead = "lead"

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Notification, error)
	List(ctx context.Context, staffID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, staffID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, staffID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, staffID uuid.UUID) (int, error)
}

type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// notify persists a notification; failures are logged, never propagated,
// because notification delivery must not fail the originating operation.
func (s *Service) notify(ctx context.Context, params CreateParams) {
	if params.Category == "" {
		params.Category = CategoryInfo
	}
	if _, err := s.store.Create(ctx, params); err != nil {
		s.log.Error("persist notification failed", "title", params.Title, "error", err)
	}
}

func (s *Service) List(ctx context.Context, staffID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	return s.store.List(ctx, staffID, unreadOnly, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context, staffID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, staffID)
}

func (s *Service) MarkRead(ctx context.Context, staffID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, staffID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, staffID uuid.UUID) (int, error) {
	return s.store.MarkAllRead(ctx, staffID)
}

// Subscribe wires the service to the domain events it reacts to.
func (s *Service) Subscribe(bus events.Bus) {
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(s.onLeadAssigned))
	bus.Subscribe(events.EscalationRaised{}.EventName(), events.HandlerFunc(s.onEscalationRaised))
	bus.Subscribe(events.LeadOptedOut{}.EventName(), events.HandlerFunc(s.onLeadOptedOut))
	bus.Subscribe(events.LeadConverted{}.EventName(), events.HandlerFunc(s.onLeadConverted))
}

func (s *Service) onLeadAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAssigned)
	if !ok {
		return nil
	}
	leadID := e.LeadID
	staffID := e.StaffID
	s.notify(ctx, CreateParams{
		StaffID:      &staffID,
		Title:        "New lead assigned to you",
		Content:      fmt.Sprintf("A lead was routed to you: %s", e.Reason),
		Category:     CategoryInfo,
		ResourceType: strPtr(resourceTypeLead),
		ResourceID:   &leadID,
	})
	return nil
}

// onEscalationRaised goes practice-wide: escalations need whoever sees
// them first, not just the assignee.
func (s *Service) onEscalationRaised(ctx context.Context, event events.Event) error {
	e, ok := event.(events.EscalationRaised)
	if !ok {
		return nil
	}
	leadID := e.LeadID
	s.notify(ctx, CreateParams{
		Title:        "Lead needs human follow-up",
		Content:      fmt.Sprintf("Escalation: %s", e.Reason),
		Category:     CategoryEscalation,
		ResourceType: strPtr(resourceTypeLead),
		ResourceID:   &leadID,
	})
	return nil
}

func (s *Service) onLeadOptedOut(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadOptedOut)
	if !ok {
		return nil
	}
	leadID := e.LeadID
	s.notify(ctx, CreateParams{
		Title:        "Lead opted out",
		Content:      "A lead opted out of all communication. All scheduled outreach was canceled.",
		Category:     CategoryCompliance,
		ResourceType: strPtr(resourceTypeLead),
		ResourceID:   &leadID,
	})
	return nil
}

func (s *Service) onLeadConverted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadConverted)
	if !ok {
		return nil
	}
	leadID := e.LeadID
	s.notify(ctx, CreateParams{
		StaffID:      e.StaffID,
		Title:        "Lead converted",
		Content:      "A lead became a patient.",
		Category:     CategorySuccess,
		ResourceType: strPtr(resourceTypeLead),
		ResourceID:   &leadID,
	})
	return nil
}

func strPtr(s string) *string { return &s }
