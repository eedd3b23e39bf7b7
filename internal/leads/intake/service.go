// Package intake is the single entry point for new lead captures. It
// dedupes against the existing book by email, then phone, and either
// merges the capture into the matched lead or creates a fresh one.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/phone"
	"growthdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// LeadStore is the slice of the repository intake needs.
type LeadStore interface {
	FindByEmail(ctx context.Context, email string) (domain.Lead, error)
	FindByPhoneKey(ctx context.Context, key string) (domain.Lead, error)
	Create(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error)
	MergeCapture(ctx context.Context, id uuid.UUID, params repository.MergeCaptureParams) (domain.Lead, error)
	AddActivity(ctx context.Context, params repository.AddActivityParams) error
}

// CaptureInput is a normalized capture payload, already validated at the
// transport boundary.
type CaptureInput struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Source       string
	SourceDomain string
	Counters     domain.BehavioralCounters
}

// Outcome reports what the capture did.
type Outcome struct {
	Lead      domain.Lead `json:"lead"`
	Created   bool        `json:"created"`
	Merged    bool        `json:"merged"`
	MatchedBy string      `json:"matchedBy,omitempty"` // "email" or "phone"
}

// Service folds captures into the lead book.
type Service struct {
	repo LeadStore
	bus  events.Bus
	log  *logger.Logger
}

func New(repo LeadStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Capture merges the payload into an existing unconverted lead matched by
// email, then phone, or creates a new lead. Counters are summed on merge;
// identity fields only fill gaps, never overwrite.
func (s *Service) Capture(ctx context.Context, input CaptureInput) (*Outcome, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	rawPhone := strings.TrimSpace(input.Phone)
	if email == "" && rawPhone == "" {
		return nil, apperr.Validation("a lead needs an email address or a phone number")
	}
	if err := input.Counters.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	source := domain.NormalizeSource(input.Source)
	firstName := sanitize.Text(input.FirstName)
	lastName := sanitize.Text(input.LastName)

	var phoneE164, matchKey *string
	if rawPhone != "" {
		normalized := phone.NormalizeE164(rawPhone)
		phoneE164 = &normalized
		if key := phone.MatchKey(rawPhone); key != "" {
			matchKey = &key
		}
	}
	var emailPtr *string
	if email != "" {
		emailPtr = &email
	}

	counters := input.Counters
	// A capture with visit activity but no timestamp happened just now:
	// the tracker reports at visit time.
	if counters.LastVisitAt == nil && counters.WebsiteVisits > 0 {
		now := time.Now().UTC()
		counters.LastVisitAt = &now
	}
	var lastPage *string
	if page := sanitize.Text(counters.LastPageViewed); page != "" {
		lastPage = &page
	}

	if existing, matchedBy, ok, err := s.findExisting(ctx, email, matchKey); err != nil {
		return nil, err
	} else if ok {
		return s.merge(ctx, existing, matchedBy, mergeParams(firstName, lastName, emailPtr, phoneE164, matchKey, counters, lastPage), input.SourceDomain)
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		FirstName:         firstName,
		LastName:          lastName,
		Email:             emailPtr,
		Phone:             phoneE164,
		PhoneMatchKey:     matchKey,
		Source:            source,
		WebsiteVisits:     counters.WebsiteVisits,
		PageViews:         counters.PageViews,
		TimeOnSiteSeconds: counters.TimeOnSiteSeconds,
		FormAbandoned:     counters.FormAbandoned,
		LastPageViewed:    lastPage,
		LastVisitAt:       counters.LastVisitAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:  lead.ID,
		Actor:   domain.SystemActor(),
		Action:  repository.ActionCaptured,
		Summary: fmt.Sprintf("Captured new lead from source %q", source),
	}); err != nil {
		s.log.Error("capture activity write failed", "leadId", lead.ID, "error", err)
	}

	s.bus.Publish(ctx, events.LeadCaptured{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		Source:       string(source),
		SourceDomain: input.SourceDomain,
		Merged:       false,
	})

	return &Outcome{Lead: lead, Created: true}, nil
}

// findExisting tries the email match first, then the phone key. Both
// lookups skip terminal leads so captures never resurrect a closed record.
func (s *Service) findExisting(ctx context.Context, email string, matchKey *string) (domain.Lead, string, bool, error) {
	if email != "" {
		lead, err := s.repo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return lead, "email", true, nil
		case !errors.Is(err, repository.ErrNotFound):
			return domain.Lead{}, "", false, err
		}
	}

	if matchKey != nil {
		lead, err := s.repo.FindByPhoneKey(ctx, *matchKey)
		switch {
		case err == nil:
			return lead, "phone", true, nil
		case !errors.Is(err, repository.ErrNotFound):
			return domain.Lead{}, "", false, err
		}
	}

	return domain.Lead{}, "", false, nil
}

func (s *Service) merge(ctx context.Context, existing domain.Lead, matchedBy string, params repository.MergeCaptureParams, sourceDomain string) (*Outcome, error) {
	lead, err := s.repo.MergeCapture(ctx, existing.ID, params)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddActivity(ctx, repository.AddActivityParams{
		LeadID:  lead.ID,
		Actor:   domain.SystemActor(),
		Action:  repository.ActionMerged,
		Summary: fmt.Sprintf("Merged duplicate capture matched by %s", matchedBy),
		Meta: map[string]any{
			"matchedBy":      matchedBy,
			"addedVisits":    params.WebsiteVisits,
			"addedPageViews": params.PageViews,
		},
	}); err != nil {
		s.log.Error("merge activity write failed", "leadId", lead.ID, "error", err)
	}

	s.bus.Publish(ctx, events.LeadMerged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		MatchedBy: matchedBy,
	})
	s.bus.Publish(ctx, events.LeadCaptured{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		Source:       string(lead.Source),
		SourceDomain: sourceDomain,
		Merged:       true,
	})

	return &Outcome{Lead: lead, Merged: true, MatchedBy: matchedBy}, nil
}

func mergeParams(firstName, lastName string, email, phoneE164, matchKey *string, counters domain.BehavioralCounters, lastPage *string) repository.MergeCaptureParams {
	return repository.MergeCaptureParams{
		FirstName:         firstName,
		LastName:          lastName,
		Email:             email,
		Phone:             phoneE164,
		PhoneMatchKey:     matchKey,
		WebsiteVisits:     counters.WebsiteVisits,
		PageViews:         counters.PageViews,
		TimeOnSiteSeconds: counters.TimeOnSiteSeconds,
		FormAbandoned:     counters.FormAbandoned,
		LastPageViewed:    lastPage,
		LastVisitAt:       counters.LastVisitAt,
	}
}
