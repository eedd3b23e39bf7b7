package intake

import (
	"context"
	"strings"
	"sync"
	"testing"

	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type testLeadStore struct {
	mu         sync.Mutex
	leads      []domain.Lead
	creates    int
	merges     int
	activities []repository.AddActivityParams
}

func (s *testLeadStore) FindByEmail(_ context.Context, email string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.Email != nil && strings.EqualFold(*l.Email, email) && !l.IsTerminal() {
			return l, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (s *testLeadStore) FindByPhoneKey(_ context.Context, key string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.PhoneMatchKey != nil && *l.PhoneMatchKey == key && !l.IsTerminal() {
			return l, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (s *testLeadStore) Create(_ context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead := domain.Lead{
		ID:                uuid.New(),
		FirstName:         params.FirstName,
		LastName:          params.LastName,
		Email:             params.Email,
		Phone:             params.Phone,
		PhoneMatchKey:     params.PhoneMatchKey,
		Source:            params.Source,
		Status:            domain.StatusNew,
		WebsiteVisits:     params.WebsiteVisits,
		PageViews:         params.PageViews,
		TimeOnSiteSeconds: params.TimeOnSiteSeconds,
		FormAbandoned:     params.FormAbandoned,
		LastPageViewed:    params.LastPageViewed,
		LastVisitAt:       params.LastVisitAt,
	}
	s.leads = append(s.leads, lead)
	s.creates++
	return lead, nil
}

func (s *testLeadStore) MergeCapture(_ context.Context, id uuid.UUID, params repository.MergeCaptureParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.leads {
		if l.ID != id {
			continue
		}
		if l.FirstName == "" {
			l.FirstName = params.FirstName
		}
		if l.LastName == "" {
			l.LastName = params.LastName
		}
		if l.Email == nil {
			l.Email = params.Email
		}
		if l.Phone == nil {
			l.Phone = params.Phone
			l.PhoneMatchKey = params.PhoneMatchKey
		}
		l.WebsiteVisits += params.WebsiteVisits
		l.PageViews += params.PageViews
		l.TimeOnSiteSeconds += params.TimeOnSiteSeconds
		l.FormAbandoned = l.FormAbandoned || params.FormAbandoned
		if params.LastVisitAt != nil {
			l.LastVisitAt = params.LastVisitAt
		}
		s.leads[i] = l
		s.merges++
		return l, nil
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (s *testLeadStore) AddActivity(_ context.Context, params repository.AddActivityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, params)
	return nil
}

type testBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *testBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *testBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *testBus) Subscribe(string, events.Handler) {}

func (b *testBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.published))
	for _, e := range b.published {
		names = append(names, e.EventName())
	}
	return names
}

func newTestService() (*Service, *testLeadStore, *testBus) {
	store := &testLeadStore{}
	bus := &testBus{}
	return New(store, bus, logger.New("development")), store, bus
}

func TestCaptureCreatesNewLead(t *testing.T) {
	svc, store, bus := newTestService()

	outcome, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "Dana",
		LastName:  "Reyes",
		Email:     "Dana.Reyes@Example.com",
		Source:    "Walk-In",
		Counters:  domain.BehavioralCounters{WebsiteVisits: 1, PageViews: 2},
	})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}

	if !outcome.Created || outcome.Merged {
		t.Fatalf("expected a created lead, got %+v", outcome)
	}
	if store.creates != 1 {
		t.Fatalf("expected one create, got %d", store.creates)
	}
	if outcome.Lead.Source != domain.SourceWalkIn {
		t.Fatalf("expected normalized walk_in source, got %s", outcome.Lead.Source)
	}
	if outcome.Lead.Email == nil || *outcome.Lead.Email != "dana.reyes@example.com" {
		t.Fatalf("expected lowercased email, got %v", outcome.Lead.Email)
	}
	if outcome.Lead.LastVisitAt == nil {
		t.Fatal("expected capture with visits to stamp a last visit time")
	}

	if len(store.activities) != 1 || store.activities[0].Action != repository.ActionCaptured {
		t.Fatalf("expected a captured activity entry, got %+v", store.activities)
	}
	names := bus.names()
	if len(names) != 1 || names[0] != "leads.lead.captured" {
		t.Fatalf("expected a single captured event, got %v", names)
	}
}

func TestCaptureMergesByEmail(t *testing.T) {
	svc, store, bus := newTestService()

	first, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "Dana",
		Email:     "dana@example.com",
		Source:    "website",
		Counters:  domain.BehavioralCounters{WebsiteVisits: 2, PageViews: 3, TimeOnSiteSeconds: 100},
	})
	if err != nil {
		t.Fatalf("first capture returned error: %v", err)
	}

	second, err := svc.Capture(context.Background(), CaptureInput{
		LastName: "Reyes",
		Email:    "DANA@example.com",
		Source:   "website",
		Counters: domain.BehavioralCounters{WebsiteVisits: 1, PageViews: 4, TimeOnSiteSeconds: 120, FormAbandoned: true},
	})
	if err != nil {
		t.Fatalf("second capture returned error: %v", err)
	}

	if !second.Merged || second.Created {
		t.Fatalf("expected a merge, got %+v", second)
	}
	if second.MatchedBy != "email" {
		t.Fatalf("expected email match, got %q", second.MatchedBy)
	}
	if second.Lead.ID != first.Lead.ID {
		t.Fatal("expected merge into the first lead")
	}
	if second.Lead.WebsiteVisits != 3 || second.Lead.PageViews != 7 || second.Lead.TimeOnSiteSeconds != 220 {
		t.Fatalf("expected summed counters 3/7/220, got %d/%d/%d",
			second.Lead.WebsiteVisits, second.Lead.PageViews, second.Lead.TimeOnSiteSeconds)
	}
	if !second.Lead.FormAbandoned {
		t.Fatal("expected abandoned flag to stick after merge")
	}
	if second.Lead.LastName != "Reyes" {
		t.Fatalf("expected gap-filled last name, got %q", second.Lead.LastName)
	}
	if store.merges != 1 {
		t.Fatalf("expected one merge, got %d", store.merges)
	}

	names := bus.names()
	merged := 0
	for _, n := range names {
		if n == "leads.lead.merged" {
			merged++
		}
	}
	if merged != 1 {
		t.Fatalf("expected one merged event, got %v", names)
	}
}

func TestCaptureMergesByPhoneAcrossFormats(t *testing.T) {
	svc, store, _ := newTestService()

	first, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "Sam",
		Phone:     "(212) 555-0147",
		Source:    "referral",
		Counters:  domain.BehavioralCounters{WebsiteVisits: 1},
	})
	if err != nil {
		t.Fatalf("first capture returned error: %v", err)
	}

	second, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "Sam",
		Email:     "sam@example.com",
		Phone:     "+1 212 555 0147",
		Source:    "website",
		Counters:  domain.BehavioralCounters{WebsiteVisits: 1},
	})
	if err != nil {
		t.Fatalf("second capture returned error: %v", err)
	}

	if !second.Merged || second.MatchedBy != "phone" {
		t.Fatalf("expected phone merge, got %+v", second)
	}
	if second.Lead.ID != first.Lead.ID {
		t.Fatal("expected differently formatted numbers to match the same lead")
	}
	if second.Lead.Email == nil || *second.Lead.Email != "sam@example.com" {
		t.Fatalf("expected merge to fill the email gap, got %v", second.Lead.Email)
	}
	if store.creates != 1 {
		t.Fatalf("expected a single created lead, got %d", store.creates)
	}
}

func TestCaptureSkipsTerminalLeads(t *testing.T) {
	svc, store, _ := newTestService()

	email := "lost@example.com"
	store.leads = append(store.leads, domain.Lead{
		ID:     uuid.New(),
		Email:  &email,
		Status: domain.StatusLost,
	})

	outcome, err := svc.Capture(context.Background(), CaptureInput{
		Email:    email,
		Source:   "website",
		Counters: domain.BehavioralCounters{WebsiteVisits: 1},
	})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if !outcome.Created {
		t.Fatal("expected a new lead instead of resurrecting a lost one")
	}
}

func TestCaptureRequiresContactChannel(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "Ghost",
		Source:    "website",
	})
	if err == nil {
		t.Fatal("expected error for capture without contact channel")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCaptureRejectsNegativeCounters(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Capture(context.Background(), CaptureInput{
		Email:    "dana@example.com",
		Source:   "website",
		Counters: domain.BehavioralCounters{WebsiteVisits: -1},
	})
	if err == nil {
		t.Fatal("expected error for negative counters")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCaptureStripsMarkupFromNames(t *testing.T) {
	svc, _, _ := newTestService()

	outcome, err := svc.Capture(context.Background(), CaptureInput{
		FirstName: "<script>alert(1)</script>Dana",
		Email:     "dana@example.com",
		Source:    "website",
		Counters:  domain.BehavioralCounters{WebsiteVisits: 1},
	})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if strings.Contains(outcome.Lead.FirstName, "<") {
		t.Fatalf("expected markup stripped from name, got %q", outcome.Lead.FirstName)
	}
}
