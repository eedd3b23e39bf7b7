package management

import (
	"context"
	"strings"
	"sync"
	"testing"
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

	"github.com/google/uuid"
)

type testRepo struct {
	mu          sync.Mutex
	leads       map[uuid.UUID]domain.Lead
	rankedAbove int
	activities  []repository.AddActivityParams
	conversions []repository.Conversion
	listParams  repository.ListParams
	listLeads   []domain.Lead
	listTotal   int
}

func newTestRepo() *testRepo {
	return &testRepo{leads: make(map[uuid.UUID]domain.Lead)}
}

func (r *testRepo) put(lead domain.Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = lead
}

func (r *testRepo) get(id uuid.UUID) domain.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leads[id]
}

func (r *testRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (r *testRepo) FindByEmail(context.Context, string) (domain.Lead, error) {
	return domain.Lead{}, repository.ErrNotFound
}

func (r *testRepo) FindByPhoneKey(context.Context, string) (domain.Lead, error) {
	return domain.Lead{}, repository.ErrNotFound
}

func (r *testRepo) List(_ context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listParams = params
	return r.listLeads, r.listTotal, nil
}

func (r *testRepo) Create(_ context.Context, _ repository.CreateLeadParams) (domain.Lead, error) {
	return domain.Lead{}, nil
}

func (r *testRepo) MergeCapture(_ context.Context, _ uuid.UUID, _ repository.MergeCaptureParams) (domain.Lead, error) {
	return domain.Lead{}, repository.ErrNotFound
}

func (r *testRepo) UpdateDetails(_ context.Context, id uuid.UUID, params repository.UpdateLeadParams) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if params.FirstName != nil {
		lead.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		lead.LastName = *params.LastName
	}
	if params.Email != nil {
		lead.Email = params.Email
	}
	if params.Phone != nil {
		lead.Phone = params.Phone
	}
	if params.PhoneMatchKey != nil {
		lead.PhoneMatchKey = params.PhoneMatchKey
	}
	r.leads[id] = lead
	return lead, nil
}

func (r *testRepo) UpdateScores(_ context.Context, id uuid.UUID, _ repository.ScoreUpdate) (domain.Lead, error) {
	return r.GetByID(context.Background(), id)
}

func (r *testRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.Status = status
	r.leads[id] = lead
	return lead, nil
}

func (r *testRepo) MarkLost(_ context.Context, id uuid.UUID, reason string, optedOut bool) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.Status = domain.StatusLost
	lead.LostReason = &reason
	if optedOut {
		lead.OptedOut = true
	}
	r.leads[id] = lead
	return lead, nil
}

func (r *testRepo) Assign(_ context.Context, id uuid.UUID, staffID uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.AssignedStaffID = &staffID
	r.leads[id] = lead
	return lead, nil
}

func (r *testRepo) IncrementEngagement(_ context.Context, id uuid.UUID, _, _, _ int) (domain.Lead, error) {
	return r.GetByID(context.Background(), id)
}

func (r *testRepo) BumpUrgency(_ context.Context, id uuid.UUID, _ int) (domain.Lead, error) {
	return r.GetByID(context.Background(), id)
}

func (r *testRepo) SetRequiresHumanFollowUp(context.Context, uuid.UUID, bool) error {
	return nil
}

func (r *testRepo) CountRankedAbove(context.Context, int, float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rankedAbove, nil
}

func (r *testRepo) AddActivity(_ context.Context, params repository.AddActivityParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, params)
	return nil
}

func (r *testRepo) ListActivity(context.Context, uuid.UUID, int, int) ([]repository.Activity, error) {
	return nil, nil
}

func (r *testRepo) CreateConversion(_ context.Context, params repository.CreateConversionParams) (repository.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv := repository.Conversion{
		ID:          uuid.New(),
		LeadID:      params.LeadID,
		StaffID:     params.StaffID,
		Amount:      params.Amount,
		Currency:    params.Currency,
		ExternalRef: params.ExternalRef,
		Notes:       params.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	r.conversions = append(r.conversions, conv)
	return conv, nil
}

func (r *testRepo) ListConversions(context.Context, uuid.UUID) ([]repository.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversions, nil
}

type testScorer struct {
	result *scoring.Result
	err    error
}

func (s *testScorer) Recalculate(context.Context, uuid.UUID, bool) (*scoring.Result, error) {
	return s.result, s.err
}

func (s *testScorer) RecalculateBulk(_ context.Context, ids []uuid.UUID, _ bool) scoring.BulkOutcome {
	return scoring.BulkOutcome{Scored: len(ids)}
}

type testMatcher struct {
	match assignment.Match
	err   error
	calls int
}

func (m *testMatcher) Pick(context.Context, int, *uuid.UUID) (assignment.Match, error) {
	m.calls++
	return m.match, m.err
}

type testStaffCounters struct {
	assigned  []uuid.UUID
	converted []uuid.UUID
}

func (c *testStaffCounters) RecordAssignment(_ context.Context, staffID uuid.UUID) error {
	c.assigned = append(c.assigned, staffID)
	return nil
}

func (c *testStaffCounters) RecordConversion(_ context.Context, staffID uuid.UUID) error {
	c.converted = append(c.converted, staffID)
	return nil
}

type testCanceler struct {
	calls   int
	reasons []string
}

func (c *testCanceler) CancelForLead(_ context.Context, _ uuid.UUID, reason string) error {
	c.calls++
	c.reasons = append(c.reasons, reason)
	return nil
}

type testEngagementRecorder struct {
	outcome ports.EngagementOutcome
	err     error
	inputs  []ports.EngagementInput
}

func (r *testEngagementRecorder) Record(_ context.Context, _ uuid.UUID, input ports.EngagementInput) (ports.EngagementOutcome, error) {
	r.inputs = append(r.inputs, input)
	return r.outcome, r.err
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

func (b *testBus) PublishSync(_ context.Context, event events.Event) error {
	b.Publish(context.Background(), event)
	return nil
}

func (b *testBus) Subscribe(string, events.Handler) {}

func (b *testBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, e := range b.published {
		out[i] = e.EventName()
	}
	return out
}

type fixture struct {
	svc     *Service
	repo    *testRepo
	scorer  *testScorer
	matcher *testMatcher
	staff   *testStaffCounters
	cancel  *testCanceler
	engage  *testEngagementRecorder
	bus     *testBus
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newTestRepo(),
		scorer:  &testScorer{},
		matcher: &testMatcher{},
		staff:   &testStaffCounters{},
		cancel:  &testCanceler{},
		engage:  &testEngagementRecorder{},
		bus:     &testBus{},
	}
	f.svc = New(f.repo, f.scorer, f.matcher, f.staff, f.bus, logger.New("development"))
	f.svc.SetNurtureCanceler(f.cancel)
	f.svc.SetEngagementRecorder(f.engage)
	return f
}

func storedLead(mutate func(*domain.Lead)) domain.Lead {
	now := time.Now().UTC()
	scored := now.Add(-time.Hour)
	lead := domain.Lead{
		ID:            uuid.New(),
		FirstName:     "Dana",
		LastName:      "Whitfield",
		Source:        domain.SourceWebsite,
		Status:        domain.StatusWarm,
		WebsiteVisits: 3,
		PageViews:     6,
		QualityScore:  55,
		UrgencyScore:  40,
		ScoreVersion:  scoring.Version,
		CreatedAt:     now.Add(-48 * time.Hour),
		UpdatedAt:     now,
		LastScoredAt:  &scored,
	}
	if mutate != nil {
		mutate(&lead)
	}
	return lead
}

func TestGetByIDComputesRankAndSignals(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)
	f.repo.rankedAbove = 4

	resp, err := f.svc.GetByID(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("expected lead, got error %v", err)
	}
	if resp.PriorityRank == nil || *resp.PriorityRank != 5 {
		t.Fatalf("expected priority rank 5, got %v", resp.PriorityRank)
	}
	if len(resp.IntentSignals) == 0 {
		t.Fatalf("expected intent signals for a lead with %d visits", lead.WebsiteVisits)
	}
}

func TestGetByIDSkipsRankForTerminalLead(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.Status = domain.StatusConverted })
	f.repo.put(lead)
	f.repo.rankedAbove = 4

	resp, err := f.svc.GetByID(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("expected lead, got error %v", err)
	}
	if resp.PriorityRank != nil {
		t.Fatalf("expected no rank for a converted lead, got %d", *resp.PriorityRank)
	}
}

func TestGetByIDUnknownLead(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetByID(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListClampsPaging(t *testing.T) {
	f := newFixture()
	f.repo.listLeads = []domain.Lead{storedLead(nil)}
	f.repo.listTotal = 41

	resp, err := f.svc.List(context.Background(), transport.ListLeadsRequest{Page: 0, PageSize: 0})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	if resp.Page != 1 || resp.PageSize != 20 {
		t.Fatalf("expected defaults 1/20, got %d/%d", resp.Page, resp.PageSize)
	}
	if resp.TotalPages != 3 {
		t.Fatalf("expected 3 pages for 41 leads at 20 per page, got %d", resp.TotalPages)
	}

	if _, err := f.svc.List(context.Background(), transport.ListLeadsRequest{PageSize: 500}); err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	if f.repo.listParams.PageSize != 100 {
		t.Fatalf("expected page size clamped to 100, got %d", f.repo.listParams.PageSize)
	}
}

func TestListMapsStatusFilter(t *testing.T) {
	f := newFixture()

	_, err := f.svc.List(context.Background(), transport.ListLeadsRequest{
		Statuses: []transport.LeadStatus{transport.LeadStatusHot, transport.LeadStatusWarm},
		Sort:     "priority",
	})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	if len(f.repo.listParams.Statuses) != 2 || f.repo.listParams.Statuses[0] != domain.StatusHot {
		t.Fatalf("expected status filter [HOT WARM], got %v", f.repo.listParams.Statuses)
	}
	if f.repo.listParams.Sort != "priority" {
		t.Fatalf("expected priority sort passed through, got %q", f.repo.listParams.Sort)
	}
}

func TestUpdateNormalizesPhoneAndEmail(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)

	rawPhone := "(212) 555-0147"
	rawEmail := "Dana.Whitfield@Example.COM"
	resp, err := f.svc.Update(context.Background(), lead.ID, transport.UpdateLeadRequest{
		Phone: &rawPhone,
		Email: &rawEmail,
	}, domain.HumanActor(uuid.New()))
	if err != nil {
		t.Fatalf("expected update, got error %v", err)
	}
	if resp.Phone == nil || *resp.Phone != "+12125550147" {
		t.Fatalf("expected E.164 phone, got %v", resp.Phone)
	}
	if resp.Email == nil || *resp.Email != "dana.whitfield@example.com" {
		t.Fatalf("expected lowercased email, got %v", resp.Email)
	}

	stored := f.repo.get(lead.ID)
	if stored.PhoneMatchKey == nil || *stored.PhoneMatchKey != "+12125550147" {
		t.Fatalf("expected match key recomputed, got %v", stored.PhoneMatchKey)
	}
	if len(f.repo.activities) != 1 || f.repo.activities[0].Action != repository.ActionDetailsUpdated {
		t.Fatalf("expected one details_updated activity, got %+v", f.repo.activities)
	}
}

func TestUpdateRejectsEmptyFirstName(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)

	empty := "   "
	_, err := f.svc.Update(context.Background(), lead.ID, transport.UpdateLeadRequest{FirstName: &empty}, domain.SystemActor())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChangeStatusEnforcesTransitions(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.Status = domain.StatusReady })
	f.repo.put(lead)

	_, err := f.svc.ChangeStatus(context.Background(), lead.ID, transport.ChangeStatusRequest{Status: transport.LeadStatusCold}, domain.SystemActor())
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state for READY to COLD, got %v", err)
	}
}

func TestChangeStatusRejectsReservedTargets(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)

	for _, target := range []transport.LeadStatus{transport.LeadStatusConverted, transport.LeadStatusNurturing} {
		_, err := f.svc.ChangeStatus(context.Background(), lead.ID, transport.ChangeStatusRequest{Status: target}, domain.SystemActor())
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %s, got %v", target, err)
		}
	}
}

func TestChangeStatusToLostCancelsNurture(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.Status = domain.StatusNurturing })
	f.repo.put(lead)

	resp, err := f.svc.ChangeStatus(context.Background(), lead.ID, transport.ChangeStatusRequest{
		Status: transport.LeadStatusLost,
		Reason: "went with another practice",
	}, domain.HumanActor(uuid.New()))
	if err != nil {
		t.Fatalf("expected transition, got error %v", err)
	}
	if resp.Status != transport.LeadStatusLost {
		t.Fatalf("expected LOST, got %s", resp.Status)
	}
	if resp.LostReason == nil || *resp.LostReason != "went with another practice" {
		t.Fatalf("expected lost reason persisted, got %v", resp.LostReason)
	}
	if f.cancel.calls != 1 {
		t.Fatalf("expected one nurture cancel, got %d", f.cancel.calls)
	}

	names := f.bus.names()
	if len(names) != 2 || names[0] != "leads.status.changed" || names[1] != "leads.lead.lost" {
		t.Fatalf("expected status change and lost events, got %v", names)
	}
}

func TestChangeStatusReactivation(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) {
		l.Status = domain.StatusLost
		l.OptedOut = true
	})
	f.repo.put(lead)

	resp, err := f.svc.ChangeStatus(context.Background(), lead.ID, transport.ChangeStatusRequest{Status: transport.LeadStatusNew}, domain.HumanActor(uuid.New()))
	if err != nil {
		t.Fatalf("expected reactivation, got error %v", err)
	}
	if resp.Status != transport.LeadStatusNew {
		t.Fatalf("expected NEW, got %s", resp.Status)
	}
	if !resp.OptedOut {
		t.Fatal("expected opt-out to survive reactivation")
	}
	if len(f.repo.activities) != 1 || f.repo.activities[0].Action != repository.ActionReactivated {
		t.Fatalf("expected reactivated activity, got %+v", f.repo.activities)
	}
}

func TestChangeStatusSameStatusIsNoOp(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)

	resp, err := f.svc.ChangeStatus(context.Background(), lead.ID, transport.ChangeStatusRequest{Status: transport.LeadStatusWarm}, domain.SystemActor())
	if err != nil {
		t.Fatalf("expected no-op, got error %v", err)
	}
	if resp.Status != transport.LeadStatusWarm {
		t.Fatalf("expected WARM, got %s", resp.Status)
	}
	if len(f.bus.names()) != 0 {
		t.Fatalf("expected no events for a no-op, got %v", f.bus.names())
	}
}

func TestAssignRoutesThroughMatcher(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.QualityScore = 80 })
	f.repo.put(lead)

	staffID := uuid.New()
	f.matcher.match = assignment.Match{
		StaffID:   staffID,
		StaffName: "Dr. Reyes",
		Score:     125,
		Reason:    "Best available match",
	}

	resp, err := f.svc.Assign(context.Background(), lead.ID, transport.AssignLeadRequest{}, domain.AgentActor())
	if err != nil {
		t.Fatalf("expected assignment, got error %v", err)
	}
	if resp.StaffID != staffID || resp.StaffName != "Dr. Reyes" {
		t.Fatalf("expected match surfaced, got %+v", resp)
	}
	if resp.Lead.AssignedStaffID == nil || *resp.Lead.AssignedStaffID != staffID {
		t.Fatalf("expected lead assigned, got %v", resp.Lead.AssignedStaffID)
	}
	if len(f.staff.assigned) != 1 || f.staff.assigned[0] != staffID {
		t.Fatalf("expected assignment counter bump, got %v", f.staff.assigned)
	}

	names := f.bus.names()
	if len(names) != 1 || names[0] != "leads.lead.assigned" {
		t.Fatalf("expected assigned event, got %v", names)
	}
}

func TestAssignRejectsTerminalLead(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.Status = domain.StatusLost })
	f.repo.put(lead)

	_, err := f.svc.Assign(context.Background(), lead.ID, transport.AssignLeadRequest{}, domain.SystemActor())
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if f.matcher.calls != 0 {
		t.Fatalf("expected matcher untouched, got %d calls", f.matcher.calls)
	}
}

func TestConvertRecordsConversionAndCreditsStaff(t *testing.T) {
	f := newFixture()
	staffID := uuid.New()
	lead := storedLead(func(l *domain.Lead) {
		l.Status = domain.StatusReady
		l.AssignedStaffID = &staffID
	})
	f.repo.put(lead)

	amount := 450.0
	resp, err := f.svc.Convert(context.Background(), lead.ID, transport.ConvertLeadRequest{
		Amount: &amount,
		Notes:  "booked initial consultation",
	}, domain.HumanActor(uuid.New()))
	if err != nil {
		t.Fatalf("expected conversion, got error %v", err)
	}
	if resp.Lead.Status != transport.LeadStatusConverted {
		t.Fatalf("expected CONVERTED, got %s", resp.Lead.Status)
	}
	if resp.Conversion.StaffID == nil || *resp.Conversion.StaffID != staffID {
		t.Fatalf("expected conversion credited to assignee, got %v", resp.Conversion.StaffID)
	}
	if resp.Conversion.Currency != "USD" {
		t.Fatalf("expected default currency USD, got %q", resp.Conversion.Currency)
	}
	if len(f.staff.converted) != 1 || f.staff.converted[0] != staffID {
		t.Fatalf("expected conversion counter bump, got %v", f.staff.converted)
	}
	if f.cancel.calls != 1 {
		t.Fatalf("expected nurture cancel on conversion, got %d", f.cancel.calls)
	}

	names := strings.Join(f.bus.names(), ",")
	if !strings.Contains(names, "leads.status.changed") || !strings.Contains(names, "leads.lead.converted") {
		t.Fatalf("expected status change and converted events, got %s", names)
	}
}

func TestConvertTwiceConflicts(t *testing.T) {
	f := newFixture()
	lead := storedLead(func(l *domain.Lead) { l.Status = domain.StatusConverted })
	f.repo.put(lead)

	_, err := f.svc.Convert(context.Background(), lead.ID, transport.ConvertLeadRequest{}, domain.SystemActor())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRecordEngagementDelegates(t *testing.T) {
	f := newFixture()
	lead := storedLead(nil)
	f.repo.put(lead)
	f.engage.outcome = ports.EngagementOutcome{
		EngagementScore:       45,
		UrgencyScore:          65,
		Status:                string(domain.StatusHot),
		Escalated:             true,
		EscalationReason:      "lead replied to a nurture message",
		RequiresHumanFollowUp: true,
	}

	resp, err := f.svc.RecordEngagement(context.Background(), lead.ID, transport.EngagementRequest{
		Type:    transport.EngagementReplyReceived,
		Message: "Yes, I'd like to book a consultation",
	})
	if err != nil {
		t.Fatalf("expected engagement recorded, got error %v", err)
	}
	if resp.Status != transport.LeadStatusHot || !resp.Escalated || !resp.RequiresHumanFollowUp {
		t.Fatalf("expected escalated hot outcome, got %+v", resp)
	}
	if len(f.engage.inputs) != 1 || f.engage.inputs[0].Type != "reply_received" {
		t.Fatalf("expected reply passed to recorder, got %+v", f.engage.inputs)
	}
	if f.engage.inputs[0].OccurredAt.IsZero() {
		t.Fatal("expected occurredAt defaulted to now")
	}
}
