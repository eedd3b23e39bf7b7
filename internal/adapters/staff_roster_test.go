package adapters

import (
	"context"
	"testing"

	"growthdesk_backend/internal/staff"
	"growthdesk_backend/internal/staff/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStaffStore struct {
	members map[uuid.UUID]repository.Member
}

func (f *fakeStaffStore) GetByID(_ context.Context, id uuid.UUID) (repository.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return repository.Member{}, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeStaffStore) List(_ context.Context, includeInactive bool) ([]repository.Member, error) {
	var out []repository.Member
	for _, m := range f.members {
		if m.Active || includeInactive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStaffStore) ListActive(ctx context.Context) ([]repository.Member, error) {
	return f.List(ctx, false)
}

func (f *fakeStaffStore) Create(_ context.Context, params repository.CreateParams) (repository.Member, error) {
	m := repository.Member{ID: uuid.New(), Name: params.Name, Role: params.Role, Active: true}
	f.members[m.ID] = m
	return m, nil
}

func (f *fakeStaffStore) Update(_ context.Context, id uuid.UUID, params repository.UpdateParams) (repository.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return repository.Member{}, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeStaffStore) IncrementAssigned(_ context.Context, id uuid.UUID) error {
	if _, ok := f.members[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (f *fakeStaffStore) IncrementConverted(_ context.Context, id uuid.UUID) error {
	if _, ok := f.members[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func newRoster(members ...repository.Member) *StaffRoster {
	store := &fakeStaffStore{members: make(map[uuid.UUID]repository.Member)}
	for _, m := range members {
		store.members[m.ID] = m
	}
	return NewStaffRoster(staff.NewService(store, logger.New("development")))
}

func TestListActiveCandidatesMapsRosterStats(t *testing.T) {
	member := repository.Member{
		ID:             uuid.New(),
		Name:           "Dr. Kim",
		Role:           "dentist",
		Active:         true,
		OpenLeads:      4,
		ConversionRate: 0.62,
	}
	roster := newRoster(member, repository.Member{ID: uuid.New(), Name: "Former", Active: false})

	candidates, err := roster.ListActiveCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListActiveCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (inactive excluded)", len(candidates))
	}
	got := candidates[0]
	if got.StaffID != member.ID || got.Name != "Dr. Kim" || got.Role != "dentist" {
		t.Errorf("candidate identity mismatch: %+v", got)
	}
	if got.OpenLeads != 4 || got.ConversionRate != 0.62 {
		t.Errorf("candidate stats mismatch: %+v", got)
	}
}

func TestGetActiveCandidateRejectsInactive(t *testing.T) {
	inactive := repository.Member{ID: uuid.New(), Name: "Former", Active: false}
	roster := newRoster(inactive)

	_, err := roster.GetActiveCandidate(context.Background(), inactive.ID)
	if err == nil {
		t.Fatal("expected error for inactive member")
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("error kind = %v, want not found", err)
	}
}
