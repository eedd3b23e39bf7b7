package staff

import (
	"context"
	"testing"

	"growthdesk_backend/internal/staff/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	members map[uuid.UUID]repository.Member
}

func newFakeStore() *fakeStore {
	return &fakeStore{members: make(map[uuid.UUID]repository.Member)}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (repository.Member, error) {
	member, ok := s.members[id]
	if !ok {
		return repository.Member{}, repository.ErrNotFound
	}
	return member, nil
}

func (s *fakeStore) List(_ context.Context, includeInactive bool) ([]repository.Member, error) {
	var out []repository.Member
	for _, m := range s.members {
		if m.Active || includeInactive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActive(ctx context.Context) ([]repository.Member, error) {
	return s.List(ctx, false)
}

func (s *fakeStore) Create(_ context.Context, params repository.CreateParams) (repository.Member, error) {
	member := repository.Member{
		ID:     uuid.New(),
		Name:   params.Name,
		Role:   params.Role,
		Email:  params.Email,
		Active: true,
	}
	s.members[member.ID] = member
	return member, nil
}

func (s *fakeStore) Update(_ context.Context, id uuid.UUID, params repository.UpdateParams) (repository.Member, error) {
	member, ok := s.members[id]
	if !ok {
		return repository.Member{}, repository.ErrNotFound
	}
	if params.Name != nil {
		member.Name = *params.Name
	}
	if params.Role != nil {
		member.Role = *params.Role
	}
	if params.Email != nil {
		member.Email = params.Email
	}
	if params.Active != nil {
		member.Active = *params.Active
	}
	s.members[id] = member
	return member, nil
}

func (s *fakeStore) IncrementAssigned(_ context.Context, id uuid.UUID) error {
	member, ok := s.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	member.LeadsAssigned++
	s.members[id] = member
	return nil
}

func (s *fakeStore) IncrementConverted(_ context.Context, id uuid.UUID) error {
	member, ok := s.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	member.LeadsConverted++
	s.members[id] = member
	return nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, logger.New("development")), store
}

func TestCreateSanitizesAndNormalizes(t *testing.T) {
	svc, _ := newTestService()

	member, err := svc.Create(context.Background(), CreateInput{
		Name:  "  <b>Dr. Kim</b>  ",
		Role:  "optometrist",
		Email: " Kim@Example.COM ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if member.Name != "Dr. Kim" {
		t.Fatalf("name = %q, want sanitized %q", member.Name, "Dr. Kim")
	}
	if member.Email == nil || *member.Email != "kim@example.com" {
		t.Fatalf("email not lowercased: %v", member.Email)
	}
	if !member.Active {
		t.Fatal("new members must start active")
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{Name: "   "})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordAssignmentAndConversion(t *testing.T) {
	svc, store := newTestService()
	member, _ := svc.Create(context.Background(), CreateInput{Name: "Jamie"})

	if err := svc.RecordAssignment(context.Background(), member.ID); err != nil {
		t.Fatalf("RecordAssignment: %v", err)
	}
	if err := svc.RecordConversion(context.Background(), member.ID); err != nil {
		t.Fatalf("RecordConversion: %v", err)
	}

	got := store.members[member.ID]
	if got.LeadsAssigned != 1 || got.LeadsConverted != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", got.LeadsAssigned, got.LeadsConverted)
	}

	if err := svc.RecordAssignment(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found for unknown staff, got %v", err)
	}
}

func TestDeactivateViaUpdate(t *testing.T) {
	svc, _ := newTestService()
	member, _ := svc.Create(context.Background(), CreateInput{Name: "Jamie"})

	inactive := false
	updated, err := svc.Update(context.Background(), member.ID, UpdateInput{Active: &inactive})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Active {
		t.Fatal("member still active after deactivation")
	}

	active, _ := svc.ListActive(context.Background())
	if len(active) != 0 {
		t.Fatalf("deactivated member still assignable, roster size %d", len(active))
	}
}
