// Package staff manages the practice roster: who can own leads, their
// live workload, and their lifetime assignment and conversion counters.
package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"growthdesk_backend/internal/staff/repository"
	"growthdesk_backend/platform/apperr"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Member, error)
	List(ctx context.Context, includeInactive bool) ([]repository.Member, error)
	ListActive(ctx context.Context) ([]repository.Member, error)
	Create(ctx context.Context, params repository.CreateParams) (repository.Member, error)
	Update(ctx context.Context, id uuid.UUID, params repository.UpdateParams) (repository.Member, error)
	IncrementAssigned(ctx context.Context, id uuid.UUID) error
	IncrementConverted(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Member, error) {
	member, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Member{}, apperr.NotFound("staff member not found")
	}
	return member, err
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]repository.Member, error) {
	return s.store.List(ctx, includeInactive)
}

// ListActive returns the assignable roster with live load.
func (s *Service) ListActive(ctx context.Context) ([]repository.Member, error) {
	return s.store.ListActive(ctx)
}

type CreateInput struct {
	Name  string
	Role  string
	Email string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (repository.Member, error) {
	name := sanitize.Text(input.Name)
	if name == "" {
		return repository.Member{}, apperr.Validation("name is required")
	}

	params := repository.CreateParams{
		Name: name,
		Role: sanitize.Text(input.Role),
	}
	if email := strings.TrimSpace(strings.ToLower(input.Email)); email != "" {
		params.Email = &email
	}

	member, err := s.store.Create(ctx, params)
	if err != nil {
		return repository.Member{}, fmt.Errorf("create staff member: %w", err)
	}
	s.log.Info("staff member added", "staff_id", member.ID, "name", member.Name)
	return member, nil
}

type UpdateInput struct {
	Name   *string
	Role   *string
	Email  *string
	Active *bool
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (repository.Member, error) {
	params := repository.UpdateParams{Active: input.Active}
	if input.Name != nil {
		name := sanitize.Text(*input.Name)
		if name == "" {
			return repository.Member{}, apperr.Validation("name cannot be empty")
		}
		params.Name = &name
	}
	if input.Role != nil {
		role := sanitize.Text(*input.Role)
		params.Role = &role
	}
	if input.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*input.Email))
		params.Email = &email
	}

	member, err := s.store.Update(ctx, id, params)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Member{}, apperr.NotFound("staff member not found")
	}
	if err != nil {
		return repository.Member{}, fmt.Errorf("update staff member: %w", err)
	}

	if input.Active != nil && !*input.Active {
		s.log.Info("staff member deactivated", "staff_id", id)
	}
	return member, nil
}

// RecordAssignment bumps the lifetime assignment counter when a lead is
// routed to this member.
func (s *Service) RecordAssignment(ctx context.Context, id uuid.UUID) error {
	if err := s.store.IncrementAssigned(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("staff member not found")
		}
		return fmt.Errorf("record assignment: %w", err)
	}
	return nil
}

// RecordConversion bumps the conversion counter when this member closes
// a lead.
func (s *Service) RecordConversion(ctx context.Context, id uuid.UUID) error {
	if err := s.store.IncrementConverted(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("staff member not found")
		}
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}
