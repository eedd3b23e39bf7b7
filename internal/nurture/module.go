package nurture

import (
	"fmt"

	"growthdesk_backend/internal/events"
	apphttp "growthdesk_backend/internal/http"
	leadsrepo "growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/nurture/catalog"
	"growthdesk_backend/internal/nurture/classifier"
	"growthdesk_backend/internal/nurture/content"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the nurture bounded context: sequence catalog, run
// lifecycle, send scheduling, and engagement handling.
type Module struct {
	service *Service
	handler *Handler
	repo    *repository.Repository
}

// NewModule builds the nurture module. The leads repository is shared:
// nurture reads and mutates leads through the same persistence layer the
// leads module uses, keeping both views consistent.
func NewModule(pool *pgxpool.Pool, leadStore *leadsrepo.Repository, practice PracticeDirectory, cfg config.NurtureConfig, bus events.Bus, log *logger.Logger) (*Module, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("load sequence catalog: %w", err)
	}

	repo := repository.New(pool)
	svc := New(repo, leadStore, cat, content.NewRenderer(), classifier.NewKeyword(), practice, cfg, bus, log)

	return &Module{
		service: svc,
		handler: NewHandler(svc),
		repo:    repo,
	}, nil
}

func (m *Module) Name() string {
	return "nurture"
}

// Service returns the nurture service for adapters and the scheduler.
func (m *Module) Service() *Service {
	return m.service
}

// Repository returns the run store, used by the scheduler dispatcher.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts the nurture routes. Sequence reads and run
// controls both require authentication.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterSequenceRoutes(ctx.Protected.Group("/nurture/sequences"))
	m.handler.RegisterLeadRoutes(ctx.Protected.Group("/leads"))
}

var _ apphttp.Module = (*Module)(nil)
