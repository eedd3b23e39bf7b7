// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"growthdesk_backend/internal/events"
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/internal/leads/assignment"
	"growthdesk_backend/internal/leads/handler"
	"growthdesk_backend/internal/leads/intake"
	"growthdesk_backend/internal/leads/management"
	"growthdesk_backend/internal/leads/ports"
	"growthdesk_backend/internal/leads/repository"
	"growthdesk_backend/internal/leads/scoring"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	management   *management.Service
	intake       *intake.Service
	scoring      *scoring.Service
	orchestrator *Orchestrator
	repo         *repository.Repository
}

// NewModule creates and initializes the leads module with all its dependencies.
// The nurture-facing ports are injected afterwards via the Set methods because
// the nurture module is constructed later in the composition root.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, candidates assignment.CandidateSource, staff ports.StaffCounters, log *logger.Logger) *Module {
	repo := repository.New(pool)

	scoringSvc := scoring.New(repo, eventBus, log)
	matcher := assignment.NewMatcher(candidates, log)
	intakeSvc := intake.New(repo, eventBus, log)
	mgmtSvc := management.New(repo, scoringSvc, matcher, staff, eventBus, log)

	orch := NewOrchestrator(repo, scoringSvc, mgmtSvc, eventBus, log)
	orch.Subscribe(eventBus)

	h := handler.New(mgmtSvc, intakeSvc, val)

	return &Module{
		handler:      h,
		management:   mgmtSvc,
		intake:       intakeSvc,
		scoring:      scoringSvc,
		orchestrator: orch,
		repo:         repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// ManagementService returns the lead management service for external use.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// IntakeService returns the capture/dedupe service for external use.
func (m *Module) IntakeService() *intake.Service {
	return m.intake
}

// Orchestrator returns the pipeline orchestrator, used by the scheduler
// for periodic stale-score sweeps.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// Repository returns the leads repository for use by adapters.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetNurtureStarter wires the nurture enrollment port after initialization.
func (m *Module) SetNurtureStarter(starter ports.NurtureStarter) {
	m.orchestrator.SetNurtureStarter(starter)
}

// SetNurtureCanceler wires the nurture cancellation port after initialization.
func (m *Module) SetNurtureCanceler(canceler ports.NurtureCanceler) {
	m.management.SetNurtureCanceler(canceler)
}

// SetEngagementRecorder wires the engagement port after initialization.
func (m *Module) SetEngagementRecorder(recorder ports.EngagementRecorder) {
	m.management.SetEngagementRecorder(recorder)
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// All leads routes require authentication
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
