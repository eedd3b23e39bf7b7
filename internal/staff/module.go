package staff

import (
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/internal/staff/repository"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the staff bounded context module.
type Module struct {
	service *Service
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := NewService(repo, log)
	return &Module{
		service: svc,
		handler: NewHandler(svc, val),
	}
}

func (m *Module) Name() string {
	return "staff"
}

// Service returns the staff service for the leads adapters.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/staff"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/staff"))
}

var _ apphttp.Module = (*Module)(nil)
