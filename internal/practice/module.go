package practice

import (
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/internal/practice/repository"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the practice profile bounded context module.
type Module struct {
	service *Service
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(repository.New(pool), log)
	return &Module{
		service: svc,
		handler: NewHandler(svc, val),
	}
}

func (m *Module) Name() string {
	return "practice"
}

// Service returns the practice service for the nurture adapter.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/practice"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/practice"))
}

var _ apphttp.Module = (*Module)(nil)
