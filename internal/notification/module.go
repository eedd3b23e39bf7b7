package notification

import (
	"growthdesk_backend/internal/events"
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module delivers in-app notifications driven by lead domain events.
type Module struct {
	service *Service
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), log)
	svc.Subscribe(bus)
	return &Module{
		service: svc,
		handler: NewHandler(svc),
	}
}

func (m *Module) Name() string {
	return "notification"
}

func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

var _ apphttp.Module = (*Module)(nil)
