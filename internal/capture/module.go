package capture

import (
	"growthdesk_backend/internal/capture/repository"
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/internal/leads/intake"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the public capture bounded context module.
type Module struct {
	service *Service
	handler *Handler
	keys    *repository.Repository
}

func NewModule(pool *pgxpool.Pool, intakeSvc *intake.Service, val *validator.Validator, log *logger.Logger) *Module {
	keys := repository.New(pool)
	svc := NewService(keys, intakeSvc, log)
	return &Module{
		service: svc,
		handler: NewHandler(svc, val),
		keys:    keys,
	}
}

func (m *Module) Name() string {
	return "capture"
}

// RegisterRoutes mounts the public capture endpoint under /api/v1 with
// key auth and the strict capture rate limit, and the key management
// endpoints under the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.V1.Group("/capture")
	public.Use(ctx.CaptureRateLimiter.RateLimit())
	public.Use(KeyAuthMiddleware(m.keys))
	m.handler.RegisterPublicRoutes(public)

	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/capture-keys"))
}

var _ apphttp.Module = (*Module)(nil)
