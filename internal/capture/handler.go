package capture

import (
	"net/http"
	"time"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/leads/intake"
	"growthdesk_backend/platform/httpkit"
	"growthdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the public capture endpoint and the admin key
// management surface.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterPublicRoutes mounts the external capture endpoint. Callers
// authenticate with a capture key, not a user session.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/form", h.Submit)
}

// RegisterAdminRoutes mounts the key management endpoints.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListKeys)
	rg.POST("", h.CreateKey)
	rg.DELETE("/:id", h.RevokeKey)
}

type submitRequest struct {
	FirstName string           `json:"firstName" validate:"max=100"`
	LastName  string           `json:"lastName" validate:"max=100"`
	Email     string           `json:"email" validate:"omitempty,email"`
	Phone     string           `json:"phone" validate:"omitempty,max=40"`
	Source    string           `json:"source" validate:"max=50"`
	Behavior  *behaviorPayload `json:"behavior"`
}

type behaviorPayload struct {
	WebsiteVisits     int        `json:"websiteVisits" validate:"min=0"`
	PageViews         int        `json:"pageViews" validate:"min=0"`
	TimeOnSiteSeconds int        `json:"timeOnSiteSeconds" validate:"min=0"`
	FormAbandoned     bool       `json:"formAbandoned"`
	LastPageViewed    string     `json:"lastPageViewed" validate:"max=500"`
	LastVisitAt       *time.Time `json:"lastVisitAt"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	input := intake.CaptureInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		Source:       req.Source,
		SourceDomain: c.GetString(ContextKeyDomain),
	}
	if req.Behavior != nil {
		input.Counters = domain.BehavioralCounters{
			WebsiteVisits:     req.Behavior.WebsiteVisits,
			PageViews:         req.Behavior.PageViews,
			TimeOnSiteSeconds: req.Behavior.TimeOnSiteSeconds,
			FormAbandoned:     req.Behavior.FormAbandoned,
			LastPageViewed:    req.Behavior.LastPageViewed,
			LastVisitAt:       req.Behavior.LastVisitAt,
		}
	}

	outcome, duplicate, err := h.svc.Submit(c.Request.Context(), input)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	if duplicate {
		httpkit.OK(c, gin.H{"accepted": true, "duplicate": true})
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, gin.H{
		"accepted":  true,
		"leadId":    outcome.Lead.ID,
		"created":   outcome.Created,
		"merged":    outcome.Merged,
		"matchedBy": outcome.MatchedBy,
	})
}

type createKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=200"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=255"`
}

func (h *Handler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	created, err := h.svc.CreateKey(c.Request.Context(), req.Name, req.AllowedDomains)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, created)
}

func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.svc.ListKeys(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"keys": keys})
}

func (h *Handler) RevokeKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key id", nil)
		return
	}
	if err := h.svc.RevokeKey(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"revoked": true})
}
