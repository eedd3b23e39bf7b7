package practice

import (
	"net/http"
	"strconv"

	"growthdesk_backend/platform/httpkit"
	"growthdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the practice profile HTTP surface.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Get)
	rg.GET("/booking-qr", h.BookingQR)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.PUT("", h.Update)
}

type updateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Phone       *string `json:"phone" validate:"omitempty,max=40"`
	Email       *string `json:"email" validate:"omitempty,email"`
	BookingLink *string `json:"bookingLink" validate:"omitempty,url"`
	Timezone    *string `json:"timezone" validate:"omitempty,max=64"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
}

func (h *Handler) Get(c *gin.Context) {
	profile, err := h.svc.Get(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, profile)
}

func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	profile, err := h.svc.Update(c.Request.Context(), UpdateInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		BookingLink: req.BookingLink,
		Timezone:    req.Timezone,
		Address:     req.Address,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, profile)
}

func (h *Handler) BookingQR(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "512"))

	png, err := h.svc.BookingQR(c.Request.Context(), size)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
