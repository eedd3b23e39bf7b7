package nurture

import (
	"net/http"
	"time"

	"growthdesk_backend/internal/nurture/catalog"
	"growthdesk_backend/internal/nurture/repository"
	"growthdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the nurture HTTP surface: catalog reads, run
// inspection, and the start/pause/resume/cancel controls.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterSequenceRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListSequences)
	rg.GET("/:key", h.GetSequence)
}

func (h *Handler) RegisterLeadRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/nurture", h.GetRun)
	rg.POST("/:id/nurture", h.Start)
	rg.POST("/:id/nurture/pause", h.Pause)
	rg.POST("/:id/nurture/resume", h.Resume)
	rg.DELETE("/:id/nurture", h.Cancel)
}

// SequenceResponse is the catalog read model. Step bodies stay internal;
// the UI only needs the cadence and channels.
type SequenceResponse struct {
	Key               string         `json:"key"`
	Name              string         `json:"name"`
	TargetAudience    string         `json:"targetAudience"`
	AvgConversionRate float64        `json:"avgConversionRate"`
	TotalSteps        int            `json:"totalSteps"`
	Steps             []StepResponse `json:"steps"`
}

type StepResponse struct {
	Number    int    `json:"number"`
	Channel   string `json:"channel"`
	Category  string `json:"category"`
	DelayDays int    `json:"delayDays"`
}

type RunResponse struct {
	Run      repository.Run    `json:"run"`
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse omits rendered bodies; they can contain personal data
// and the run view only needs the schedule.
type MessageResponse struct {
	ID         uuid.UUID  `json:"id"`
	StepNumber int        `json:"stepNumber"`
	Channel    string     `json:"channel"`
	SendAt     time.Time  `json:"sendAt"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
}

func toSequenceResponse(seq catalog.Sequence) SequenceResponse {
	steps := make([]StepResponse, 0, len(seq.Steps))
	for _, step := range seq.Steps {
		steps = append(steps, StepResponse{
			Number:    step.Number,
			Channel:   string(step.Channel),
			Category:  step.Category,
			DelayDays: step.DelayDays,
		})
	}
	return SequenceResponse{
		Key:               seq.Key,
		Name:              seq.Name,
		TargetAudience:    seq.TargetAudience,
		AvgConversionRate: seq.AvgConversionRate,
		TotalSteps:        seq.TotalSteps(),
		Steps:             steps,
	}
}

func (h *Handler) ListSequences(c *gin.Context) {
	cat := h.svc.Catalog()
	out := make([]SequenceResponse, 0, len(cat.All()))
	for _, seq := range cat.All() {
		out = append(out, toSequenceResponse(seq))
	}
	httpkit.OK(c, gin.H{"version": cat.Version, "sequences": out})
}

func (h *Handler) GetSequence(c *gin.Context) {
	seq, ok := h.svc.Catalog().Get(c.Param("key"))
	if !ok {
		httpkit.Error(c, http.StatusNotFound, "sequence not found", nil)
		return
	}
	httpkit.OK(c, toSequenceResponse(seq))
}

func (h *Handler) GetRun(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}

	run, messages, err := h.svc.RunForLead(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, MessageResponse{
			ID:         msg.ID,
			StepNumber: msg.StepNumber,
			Channel:    msg.Channel,
			SendAt:     msg.SendAt,
			Status:     string(msg.Status),
			Attempts:   msg.Attempts,
			SentAt:     msg.SentAt,
		})
	}
	httpkit.OK(c, RunResponse{Run: run, Messages: out})
}

func (h *Handler) Start(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.Start(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	run, messages, err := h.svc.RunForLead(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	next := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		next = append(next, MessageResponse{
			ID:         msg.ID,
			StepNumber: msg.StepNumber,
			Channel:    msg.Channel,
			SendAt:     msg.SendAt,
			Status:     string(msg.Status),
			Attempts:   msg.Attempts,
			SentAt:     msg.SentAt,
		})
	}
	httpkit.JSON(c, http.StatusCreated, RunResponse{Run: run, Messages: next})
}

func (h *Handler) Pause(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.Pause(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"paused": true})
}

func (h *Handler) Resume(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.Resume(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"resumed": true})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := leadIDParam(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "canceled by staff"
	}

	if err := h.svc.CancelForLead(c.Request.Context(), id, body.Reason); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"canceled": true})
}

func leadIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return uuid.Nil, false
	}
	return id, true
}
