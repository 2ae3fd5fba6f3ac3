package workflows

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opshub/opshub-backend/internal/auth"
	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	wf := rg.Group("/workflows")
	{
		wf.POST("", h.Create)
		wf.GET("", h.List)
		wf.GET("/:id", h.Get)
		wf.PATCH("/:id", h.Update)
		wf.GET("/:id/history", h.History)
		wf.POST("/:id/submit", h.Submit)
		wf.POST("/:id/approve", h.Approve)
		wf.POST("/:id/reject", h.Reject)
		wf.POST("/:id/withdraw", h.Withdraw)
	}
}

func respondError(c *gin.Context, err error) {
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		body := gin.H{"error": tagged.Error(), "code": tagged.Code}
		switch tagged.Code {
		case apperr.CodeInvalidTransition:
			body["from"] = tagged.From
			body["to"] = tagged.To
		case apperr.CodeValidation:
			body["fields"] = tagged.Fields
		}
		c.JSON(apperr.HTTPStatus(err), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Create(c *gin.Context) {
	actor := auth.ActorFromContext(c)

	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	wf, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

func (h *Handler) List(c *gin.Context) {
	actor := auth.ActorFromContext(c)

	filter := WorkflowFilter{}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}
	if t := c.Query("type"); t != "" {
		wt := WorkflowType(t)
		filter.Type = &wt
	}
	if c.Query("mine") == "true" {
		filter.CreatedBy = &actor.UserID
	}

	items, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	wf, err := h.service.Get(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	wf, err := h.service.Update(c.Request.Context(), auth.ActorFromContext(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit)
}

func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

func (h *Handler) Withdraw(c *gin.Context) {
	h.transition(c, h.service.Withdraw)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	wf, err := h.service.Reject(c.Request.Context(), auth.ActorFromContext(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Workflow, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	wf, err := op(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}
