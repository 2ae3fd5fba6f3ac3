package timesheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opshub/opshub-backend/internal/auth"
	"opshub/opshub-backend/pkg/apperr"
)

// NameResolver maps project and user ids to display names for exports.
type NameResolver interface {
	ProjectNames(ctx context.Context, tenantID uuid.UUID) (map[string]string, error)
	UserNames(ctx context.Context, tenantID uuid.UUID) (map[string]string, error)
}

type Handler struct {
	service Service
	names   NameResolver
}

func NewHandler(service Service, names NameResolver) *Handler {
	return &Handler{service: service, names: names}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	timesheets := rg.Group("/timesheets")
	{
		timesheets.POST("", h.Log)
		timesheets.GET("", h.List)
		timesheets.PUT("/:id", h.Update)
		timesheets.DELETE("/:id", h.Delete)
		timesheets.GET("/totals", h.ProjectTotals)
		timesheets.GET("/export", h.Export)
	}
}

func respondError(c *gin.Context, err error) {
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		body := gin.H{"error": tagged.Error(), "code": tagged.Code}
		if tagged.Code == apperr.CodeValidation {
			body["fields"] = tagged.Fields
		}
		c.JSON(apperr.HTTPStatus(err), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseFilter(c *gin.Context) (Filter, error) {
	var filter Filter
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, apperr.Validation("project_id")
		}
		filter.ProjectID = &id
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, apperr.Validation("user_id")
		}
		filter.UserID = &id
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(workDateLayout, raw)
		if err != nil {
			return filter, apperr.Validation("from")
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(workDateLayout, raw)
		if err != nil {
			return filter, apperr.Validation("to")
		}
		filter.To = &t
	}
	return filter, nil
}

func (h *Handler) Log(c *gin.Context) {
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry, err := h.service.Log(c.Request.Context(), auth.ActorFromContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.service.List(c.Request.Context(), auth.ActorFromContext(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry, err := h.service.Update(c.Request.Context(), auth.ActorFromContext(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.service.Delete(c.Request.Context(), auth.ActorFromContext(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ProjectTotals(c *gin.Context) {
	from, to, err := parsePeriod(c)
	if err != nil {
		respondError(c, err)
		return
	}
	totals, err := h.service.ProjectTotals(c.Request.Context(), auth.ActorFromContext(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// Export streams the filtered entries as an .xlsx attachment.
func (h *Handler) Export(c *gin.Context) {
	actor := auth.ActorFromContext(c)
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	projectNames := map[string]string{}
	userNames := map[string]string{}
	if h.names != nil {
		if resolved, err := h.names.ProjectNames(c.Request.Context(), actor.ActiveTenant); err == nil {
			projectNames = resolved
		}
		if resolved, err := h.names.UserNames(c.Request.Context(), actor.ActiveTenant); err == nil {
			userNames = resolved
		}
	}

	exporter := NewExporter("Timesheet")
	defer exporter.Close()
	if _, err := exporter.Write(items, projectNames, userNames); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := fmt.Sprintf("timesheet-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := exporter.WriteTo(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

func parsePeriod(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(workDateLayout, raw)
		if err != nil {
			return from, to, apperr.Validation("from")
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(workDateLayout, raw)
		if err != nil {
			return from, to, apperr.Validation("to")
		}
		to = t
	}
	return from, to, nil
}
