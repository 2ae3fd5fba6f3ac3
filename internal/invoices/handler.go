package invoices

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opshub/opshub-backend/internal/auth"
	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
	"opshub/opshub-backend/pkg/pdf"
)

// ClientInfo resolves the client name shown on rendered invoices.
type ClientInfo interface {
	ClientName(projectID uuid.UUID) (string, string)
}

type Handler struct {
	service    Service
	renderer   *pdf.InvoiceRenderer
	issuerName string
	clients    ClientInfo
}

func NewHandler(service Service, renderer *pdf.InvoiceRenderer, issuerName string, clients ClientInfo) *Handler {
	return &Handler{service: service, renderer: renderer, issuerName: issuerName, clients: clients}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Generate)
		invoices.GET("", h.List)
		invoices.GET("/:id", h.Get)
		invoices.GET("/:id/pdf", h.Download)
		invoices.POST("/:id/issue", h.Issue)
		invoices.POST("/:id/pay", h.MarkPaid)
		invoices.POST("/:id/void", h.Void)
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
	if errors.Is(err, apperr.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "invoice was modified concurrently"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	invoice, err := h.service.Generate(c.Request.Context(), auth.ActorFromContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (h *Handler) List(c *gin.Context) {
	var filter Filter
	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		filter.ProjectID = &id
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = &raw
	}
	items, err := h.service.List(c.Request.Context(), auth.ActorFromContext(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	invoice, err := h.service.Get(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// Download streams the invoice as a PDF attachment.
func (h *Handler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	invoice, err := h.service.Get(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	doc := pdf.InvoiceDocument{
		Number:      invoice.Number,
		IssuerName:  h.issuerName,
		PeriodStart: invoice.PeriodStart,
		PeriodEnd:   invoice.PeriodEnd,
		Currency:    invoice.Currency,
		TotalCents:  invoice.TotalCents,
		IssuedAt:    invoice.IssuedAt,
	}
	if h.clients != nil {
		doc.ClientName, doc.ProjectName = h.clients.ClientName(invoice.ProjectID)
	}
	for _, line := range invoice.Lines {
		doc.Lines = append(doc.Lines, pdf.InvoiceLine{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitCents:   line.UnitCents,
			AmountCents: line.AmountCents,
		})
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", invoice.Number+".pdf"))
	c.Header("Content-Type", "application/pdf")
	if err := h.renderer.Render(doc, c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

func (h *Handler) Issue(c *gin.Context) {
	h.transition(c, h.service.Issue)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	h.transition(c, h.service.MarkPaid)
}

func (h *Handler) Void(c *gin.Context) {
	h.transition(c, h.service.Void)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	invoice, err := op(c.Request.Context(), auth.ActorFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}
