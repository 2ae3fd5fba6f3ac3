package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
	"opshub/opshub-backend/pkg/statemachine"
)

// ExpenseItem is an approved expense claim attributed to a project.
type ExpenseItem struct {
	WorkflowID  uuid.UUID
	Description string
	AmountCents int64
}

// LaborSource provides billable hours per project for a period.
type LaborSource interface {
	BillableHours(ctx context.Context, tenantID, projectID uuid.UUID, from, to time.Time) (float64, error)
}

// ExpenseSource provides approved expense claims for a project and period.
type ExpenseSource interface {
	ApprovedExpenses(ctx context.Context, tenantID, projectID uuid.UUID, from, to time.Time) ([]ExpenseItem, error)
}

// ProjectSource provides the billing attributes of a project.
type ProjectSource interface {
	BillingInfo(ctx context.Context, tenantID, projectID uuid.UUID) (name string, hourlyRateCents int64, err error)
}

// GenerateRequest asks for a draft invoice covering one project period.
type GenerateRequest struct {
	ProjectID   uuid.UUID `json:"project_id"`
	PeriodStart string    `json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string    `json:"period_end"`
	Currency    string    `json:"currency"`
}

// Service builds and advances invoices. Generation is admin only and
// produces a draft; issue, pay and void follow the invoice lifecycle
// with conditional writes so concurrent updates cannot double-commit.
type Service interface {
	Generate(ctx context.Context, actor authz.Actor, req GenerateRequest) (*Invoice, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, actor authz.Actor, filter Filter) ([]*Invoice, error)
	Issue(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error)
	MarkPaid(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error)
	Void(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error)
}

type service struct {
	repo     Repository
	labor    LaborSource
	expenses ExpenseSource
	projects ProjectSource
	machine  *statemachine.StateMachine
	logger   *zap.Logger
}

func NewService(repo Repository, labor LaborSource, expenses ExpenseSource, projects ProjectSource, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		labor:    labor,
		expenses: expenses,
		projects: projects,
		machine:  statemachine.New(Transitions()),
		logger:   logger,
	}
}

func (s *service) requireAdmin(actor authz.Actor) error {
	if !actor.HasRole(actor.ActiveTenant, authz.RoleTenantAdmin) {
		return apperr.Forbidden("tenant admin role required")
	}
	return nil
}

const periodLayout = "2006-01-02"

func (s *service) Generate(ctx context.Context, actor authz.Actor, req GenerateRequest) (*Invoice, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}

	var badFields []string
	periodStart, err := time.Parse(periodLayout, req.PeriodStart)
	if err != nil {
		badFields = append(badFields, "period_start")
	}
	periodEnd, err := time.Parse(periodLayout, req.PeriodEnd)
	if err != nil {
		badFields = append(badFields, "period_end")
	}
	if req.ProjectID == uuid.Nil {
		badFields = append(badFields, "project_id")
	}
	if len(badFields) == 0 && periodEnd.Before(periodStart) {
		badFields = append(badFields, "period_end")
	}
	if len(badFields) > 0 {
		return nil, apperr.Validation(badFields...)
	}

	projectName, rateCents, err := s.projects.BillingInfo(ctx, actor.ActiveTenant, req.ProjectID)
	if err != nil {
		return nil, err
	}

	hours, err := s.labor.BillableHours(ctx, actor.ActiveTenant, req.ProjectID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenses.ApprovedExpenses(ctx, actor.ActiveTenant, req.ProjectID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	var lines []InvoiceLine
	var totalCents int64
	if hours > 0 {
		amount := int64(hours * float64(rateCents))
		lines = append(lines, InvoiceLine{
			Kind:        LineKindLabor,
			Description: fmt.Sprintf("%s: %.2f billable hours", projectName, hours),
			Quantity:    hours,
			UnitCents:   rateCents,
			AmountCents: amount,
		})
		totalCents += amount
	}
	for _, item := range expenses {
		sourceID := item.WorkflowID
		lines = append(lines, InvoiceLine{
			Kind:        LineKindExpense,
			Description: item.Description,
			Quantity:    1,
			UnitCents:   item.AmountCents,
			AmountCents: item.AmountCents,
			SourceID:    &sourceID,
		})
		totalCents += item.AmountCents
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("period_start", "period_end")
	}

	sequence, err := s.repo.NextSequence(ctx, actor.ActiveTenant, periodStart.Year(), periodStart.Month())
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}

	now := time.Now()
	invoice := &Invoice{
		ID:          uuid.New(),
		TenantID:    actor.ActiveTenant,
		ProjectID:   req.ProjectID,
		Number:      fmt.Sprintf("INV-%04d-%02d-%04d", periodStart.Year(), int(periodStart.Month()), sequence),
		Status:      StatusDraft,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Currency:    currency,
		TotalCents:  totalCents,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}
	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.logger.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.Int64("total_cents", totalCents),
		zap.Int("lines", len(lines)))
	return invoice, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, actor.ActiveTenant, id)
}

func (s *service) List(ctx context.Context, actor authz.Actor, filter Filter) ([]*Invoice, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, actor.ActiveTenant, filter)
}

func (s *service) transition(ctx context.Context, actor authz.Actor, id uuid.UUID, target string, mutate func(*Invoice)) (*Invoice, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}

	invoice, err := s.repo.GetByID(ctx, actor.ActiveTenant, id)
	if err != nil {
		return nil, err
	}

	from := invoice.Status
	if !s.machine.CanTransition(from, target) {
		return nil, apperr.InvalidTransition(from, target)
	}

	invoice.Status = target
	invoice.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(invoice)
	}
	if err := s.repo.UpdateStatus(ctx, invoice, from); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *service) Issue(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusIssued, func(inv *Invoice) {
		now := time.Now()
		inv.IssuedAt = &now
	})
}

func (s *service) MarkPaid(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusPaid, func(inv *Invoice) {
		now := time.Now()
		inv.PaidAt = &now
	})
}

func (s *service) Void(ctx context.Context, actor authz.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusVoid, nil)
}
