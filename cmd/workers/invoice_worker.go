package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"opshub/opshub-backend/internal/invoices"
	"opshub/opshub-backend/pkg/apperr"
	"opshub/opshub-backend/pkg/authz"
)

// InvoiceWorker generates draft invoices for the previous month, one
// per active project that logged billable time.
type InvoiceWorker struct {
	db      *sqlx.DB
	service invoices.Service
	logger  *zap.Logger
}

// NewInvoiceWorker creates a new invoice worker
func NewInvoiceWorker(db *sqlx.DB, service invoices.Service, logger *zap.Logger) *InvoiceWorker {
	return &InvoiceWorker{db: db, service: service, logger: logger}
}

type billableProject struct {
	ProjectID string `db:"project_id"`
	TenantID  string `db:"tenant_id"`
	AdminID   string `db:"admin_id"`
}

// Run generates a draft invoice per project with billable hours in the
// previous calendar month. Generation runs as each tenant's oldest
// admin so the lifecycle rules stay in force.
func (w *InvoiceWorker) Run(ctx context.Context) {
	now := time.Now()
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	periodStart := time.Date(periodEnd.Year(), periodEnd.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `
		SELECT DISTINCT e.project_id, e.tenant_id,
		       (SELECT rg.user_id::text FROM role_grants rg
		        WHERE rg.tenant_id = e.tenant_id AND rg.role = 'tenant_admin'
		        ORDER BY rg.granted_at ASC LIMIT 1) AS admin_id
		FROM entries e
		JOIN projects p ON p.id = e.project_id AND p.archived = false
		WHERE e.billable = true
		  AND e.work_date >= $1 AND e.work_date <= $2
		  AND e.deleted_at IS NULL
	`

	var candidates []billableProject
	if err := w.db.SelectContext(ctx, &candidates, query, periodStart, periodEnd); err != nil {
		w.logger.Error("Failed to query billable projects", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		w.logger.Info("No billable projects for period",
			zap.Time("period_start", periodStart), zap.Time("period_end", periodEnd))
		return
	}

	generated := 0
	for _, candidate := range candidates {
		projectID, err := uuid.Parse(candidate.ProjectID)
		if err != nil {
			continue
		}
		tenantID, err := uuid.Parse(candidate.TenantID)
		if err != nil {
			continue
		}
		adminID, err := uuid.Parse(candidate.AdminID)
		if err != nil {
			w.logger.Warn("Tenant has no admin, skipping invoice run",
				zap.String("tenant_id", candidate.TenantID))
			continue
		}

		actor := authz.Actor{
			UserID:       adminID,
			ActiveTenant: tenantID,
			Roles:        []authz.TenantRole{{TenantID: tenantID, Role: authz.RoleTenantAdmin}},
		}

		invoice, err := w.service.Generate(ctx, actor, invoices.GenerateRequest{
			ProjectID:   projectID,
			PeriodStart: periodStart.Format("2006-01-02"),
			PeriodEnd:   periodEnd.Format("2006-01-02"),
		})
		if err != nil {
			// Empty periods happen when billable time was logged then deleted.
			if apperr.CodeOf(err) == apperr.CodeValidation {
				continue
			}
			w.logger.Error("Failed to generate invoice",
				zap.String("project_id", candidate.ProjectID), zap.Error(err))
			continue
		}
		generated++
		w.logger.Info("Invoice generated",
			zap.String("number", invoice.Number),
			zap.Int64("total_cents", invoice.TotalCents))
	}

	w.logger.Info("Monthly invoice run complete",
		zap.Int("projects", len(candidates)), zap.Int("invoices", generated))
}
