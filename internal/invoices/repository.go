package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"opshub/opshub-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, invoice *Invoice) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, invoice *Invoice, expectedStatus string) error
	NextSequence(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (int, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Invoices live outside the ORM, so their schema is bootstrapped here
// rather than by AutoMigrate.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		project_id UUID NOT NULL,
		number TEXT NOT NULL,
		status TEXT NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		currency TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		created_by UUID NOT NULL,
		issued_at TIMESTAMPTZ,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (tenant_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_lines (
		id UUID PRIMARY KEY,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		unit_cents BIGINT NOT NULL,
		amount_cents BIGINT NOT NULL,
		source_id UUID
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_created
		ON invoices (tenant_id, created_at)`,
}

// Migrate creates the invoice tables if they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate invoice schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, invoice *Invoice) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO invoices (
			id, tenant_id, project_id, number, status, period_start, period_end,
			currency, total_cents, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	_, err = tx.ExecContext(ctx, query,
		invoice.ID, invoice.TenantID, invoice.ProjectID, invoice.Number, invoice.Status,
		invoice.PeriodStart, invoice.PeriodEnd, invoice.Currency, invoice.TotalCents,
		invoice.CreatedBy, invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	lineQuery := `
		INSERT INTO invoice_lines (
			id, invoice_id, kind, description, quantity, unit_cents, amount_cents, source_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`
	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.InvoiceID = invoice.ID
		_, err = tx.ExecContext(ctx, lineQuery,
			line.ID, line.InvoiceID, line.Kind, line.Description,
			line.Quantity, line.UnitCents, line.AmountCents, line.SourceID,
		)
		if err != nil {
			return fmt.Errorf("failed to create invoice line: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	query := `
		SELECT id, tenant_id, project_id, number, status, period_start, period_end,
			   currency, total_cents, created_by, issued_at, paid_at, created_at, updated_at
		FROM invoices
		WHERE id = $1 AND tenant_id = $2
	`

	var invoice Invoice
	err := r.db.GetContext(ctx, &invoice, query, id, tenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("invoice")
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	lineQuery := `
		SELECT id, invoice_id, kind, description, quantity, unit_cents, amount_cents, source_id
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY kind, description
	`
	if err := r.db.SelectContext(ctx, &invoice.Lines, lineQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get invoice lines: %w", err)
	}

	return &invoice, nil
}

func (r *PostgresRepository) List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*Invoice, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argCount := 1

	if filter.ProjectID != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argCount))
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filter.Status)
	}

	query := `
		SELECT id, tenant_id, project_id, number, status, period_start, period_end,
			   currency, total_cents, created_by, issued_at, paid_at, created_at, updated_at
		FROM invoices
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at DESC
	`

	var invoices []*Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// UpdateStatus commits a lifecycle step with a conditional write: the
// row only changes if it is still at expectedStatus.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, invoice *Invoice, expectedStatus string) error {
	query := `
		UPDATE invoices SET
			status = $3, issued_at = $4, paid_at = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2 AND status = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.ID, invoice.TenantID, invoice.Status,
		invoice.IssuedAt, invoice.PaidAt, time.Now(), expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var count int
		countQuery := `SELECT COUNT(*) FROM invoices WHERE id = $1 AND tenant_id = $2`
		if err := r.db.GetContext(ctx, &count, countQuery, invoice.ID, invoice.TenantID); err != nil {
			return fmt.Errorf("failed to check invoice existence: %w", err)
		}
		if count == 0 {
			return apperr.NotFound("invoice")
		}
		return apperr.ErrConflict
	}
	return nil
}

// NextSequence returns the next invoice number within a tenant's month.
func (r *PostgresRepository) NextSequence(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (int, error) {
	query := `
		SELECT COUNT(*) FROM invoices
		WHERE tenant_id = $1
		  AND date_part('year', created_at) = $2
		  AND date_part('month', created_at) = $3
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, year, int(month)); err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return count + 1, nil
}
