package invoices

import (
	"time"

	"github.com/google/uuid"

	"opshub/opshub-backend/pkg/statemachine"
)

const (
	StatusDraft  = "draft"
	StatusIssued = "issued"
	StatusPaid   = "paid"
	StatusVoid   = "void"
)

// Transitions is the invoice lifecycle. Paid and void are terminal.
func Transitions() statemachine.Table {
	return statemachine.Table{
		StatusDraft:  {StatusIssued, StatusVoid},
		StatusIssued: {StatusPaid, StatusVoid},
		StatusPaid:   {},
		StatusVoid:   {},
	}
}

const (
	LineKindLabor   = "labor"
	LineKindExpense = "expense"
)

// Invoice bills one project for one period.
type Invoice struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ProjectID   uuid.UUID  `db:"project_id" json:"project_id"`
	Number      string     `db:"number" json:"number"`
	Status      string     `db:"status" json:"status"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`
	Currency    string     `db:"currency" json:"currency"`
	TotalCents  int64      `db:"total_cents" json:"total_cents"`
	CreatedBy   uuid.UUID  `db:"created_by" json:"created_by"`
	IssuedAt    *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Lines []InvoiceLine `db:"-" json:"lines,omitempty"`
}

// InvoiceLine is a single billed item. Labor lines carry hours and a
// rate; expense lines reference the approved workflow they came from.
type InvoiceLine struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	InvoiceID   uuid.UUID  `db:"invoice_id" json:"invoice_id"`
	Kind        string     `db:"kind" json:"kind"`
	Description string     `db:"description" json:"description"`
	Quantity    float64    `db:"quantity" json:"quantity"`
	UnitCents   int64      `db:"unit_cents" json:"unit_cents"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	SourceID    *uuid.UUID `db:"source_id" json:"source_id,omitempty"`
}

// Filter narrows invoice listings.
type Filter struct {
	ProjectID *uuid.UUID
	Status    *string
}
