package workflows

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/authz"
	"opshub/opshub-backend/pkg/statemachine"
)

// WorkflowType classifies an approval request.
type WorkflowType string

const (
	TypeExpense  WorkflowType = "expense"
	TypeLeave    WorkflowType = "leave"
	TypePurchase WorkflowType = "purchase"
	TypeOther    WorkflowType = "other"
)

// Workflow statuses. Approved and withdrawn are terminal.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusWithdrawn = "withdrawn"
)

// Transitions is the workflow status graph. A rejected request can be
// resubmitted or withdrawn; approved and withdrawn requests cannot move.
func Transitions() statemachine.Table {
	return statemachine.Table{
		StatusDraft:     {StatusSubmitted},
		StatusSubmitted: {StatusApproved, StatusRejected, StatusWithdrawn},
		StatusRejected:  {StatusSubmitted, StatusWithdrawn},
		StatusApproved:  {},
		StatusWithdrawn: {},
	}
}

// Workflow is an approval request (expense claim, leave request, purchase
// order or other). Status only ever changes through the lifecycle service.
type Workflow struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Type            WorkflowType   `gorm:"not null" json:"type"`
	Status          string         `gorm:"not null;default:'draft'" json:"status"`
	CreatedBy       uuid.UUID      `gorm:"type:uuid;not null;index" json:"created_by"`
	ApproverID      uuid.UUID      `gorm:"type:uuid" json:"approver_id"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	AmountCents     int64          `json:"amount_cents"`
	DateFrom        *time.Time     `json:"date_from,omitempty"`
	DateTo          *time.Time     `json:"date_to,omitempty"`
	Description     string         `json:"description"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// Snapshot returns the authorization view of the workflow.
func (w *Workflow) Snapshot() authz.WorkflowSnapshot {
	return authz.WorkflowSnapshot{
		TenantID:  w.TenantID,
		CreatedBy: w.CreatedBy,
		Status:    w.Status,
	}
}

// WorkflowStatusHistory records every committed status change.
type WorkflowStatusHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	WorkflowID uuid.UUID `gorm:"type:uuid;not null;index" json:"workflow_id"`
	FromStatus string    `gorm:"not null" json:"from_status"`
	ToStatus   string    `gorm:"not null" json:"to_status"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  uuid.UUID `gorm:"type:uuid;not null" json:"changed_by"`
	Note       string    `json:"note,omitempty"`
	Workflow   Workflow  `gorm:"foreignKey:WorkflowID" json:"-"`
}

// WorkflowFilter narrows workflow listings. All fields are optional.
type WorkflowFilter struct {
	TenantID  uuid.UUID
	CreatedBy *uuid.UUID
	Status    *string
	Type      *WorkflowType
	Limit     int
	Offset    int
}
