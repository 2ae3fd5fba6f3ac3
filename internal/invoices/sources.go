package invoices

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opshub/opshub-backend/internal/projects"
	"opshub/opshub-backend/internal/timesheets"
	"opshub/opshub-backend/internal/workflows"
	"opshub/opshub-backend/pkg/apperr"
)

// TimesheetLabor adapts the timesheet repository into a LaborSource.
type TimesheetLabor struct {
	repo timesheets.Repository
}

func NewTimesheetLabor(repo timesheets.Repository) *TimesheetLabor {
	return &TimesheetLabor{repo: repo}
}

func (l *TimesheetLabor) BillableHours(ctx context.Context, tenantID, projectID uuid.UUID, from, to time.Time) (float64, error) {
	entries, err := l.repo.List(ctx, tenantID, timesheets.Filter{
		ProjectID: &projectID,
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, entry := range entries {
		if entry.Billable {
			total += entry.Hours
		}
	}
	return total, nil
}

// WorkflowExpenses adapts the workflow repository into an ExpenseSource.
// Expense claims attach to a project through the project_id key in
// their metadata; claims without one never reach an invoice.
type WorkflowExpenses struct {
	repo workflows.Repository
}

func NewWorkflowExpenses(repo workflows.Repository) *WorkflowExpenses {
	return &WorkflowExpenses{repo: repo}
}

func (e *WorkflowExpenses) ApprovedExpenses(ctx context.Context, tenantID, projectID uuid.UUID, from, to time.Time) ([]ExpenseItem, error) {
	status := workflows.StatusApproved
	expenseType := workflows.TypeExpense
	approved, err := e.repo.List(ctx, workflows.WorkflowFilter{
		TenantID: tenantID,
		Status:   &status,
		Type:     &expenseType,
	})
	if err != nil {
		return nil, err
	}

	// The period end day is inclusive: the window closes at the start
	// of the following day, whatever clock time `to` carries.
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).AddDate(0, 0, 1)

	var items []ExpenseItem
	for _, wf := range approved {
		if wf.ApprovedAt == nil || wf.ApprovedAt.Before(from) || !wf.ApprovedAt.Before(end) {
			continue
		}
		if metadataProjectID([]byte(wf.Metadata)) != projectID {
			continue
		}
		description := wf.Description
		if description == "" {
			description = fmt.Sprintf("Expense claim %s", wf.ID)
		}
		items = append(items, ExpenseItem{
			WorkflowID:  wf.ID,
			Description: description,
			AmountCents: wf.AmountCents,
		})
	}
	return items, nil
}

func metadataProjectID(raw []byte) uuid.UUID {
	if len(raw) == 0 {
		return uuid.Nil
	}
	var meta struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(meta.ProjectID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ProjectBilling adapts the project repository into a ProjectSource.
type ProjectBilling struct {
	repo projects.Repository
}

func NewProjectBilling(repo projects.Repository) *ProjectBilling {
	return &ProjectBilling{repo: repo}
}

func (b *ProjectBilling) BillingInfo(ctx context.Context, tenantID, projectID uuid.UUID) (string, int64, error) {
	project, err := b.repo.GetByID(ctx, projectID)
	if err != nil {
		return "", 0, err
	}
	if project.TenantID != tenantID {
		return "", 0, apperr.NotFound("project")
	}
	return project.Name, project.HourlyRate, nil
}
