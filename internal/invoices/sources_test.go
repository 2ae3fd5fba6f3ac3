package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"opshub/opshub-backend/internal/workflows"
)

type staticWorkflows struct {
	approved []*workflows.Workflow
}

func (s *staticWorkflows) Create(ctx context.Context, wf *workflows.Workflow) error { return nil }
func (s *staticWorkflows) GetByID(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return nil, nil
}
func (s *staticWorkflows) Save(ctx context.Context, wf *workflows.Workflow, expectedStatus string) error {
	return nil
}
func (s *staticWorkflows) List(ctx context.Context, filter workflows.WorkflowFilter) ([]*workflows.Workflow, error) {
	return s.approved, nil
}
func (s *staticWorkflows) AppendHistory(ctx context.Context, entry *workflows.WorkflowStatusHistory) error {
	return nil
}
func (s *staticWorkflows) ListHistory(ctx context.Context, workflowID uuid.UUID) ([]*workflows.WorkflowStatusHistory, error) {
	return nil, nil
}

func expenseClaim(tenantID, projectID uuid.UUID, approvedAt time.Time, cents int64) *workflows.Workflow {
	return &workflows.Workflow{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        workflows.TypeExpense,
		Status:      workflows.StatusApproved,
		AmountCents: cents,
		Metadata:    datatypes.JSON(fmt.Sprintf(`{"project_id": %q}`, projectID.String())),
		ApprovedAt:  &approvedAt,
	}
}

func TestApprovedExpensesPeriodEndDayIsInclusive(t *testing.T) {
	tenantID := uuid.New()
	projectID := uuid.New()
	from := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

	lastDayEvening := expenseClaim(tenantID, projectID,
		time.Date(2026, time.August, 31, 23, 0, 0, 0, time.UTC), 4200)
	nextMonthMorning := expenseClaim(tenantID, projectID,
		time.Date(2026, time.September, 1, 0, 30, 0, 0, time.UTC), 9900)

	source := NewWorkflowExpenses(&staticWorkflows{
		approved: []*workflows.Workflow{lastDayEvening, nextMonthMorning},
	})

	items, err := source.ApprovedExpenses(context.Background(), tenantID, projectID, from, to)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, lastDayEvening.ID, items[0].WorkflowID)
	assert.Equal(t, int64(4200), items[0].AmountCents)
}

func TestApprovedExpensesRequireProjectAttribution(t *testing.T) {
	tenantID := uuid.New()
	projectID := uuid.New()
	from := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	approvedAt := time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)

	otherProject := expenseClaim(tenantID, uuid.New(), approvedAt, 1000)
	unattributed := expenseClaim(tenantID, projectID, approvedAt, 2000)
	unattributed.Metadata = nil

	source := NewWorkflowExpenses(&staticWorkflows{
		approved: []*workflows.Workflow{otherProject, unattributed},
	})

	items, err := source.ApprovedExpenses(context.Background(), tenantID, projectID, from, to)
	require.NoError(t, err)
	assert.Empty(t, items)
}
