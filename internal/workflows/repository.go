package workflows

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/apperr"
)

// Repository is the persistence boundary of the workflow lifecycle. Save
// is a conditional write: it only commits when the stored status still
// matches expectedStatus, which gives the lifecycle its at-most-one-writer
// guarantee for concurrent transitions.
type Repository interface {
	Create(ctx context.Context, wf *Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
	Save(ctx context.Context, wf *Workflow, expectedStatus string) error
	List(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	AppendHistory(ctx context.Context, entry *WorkflowStatusHistory) error
	ListHistory(ctx context.Context, workflowID uuid.UUID) ([]*WorkflowStatusHistory, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed workflow repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, wf *Workflow) error {
	return r.db.WithContext(ctx).Create(wf).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var wf Workflow
	err := r.db.WithContext(ctx).First(&wf, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("workflow")
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *gormRepository) Save(ctx context.Context, wf *Workflow, expectedStatus string) error {
	result := r.db.WithContext(ctx).Model(&Workflow{}).
		Where("id = ? AND status = ?", wf.ID, expectedStatus).
		Updates(map[string]interface{}{
			"status":           wf.Status,
			"approver_id":      wf.ApproverID,
			"rejection_reason": wf.RejectionReason,
			"amount_cents":     wf.AmountCents,
			"date_from":        wf.DateFrom,
			"date_to":          wf.DateTo,
			"description":      wf.Description,
			"metadata":         wf.Metadata,
			"approved_at":      wf.ApprovedAt,
			"updated_at":       wf.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is gone or another writer changed the status
		// after this operation loaded its snapshot.
		var count int64
		if err := r.db.WithContext(ctx).Model(&Workflow{}).
			Where("id = ?", wf.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("workflow")
		}
		return apperr.ErrConflict
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", filter.TenantID).
		Order("created_at DESC")

	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var items []*Workflow
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) AppendHistory(ctx context.Context, entry *WorkflowStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) ListHistory(ctx context.Context, workflowID uuid.UUID) ([]*WorkflowStatusHistory, error) {
	var entries []*WorkflowStatusHistory
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("changed_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
