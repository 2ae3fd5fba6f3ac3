package tasks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/apperr"
)

// Repository persists tasks. Save is conditional on the expected current
// status so stale board drags surface as Conflict instead of silently
// overwriting a concurrent move.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	Save(ctx context.Context, task *Task, expectedStatus string) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, task *Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("task")
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) Save(ctx context.Context, task *Task, expectedStatus string) error {
	result := r.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, expectedStatus).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"status":      task.Status,
			"assignee_id": task.AssigneeID,
			"updated_at":  task.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&Task{}).
			Where("id = ?", task.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("task")
		}
		return apperr.ErrConflict
	}
	return nil
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error) {
	var items []*Task
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
