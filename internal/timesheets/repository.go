package timesheets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*Entry, error)
	ProjectTotals(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ProjectTotal, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).
		First(&entry, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("timesheet entry")
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) Update(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *gormRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&Entry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("timesheet entry")
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, tenantID uuid.UUID, filter Filter) ([]*Entry, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.From != nil {
		query = query.Where("work_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("work_date <= ?", *filter.To)
	}

	var items []*Entry
	if err := query.Order("work_date DESC, created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) ProjectTotals(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ProjectTotal, error) {
	var totals []ProjectTotal
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Select("project_id, SUM(CASE WHEN billable THEN hours ELSE 0 END) AS billable_hours, SUM(hours) AS total_hours").
		Where("tenant_id = ? AND work_date >= ? AND work_date <= ?", tenantID, from, to).
		Group("project_id").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
