package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Project, error)

	AddMember(ctx context.Context, member *ProjectMember) error
	RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]*ProjectMember, error)
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)

	AddActivity(ctx context.Context, activity *ProjectActivity) error
	ListActivity(ctx context.Context, projectID uuid.UUID) ([]*ProjectActivity, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("project")
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) Update(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *gormRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Project, error) {
	var items []*Project
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) AddMember(ctx context.Context, member *ProjectMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *gormRepository) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&ProjectMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("project member")
	}
	return nil
}

func (r *gormRepository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*ProjectMember, error) {
	var members []*ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *gormRepository) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) AddActivity(ctx context.Context, activity *ProjectActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *gormRepository) ListActivity(ctx context.Context, projectID uuid.UUID) ([]*ProjectActivity, error) {
	var entries []*ProjectActivity
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
