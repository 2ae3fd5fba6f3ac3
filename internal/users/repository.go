package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/apperr"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*User, error)

	AddGrant(ctx context.Context, grant *RoleGrant) error
	RemoveGrant(ctx context.Context, userID, tenantID uuid.UUID, role string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Preload("Grants").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Preload("Grants").First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) Update(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *gormRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*User, error) {
	var items []*User
	err := r.db.WithContext(ctx).
		Joins("JOIN role_grants ON role_grants.user_id = users.id").
		Where("role_grants.tenant_id = ?", tenantID).
		Distinct().
		Preload("Grants").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) AddGrant(ctx context.Context, grant *RoleGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *gormRepository) RemoveGrant(ctx context.Context, userID, tenantID uuid.UUID, role string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND role = ?", userID, tenantID, role).
		Delete(&RoleGrant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("role grant")
	}
	return nil
}
