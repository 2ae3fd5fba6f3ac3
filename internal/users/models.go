package users

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is the isolation boundary for data and role grants.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an OpsHub account. PasswordHash never leaves the backend.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string         `gorm:"not null;uniqueIndex" json:"email"`
	DisplayName  string         `gorm:"not null" json:"display_name"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Active       bool           `gorm:"default:true" json:"active"`
	ActiveTenant uuid.UUID      `gorm:"type:uuid" json:"active_tenant"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Grants       []RoleGrant    `gorm:"foreignKey:UserID" json:"grants,omitempty"`
}

// RoleGrant gives a user a role within one tenant.
type RoleGrant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Role      string    `gorm:"not null" json:"role"`
	GrantedAt time.Time `json:"granted_at"`
}
