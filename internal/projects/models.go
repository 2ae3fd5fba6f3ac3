package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/authz"
)

// Project is a unit of client or internal work that tasks, time entries
// and invoices hang off.
type Project struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	ClientName  string         `json:"client_name"`
	PMID        uuid.UUID      `gorm:"type:uuid;not null" json:"pm_id"`
	HourlyRate  int64          `json:"hourly_rate_cents"`
	Archived    bool           `gorm:"default:false" json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Snapshot returns the authorization view of the project.
func (p *Project) Snapshot() authz.ProjectSnapshot {
	return authz.ProjectSnapshot{TenantID: p.TenantID, PMID: p.PMID}
}

// ProjectMember is one user on a project team.
type ProjectMember struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
	Project   Project   `gorm:"foreignKey:ProjectID" json:"-"`
}

// ProjectActivity logs membership and settings changes on the project.
type ProjectActivity struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	ActivityType string    `gorm:"not null" json:"activity_type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UserID       uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Project      Project   `gorm:"foreignKey:ProjectID" json:"-"`
}
