package timesheets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry is a single day's worked hours on a project.
type Entry struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	WorkDate  time.Time      `gorm:"type:date;not null;index" json:"work_date"`
	Hours     float64        `gorm:"not null" json:"hours"`
	Note      string         `json:"note,omitempty"`
	Billable  bool           `gorm:"default:true" json:"billable"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Filter narrows entry listings.
type Filter struct {
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

// ProjectTotal aggregates billable hours for one project over a period.
type ProjectTotal struct {
	ProjectID     uuid.UUID `json:"project_id"`
	BillableHours float64   `json:"billable_hours"`
	TotalHours    float64   `json:"total_hours"`
}
