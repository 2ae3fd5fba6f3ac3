package tasks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"opshub/opshub-backend/pkg/statemachine"
)

// Task statuses. in_progress is a mandatory intermediate hop in both
// directions: a task never jumps straight between todo and done.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Transitions is the board status graph.
func Transitions() statemachine.Table {
	return statemachine.Table{
		StatusTodo:       {StatusInProgress},
		StatusInProgress: {StatusTodo, StatusDone},
		StatusDone:       {StatusInProgress},
	}
}

// Task is a unit of work on a project board.
type Task struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `json:"description"`
	Status      string         `gorm:"not null;default:'todo'" json:"status"`
	AssigneeID  *uuid.UUID     `gorm:"type:uuid" json:"assignee_id,omitempty"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
