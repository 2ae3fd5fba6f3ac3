package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Notification is one in-app notification row. Read state is per row;
// clients poll the unread count or hold a websocket for push.
type Notification struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind         string         `gorm:"not null" json:"kind"`
	ResourceType string         `json:"resource_type"`
	ResourceID   uuid.UUID      `gorm:"type:uuid" json:"resource_id"`
	Payload      datatypes.JSON `json:"payload,omitempty"`
	ReadAt       *time.Time     `json:"read_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
