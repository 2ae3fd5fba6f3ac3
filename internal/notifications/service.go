package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"opshub/opshub-backend/internal/notifications/websocket"
	"opshub/opshub-backend/internal/workflows"
)

// Service stores in-app notifications and pushes them over WebSocket.
// It implements the workflows.Dispatcher interface consumed by the
// lifecycle services.
type Service struct {
	db        *gorm.DB
	wsManager *websocket.Manager
	logger    *zap.Logger
}

// NewService creates the notification service.
func NewService(db *gorm.DB, wsManager *websocket.Manager, logger *zap.Logger) *Service {
	return &Service{db: db, wsManager: wsManager, logger: logger}
}

// Notify records the event for its target user and pushes it to any open
// websocket connections. Callers treat this as fire-and-forget.
func (s *Service) Notify(ctx context.Context, event workflows.Event) error {
	payload, err := json.Marshal(map[string]string{
		"actor_id":      event.ActorID.String(),
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID.String(),
	})
	if err != nil {
		return err
	}

	notification := &Notification{
		TenantID:     event.TenantID,
		UserID:       event.TargetUserID,
		Kind:         event.Kind,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return err
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	delivered := s.wsManager.SendToUser(event.TargetUserID.String(), websocket.Message{
		Type:      "notification",
		Data:      body,
		Timestamp: notification.CreatedAt,
	})
	s.logger.Debug("notification dispatched",
		zap.String("kind", event.Kind),
		zap.String("target_user_id", event.TargetUserID.String()),
		zap.Int("push_connections", delivered))
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var items []Notification
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadCount returns how many notifications a user has not opened.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification as read. Scoped to the owning user so
// nobody can mark someone else's rows.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of a user as read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now()).Error
}

// Close shuts down the websocket manager.
func (s *Service) Close() {
	if s.wsManager != nil {
		s.wsManager.Close()
	}
}
