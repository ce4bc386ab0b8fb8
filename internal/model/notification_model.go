package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationType drives display colour on the client. Unknown values are
// passed through untouched and rendered with the default style.
type NotificationType string

const (
	NotificationTypeInfo     NotificationType = "info"
	NotificationTypeSuccess  NotificationType = "success"
	NotificationTypeWarning  NotificationType = "warning"
	NotificationTypeError    NotificationType = "error"
	NotificationTypeSystem   NotificationType = "system"
	NotificationTypeMessage  NotificationType = "message"
	NotificationTypeTask     NotificationType = "task"
	NotificationTypeReminder NotificationType = "reminder"
)

// Known reports whether t is one of the fixed enumeration values.
func (t NotificationType) Known() bool {
	switch t {
	case NotificationTypeInfo, NotificationTypeSuccess, NotificationTypeWarning, NotificationTypeError,
		NotificationTypeSystem, NotificationTypeMessage, NotificationTypeTask, NotificationTypeReminder:
		return true
	}
	return false
}

// Priority is optional; only PriorityUrgent changes presentation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification stores a single-owner notification record.
type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_created,priority:1;index:idx_notifications_recipient_unread,priority:1" json:"recipientId"`
	Title       string           `gorm:"type:varchar(200);not null" json:"title"`
	Message     string           `gorm:"type:text;not null" json:"message"`
	Type        NotificationType `gorm:"type:varchar(20);not null;default:'info'" json:"type"`
	Link        string           `gorm:"type:varchar(500)" json:"link,omitempty"`
	Priority    Priority         `gorm:"type:varchar(10)" json:"priority,omitempty"`
	Metadata    datatypes.JSON   `gorm:"type:jsonb" json:"metadata,omitempty"`
	IsRead      bool             `gorm:"default:false;index:idx_notifications_recipient_unread,priority:2" json:"isRead"`
	ReadAt      *time.Time       `json:"readAt"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_recipient_created,priority:2" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// MarkRead sets both halves of the read state together.
func (n *Notification) MarkRead(at time.Time) {
	n.IsRead = true
	n.ReadAt = &at
}

// MarkUnread clears both halves of the read state together.
func (n *Notification) MarkUnread() {
	n.IsRead = false
	n.ReadAt = nil
}

// IsUrgent reports whether the notification needs the urgent treatment.
func (n *Notification) IsUrgent() bool {
	return n.Priority == PriorityUrgent
}
