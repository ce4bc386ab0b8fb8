package dto

import (
	"time"

	"erp-notification-be/internal/model"

	"github.com/google/uuid"
)

type CreateNotificationRequest struct {
	// RecipientID is honoured for admin callers only; others always address themselves.
	RecipientID *uuid.UUID             `json:"recipientId,omitempty"`
	Title       string                 `json:"title" validate:"required,max=200"`
	Message     string                 `json:"message" validate:"required,max=5000"`
	Type        model.NotificationType `json:"type" validate:"omitempty,max=20"`
	Link        string                 `json:"link" validate:"omitempty,max=500"`
	Priority    model.Priority         `json:"priority" validate:"omitempty,max=10"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type ListNotificationsQuery struct {
	Page       int  `query:"page" validate:"min=1,max=1000000"`
	Limit      int  `query:"limit" validate:"min=1,max=100"`
	UnreadOnly bool `query:"unreadOnly"`
}

type PaginationResponse struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Total int64 `json:"total"`
	Limit int   `json:"limit"`
}

type NotificationListResponse struct {
	Notifications []model.Notification `json:"notifications"`
	Pagination    PaginationResponse   `json:"pagination"`
	UnreadCount   int64                `json:"unreadCount"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type ReadAtResponse struct {
	ReadAt time.Time `json:"readAt"`
}

type MarkAllReadResponse struct {
	ReadAt   time.Time `json:"readAt"`
	Affected int64     `json:"affected"`
}

type DeleteAllReadResponse struct {
	Deleted int64 `json:"deleted"`
}
