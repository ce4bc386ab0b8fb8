package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"erp-notification-be/internal/model"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a notification is absent or owned by someone else.
var ErrNotFound = errors.New("notification not found")

// ListQuery selects one page of a recipient's notifications, newest first.
type ListQuery struct {
	RecipientID uuid.UUID
	Page        int
	Limit       int
	UnreadOnly  bool
}

// Page is one page of notifications plus the totals needed for pagination.
type Page struct {
	Items []model.Notification
	Total int64
	Page  int
	Pages int
}

// TotalPages rounds total/limit up, with a minimum of one page.
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// Offset is the number of rows before a 1-based page. It saturates at
// math.MaxInt instead of overflowing, so an absurd page reads as empty.
func Offset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// NotificationRepository is the only reader/writer of persisted notifications.
// Every mutation is scoped by recipient so a non-owner can never touch a record.
type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	FindByID(ctx context.Context, recipientID, id uuid.UUID) (*model.Notification, error)
	List(ctx context.Context, q ListQuery) (*Page, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)

	// MarkRead stamps readAt on the record; the timestamp is always chosen by the server.
	MarkRead(ctx context.Context, recipientID, id uuid.UUID, readAt time.Time) error
	MarkUnread(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, readAt time.Time) (int64, error)

	Delete(ctx context.Context, recipientID, id uuid.UUID) (*model.Notification, error)
	DeleteAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}
