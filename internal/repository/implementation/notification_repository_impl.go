package implementation

import (
	"context"
	"errors"
	"time"

	"erp-notification-be/internal/model"
	"erp-notification-be/internal/repository"
	"erp-notification-be/internal/repository/scope"
	"erp-notification-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) repository.NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

func (r *NotificationRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *NotificationRepositoryImpl) model(ctx context.Context, specs ...specification.Specification) *gorm.DB {
	return r.applySpecifications(r.db.WithContext(ctx).Model(&model.Notification{}), specs...)
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepositoryImpl) FindByID(ctx context.Context, recipientID, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.applySpecifications(r.db.WithContext(ctx), specification.Owned(recipientID, id)...).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepositoryImpl) List(ctx context.Context, q repository.ListQuery) (*repository.Page, error) {
	var items []model.Notification
	var total int64

	specs := []specification.Specification{specification.ByRecipient{RecipientID: q.RecipientID}}
	if q.UnreadOnly {
		specs = append(specs, specification.Unread)
	}

	if err := r.model(ctx, specs...).Count(&total).Error; err != nil {
		return nil, err
	}

	err := r.model(ctx, append(specs, specification.PageOf(q.Page, q.Limit))...).
		Scopes(scope.NewestFirst).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &repository.Page{
		Items: items,
		Total: total,
		Page:  q.Page,
		Pages: repository.TotalPages(total, q.Limit),
	}, nil
}

func (r *NotificationRepositoryImpl) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.model(ctx, specification.ByRecipient{RecipientID: recipientID}, specification.Unread).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) MarkRead(ctx context.Context, recipientID, id uuid.UUID, readAt time.Time) error {
	// is_read and read_at always move together
	result := r.model(ctx, specification.Owned(recipientID, id)...).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) MarkUnread(ctx context.Context, recipientID, id uuid.UUID) error {
	result := r.model(ctx, specification.Owned(recipientID, id)...).
		Updates(map[string]interface{}{
			"is_read": false,
			"read_at": nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) MarkAllRead(ctx context.Context, recipientID uuid.UUID, readAt time.Time) (int64, error) {
	result := r.model(ctx, specification.ByRecipient{RecipientID: recipientID}, specification.Unread).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) Delete(ctx context.Context, recipientID, id uuid.UUID) (*model.Notification, error) {
	var deleted []model.Notification
	result := r.applySpecifications(r.db.WithContext(ctx), specification.Owned(recipientID, id)...).
		Clauses(clause.Returning{}).
		Delete(&deleted)

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 || len(deleted) == 0 {
		return nil, repository.ErrNotFound
	}
	return &deleted[0], nil
}

func (r *NotificationRepositoryImpl) DeleteAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	result := r.applySpecifications(r.db.WithContext(ctx), specification.ByRecipient{RecipientID: recipientID}, specification.Read).
		Delete(&model.Notification{})
	return result.RowsAffected, result.Error
}
