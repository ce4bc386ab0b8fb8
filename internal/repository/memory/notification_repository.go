package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"erp-notification-be/internal/model"
	"erp-notification-be/internal/repository"

	"github.com/google/uuid"
)

// NotificationRepository keeps notifications in process memory. It is used when
// STORE_DRIVER=memory and by the service/handler tests.
type NotificationRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]model.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		items: make(map[uuid.UUID]model.Notification),
	}
}

func (r *NotificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.items[n.ID] = clone(*n)
	return nil
}

func (r *NotificationRepository) FindByID(_ context.Context, recipientID, id uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.owned(recipientID, id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(n)
	return &out, nil
}

func (r *NotificationRepository) List(_ context.Context, q repository.ListQuery) (*repository.Page, error) {
	r.mu.RLock()
	var matched []model.Notification
	for _, n := range r.items {
		if n.RecipientID != q.RecipientID {
			continue
		}
		if q.UnreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, clone(n))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := repository.Offset(q.Page, q.Limit)
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit < end-start {
		end = start + q.Limit
	}

	return &repository.Page{
		Items: matched[start:end],
		Total: total,
		Page:  q.Page,
		Pages: repository.TotalPages(total, q.Limit),
	}, nil
}

func (r *NotificationRepository) UnreadCount(_ context.Context, recipientID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.items {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, recipientID, id uuid.UUID, readAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.owned(recipientID, id)
	if !ok {
		return repository.ErrNotFound
	}
	n.MarkRead(readAt)
	r.items[id] = n
	return nil
}

func (r *NotificationRepository) MarkUnread(_ context.Context, recipientID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.owned(recipientID, id)
	if !ok {
		return repository.ErrNotFound
	}
	n.MarkUnread()
	r.items[id] = n
	return nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, recipientID uuid.UUID, readAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected int64
	for id, n := range r.items {
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		n.MarkRead(readAt)
		r.items[id] = n
		affected++
	}
	return affected, nil
}

func (r *NotificationRepository) Delete(_ context.Context, recipientID, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.owned(recipientID, id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(r.items, id)
	return &n, nil
}

func (r *NotificationRepository) DeleteAllRead(_ context.Context, recipientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected int64
	for id, n := range r.items {
		if n.RecipientID == recipientID && n.IsRead {
			delete(r.items, id)
			affected++
		}
	}
	return affected, nil
}

// owned must be called with the lock held.
func (r *NotificationRepository) owned(recipientID, id uuid.UUID) (model.Notification, bool) {
	n, ok := r.items[id]
	if !ok || n.RecipientID != recipientID {
		return model.Notification{}, false
	}
	return n, true
}

func clone(n model.Notification) model.Notification {
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}
