package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"erp-notification-be/internal/dto"
	"erp-notification-be/internal/model"
	"erp-notification-be/internal/pkg/apperror"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/internal/pkg/serverutils"
	"erp-notification-be/internal/repository"
	"erp-notification-be/pkg/events"
	"erp-notification-be/pkg/push"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/datatypes"
)

// NotificationDelivery pushes real-time events to a user's live connections.
// Implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Emit(userID uuid.UUID, event string, payload interface{})
}

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	UnreadCountTTL  time.Duration
	// Clock supplies every server-assigned timestamp. Defaults to time.Now.
	Clock func() time.Time
}

type NotificationService struct {
	repo       repository.NotificationRepository
	subscriber events.Subscriber
	delivery   NotificationDelivery
	counts     *cache.Cache
	opts       Options

	// countGen is bumped on every invalidation. A count read that raced an
	// invalidation is returned but never cached.
	genMu    sync.Mutex
	countGen map[uuid.UUID]uint64

	logger logger.ILogger
}

func NewNotificationService(repo repository.NotificationRepository, sub events.Subscriber, delivery NotificationDelivery, opts Options, log logger.ILogger) *NotificationService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.UnreadCountTTL <= 0 {
		opts.UnreadCountTTL = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &NotificationService{
		repo:       repo,
		subscriber: sub,
		delivery:   delivery,
		counts:     cache.New(opts.UnreadCountTTL, 2*opts.UnreadCountTTL),
		countGen:   make(map[uuid.UUID]uint64),
		opts:       opts,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() error {
	if s.subscriber == nil {
		return nil
	}
	err := s.subscriber.Subscribe("events.>", "notif-service-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("NotificationService", "Notification service started, listening to events.>", nil)
	return nil
}

// now is truncated to the precision postgres stores, so the timestamp a
// caller receives equals the one a later fetch returns.
func (s *NotificationService) now() time.Time {
	return s.opts.Clock().UTC().Truncate(time.Microsecond)
}

func (s *NotificationService) emit(userID uuid.UUID, event string, payload interface{}) {
	if s.delivery != nil {
		s.delivery.Emit(userID, event, payload)
	}
}

func requireIdentity(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return apperror.ErrUnauthorized
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("notification")
	}
	return err
}

func (s *NotificationService) invalidateCount(userID uuid.UUID) {
	s.genMu.Lock()
	s.countGen[userID]++
	s.counts.Delete(userID.String())
	s.genMu.Unlock()
}

func (s *NotificationService) generation(userID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.countGen[userID]
}

// loadCount reads the store and caches the result unless an invalidation
// happened while the read was in flight.
func (s *NotificationService) loadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	gen := s.generation(userID)
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.genMu.Lock()
	if s.countGen[userID] == gen {
		s.counts.SetDefault(userID.String(), count)
	}
	s.genMu.Unlock()
	return count, nil
}

// FreshUnreadCount bypasses the cache. Resynchronization points use it:
// another instance may have changed the count without invalidating ours.
func (s *NotificationService) FreshUnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := requireIdentity(userID); err != nil {
		return 0, err
	}
	return s.loadCount(ctx, userID)
}

// Create persists a notification for recipientID and pushes it to their live sessions.
func (s *NotificationService) Create(ctx context.Context, recipientID uuid.UUID, req dto.CreateNotificationRequest) (*model.Notification, error) {
	if err := requireIdentity(recipientID); err != nil {
		return nil, err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}

	notif := model.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Title:       req.Title,
		Message:     req.Message,
		Type:        req.Type,
		Link:        req.Link,
		Priority:    req.Priority,
		CreatedAt:   s.now(),
	}
	if notif.Type == "" {
		notif.Type = model.NotificationTypeInfo
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, apperror.Validation("metadata is not serialisable")
		}
		notif.Metadata = datatypes.JSON(meta)
	}

	if err := s.repo.Create(ctx, &notif); err != nil {
		return nil, err
	}
	s.invalidateCount(recipientID)

	s.emit(recipientID, push.EventNew, notif)
	return &notif, nil
}

// List returns one page, newest first, with the current unread count.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, q dto.ListNotificationsQuery) (*dto.NotificationListResponse, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = s.opts.DefaultPageSize
	}
	if q.Limit > s.opts.MaxPageSize {
		return nil, apperror.Validation("limit must be between 1 and %d", s.opts.MaxPageSize)
	}
	if err := serverutils.ValidateRequest(q); err != nil {
		return nil, err
	}

	page, err := s.repo.List(ctx, repository.ListQuery{
		RecipientID: userID,
		Page:        q.Page,
		Limit:       q.Limit,
		UnreadOnly:  q.UnreadOnly,
	})
	if err != nil {
		return nil, err
	}

	// page 1 is the client's (re)load point and gets an authoritative count
	countOf := s.UnreadCount
	if q.Page == 1 {
		countOf = s.FreshUnreadCount
	}
	unread, err := countOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := page.Items
	if items == nil {
		items = []model.Notification{}
	}
	return &dto.NotificationListResponse{
		Notifications: items,
		Pagination: dto.PaginationResponse{
			Page:  page.Page,
			Pages: page.Pages,
			Total: page.Total,
			Limit: q.Limit,
		},
		UnreadCount: unread,
	}, nil
}

// UnreadCount is served from a short-lived per-user cache.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := requireIdentity(userID); err != nil {
		return 0, err
	}
	if v, ok := s.counts.Get(userID.String()); ok {
		return v.(int64), nil
	}
	return s.loadCount(ctx, userID)
}

// MarkAsRead stamps a server timestamp and returns it. Concurrent callers are
// last-write-wins; each receives the timestamp it wrote.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) (time.Time, error) {
	if err := requireIdentity(userID); err != nil {
		return time.Time{}, err
	}
	readAt := s.now()
	if err := s.repo.MarkRead(ctx, userID, id, readAt); err != nil {
		return time.Time{}, translate(err)
	}
	s.invalidateCount(userID)

	s.emit(userID, push.EventMarkedRead, push.ReadState{NotificationID: id.String(), ReadAt: &readAt})
	return readAt, nil
}

// AcknowledgeRead serves the socket mark-read frame. An already-read
// notification keeps its stored timestamp; the client's own timestamp is never used.
func (s *NotificationService) AcknowledgeRead(ctx context.Context, userID, id uuid.UUID) (time.Time, error) {
	if err := requireIdentity(userID); err != nil {
		return time.Time{}, err
	}
	existing, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return time.Time{}, translate(err)
	}
	if existing.IsRead && existing.ReadAt != nil {
		readAt := existing.ReadAt.UTC()
		s.emit(userID, push.EventMarkedRead, push.ReadState{NotificationID: id.String(), ReadAt: &readAt})
		return readAt, nil
	}
	return s.MarkAsRead(ctx, userID, id)
}

func (s *NotificationService) MarkAsUnread(ctx context.Context, userID, id uuid.UUID) error {
	if err := requireIdentity(userID); err != nil {
		return err
	}
	if err := s.repo.MarkUnread(ctx, userID, id); err != nil {
		return translate(err)
	}
	s.invalidateCount(userID)

	s.emit(userID, push.EventMarkedUnread, push.ReadState{NotificationID: id.String()})
	return nil
}

// MarkAllAsRead applies one server timestamp to every unread notification of the user.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (*dto.MarkAllReadResponse, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	readAt := s.now()
	affected, err := s.repo.MarkAllRead(ctx, userID, readAt)
	if err != nil {
		return nil, err
	}
	s.invalidateCount(userID)

	if affected > 0 {
		s.emit(userID, push.EventMarkedRead, push.ReadState{All: true, ReadAt: &readAt})
	}
	s.emit(userID, push.EventCount, push.Count{Count: 0})
	return &dto.MarkAllReadResponse{ReadAt: readAt, Affected: affected}, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := requireIdentity(userID); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return translate(err)
	}
	s.invalidateCount(userID)

	s.emit(userID, push.EventDeleted, push.Deleted{NotificationID: id.String(), WasUnread: !deleted.IsRead})
	return nil
}

func (s *NotificationService) DeleteAllRead(ctx context.Context, userID uuid.UUID) (*dto.DeleteAllReadResponse, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	deleted, err := s.repo.DeleteAllRead(ctx, userID)
	if err != nil {
		return nil, err
	}

	if deleted > 0 {
		s.emit(userID, push.EventDeleted, push.Deleted{All: true})
	}
	return &dto.DeleteAllReadResponse{Deleted: deleted}, nil
}

// HandleInbound answers frames sent over the push channel.
func (s *NotificationService) HandleInbound(ctx context.Context, userID uuid.UUID, msg push.Message) ([]push.Message, error) {
	switch msg.Event {
	case push.EventRequestCount:
		count, err := s.FreshUnreadCount(ctx, userID)
		if err != nil {
			return nil, err
		}
		reply, err := push.NewMessage(push.EventCount, push.Count{Count: count})
		if err != nil {
			return nil, err
		}
		return []push.Message{reply}, nil

	case push.EventMarkRead:
		var state push.ReadState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			return nil, apperror.Validation("malformed mark-read payload")
		}
		id, err := uuid.Parse(state.NotificationID)
		if err != nil {
			return nil, apperror.Validation("invalid notification id")
		}
		// the marked-read broadcast reaches the sender too, no direct reply needed
		if _, err := s.AcknowledgeRead(ctx, userID, id); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, apperror.Validation("unsupported event %q", msg.Event)
	}
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	if event.EventType() != events.TypeNotificationRequested {
		s.logger.Debug("NotificationService", fmt.Sprintf("Ignoring event: %s", event.EventType()), nil)
		return nil
	}

	recipientID, req, err := requestFromPayload(event.Payload())
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		s.logger.Warn("NotificationService", "Dropping malformed notification request", map[string]interface{}{"error": err.Error()})
		return nil
	}

	if _, err := s.Create(ctx, recipientID, req); err != nil {
		if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrUnauthorized) {
			s.logger.Warn("NotificationService", "Rejected notification request", map[string]interface{}{"error": err.Error()})
			return nil
		}
		s.logger.Error("NotificationService", "Error saving notification", map[string]interface{}{"recipient_id": recipientID, "error": err.Error()})
		return err
	}
	return nil
}

func requestFromPayload(payload map[string]interface{}) (uuid.UUID, dto.CreateNotificationRequest, error) {
	var req dto.CreateNotificationRequest

	raw, _ := payload["recipient_id"].(string)
	recipientID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, req, fmt.Errorf("recipient_id %q: %w", raw, err)
	}

	req.Title, _ = payload["title"].(string)
	req.Message, _ = payload["message"].(string)
	req.Link, _ = payload["link"].(string)
	if t, ok := payload["type"].(string); ok {
		req.Type = model.NotificationType(t)
	}
	if p, ok := payload["priority"].(string); ok {
		req.Priority = model.Priority(p)
	}
	if meta, ok := payload["metadata"].(map[string]interface{}); ok {
		req.Metadata = meta
	}
	return recipientID, req, nil
}
