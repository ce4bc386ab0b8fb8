package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"erp-notification-be/internal/dto"
	"erp-notification-be/internal/model"
	"erp-notification-be/internal/pkg/apperror"
	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/internal/repository"
	"erp-notification-be/internal/repository/memory"
	"erp-notification-be/pkg/events"
	"erp-notification-be/pkg/push"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	userID  uuid.UUID
	event   string
	payload interface{}
}

type recordingDelivery struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingDelivery) Emit(userID uuid.UUID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{userID: userID, event: event, payload: payload})
}

func (r *recordingDelivery) last() emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingDelivery) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

type fixture struct {
	svc      *NotificationService
	delivery *recordingDelivery
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{delivery: &recordingDelivery{}, clock: &now}
	f.svc = NewNotificationService(memory.NewNotificationRepository(), nil, f.delivery, Options{
		UnreadCountTTL: time.Minute,
		Clock:          func() time.Time { return *f.clock },
	}, logger.NewNop())
	return f
}

func (f *fixture) tick() {
	*f.clock = f.clock.Add(time.Second)
}

func (f *fixture) create(t *testing.T, owner uuid.UUID, title string) *model.Notification {
	t.Helper()
	n, err := f.svc.Create(context.Background(), owner, dto.CreateNotificationRequest{Title: title, Message: title + " body"})
	require.NoError(t, err)
	f.tick()
	return n
}

func TestCreateAssignsServerFieldsAndPushes(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	n, err := f.svc.Create(context.Background(), owner, dto.CreateNotificationRequest{
		Title:    "Accident report filed",
		Message:  "A traffic accident report needs review",
		Type:     "accident",
		Priority: model.PriorityUrgent,
		Metadata: map[string]interface{}{"reportId": "r-1"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, owner, n.RecipientID)
	assert.False(t, n.IsRead)
	assert.Nil(t, n.ReadAt)
	assert.True(t, f.clock.Equal(n.CreatedAt))
	assert.Equal(t, model.NotificationType("accident"), n.Type, "unknown types pass through")
	assert.JSONEq(t, `{"reportId":"r-1"}`, string(n.Metadata))

	last := f.delivery.last()
	assert.Equal(t, owner, last.userID)
	assert.Equal(t, push.EventNew, last.event)
}

func TestCreateDefaultsTypeAndValidates(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	n := f.create(t, owner, "Payslip ready")
	assert.Equal(t, model.NotificationTypeInfo, n.Type)

	_, err := f.svc.Create(context.Background(), owner, dto.CreateNotificationRequest{Message: "no title"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.Create(context.Background(), uuid.Nil, dto.CreateNotificationRequest{Title: "t", Message: "m"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestListPaginationAndUnreadCount(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	for i := 0; i < 45; i++ {
		f.create(t, owner, "Trip update")
	}

	res, err := f.svc.List(context.Background(), owner, dto.ListNotificationsQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Notifications, 20)
	assert.Equal(t, 1, res.Pagination.Page)
	assert.Equal(t, 3, res.Pagination.Pages)
	assert.Equal(t, int64(45), res.UnreadCount)

	res, err = f.svc.List(context.Background(), owner, dto.ListNotificationsQuery{Page: 3, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, res.Notifications, 5)
	assert.Equal(t, 3, res.Pagination.Page)
}

func TestListRejectsOutOfRangeLimit(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	for _, q := range []dto.ListNotificationsQuery{{Limit: 101}, {Limit: -1}, {Page: -2, Limit: 10}} {
		_, err := f.svc.List(context.Background(), owner, q)
		assert.ErrorIs(t, err, apperror.ErrValidation, "%+v", q)
	}

	_, err := f.svc.List(context.Background(), uuid.Nil, dto.ListNotificationsQuery{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestMarkAsReadUsesServerClockAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	n := f.create(t, owner, "Leave approved")

	readAt, err := f.svc.MarkAsRead(context.Background(), owner, n.ID)
	require.NoError(t, err)
	assert.True(t, f.clock.Equal(readAt))

	last := f.delivery.last()
	assert.Equal(t, push.EventMarkedRead, last.event)
	state := last.payload.(push.ReadState)
	assert.Equal(t, n.ID.String(), state.NotificationID)
	assert.True(t, readAt.Equal(*state.ReadAt))

	count, err := f.svc.UnreadCount(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReadAtHasStorePrecision(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	n := f.create(t, owner, "Payslip ready")
	*f.clock = f.clock.Add(123456789 * time.Nanosecond)

	readAt, err := f.svc.MarkAsRead(context.Background(), owner, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 123456000, readAt.Nanosecond())

	stored, err := f.svc.repo.FindByID(context.Background(), owner, n.ID)
	require.NoError(t, err)
	assert.True(t, readAt.Equal(*stored.ReadAt))
}

// stallingRepo parks the next UnreadCount after it has read the store.
type stallingRepo struct {
	repository.NotificationRepository
	stall   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (r *stallingRepo) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	count, err := r.NotificationRepository.UnreadCount(ctx, recipientID)
	if r.stall.CompareAndSwap(true, false) {
		r.read <- struct{}{}
		<-r.release
	}
	return count, err
}

func TestUnreadCountRacingAMutationIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := &stallingRepo{
		NotificationRepository: memory.NewNotificationRepository(),
		read:                   make(chan struct{}),
		release:                make(chan struct{}),
	}
	svc := NewNotificationService(repo, nil, nil, Options{UnreadCountTTL: time.Minute}, logger.NewNop())
	owner := uuid.New()
	n, err := svc.Create(ctx, owner, dto.CreateNotificationRequest{Title: "PO approved", Message: "PO-1 approved"})
	require.NoError(t, err)

	repo.stall.Store(true)
	stale := make(chan int64, 1)
	go func() {
		count, _ := svc.UnreadCount(ctx, owner)
		stale <- count
	}()

	<-repo.read
	_, err = svc.MarkAsRead(ctx, owner, n.ID)
	require.NoError(t, err)
	close(repo.release)

	assert.Equal(t, int64(1), <-stale)

	count, err := svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResyncPointsBypassTheCountCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewNotificationRepository()
	svc := NewNotificationService(repo, nil, nil, Options{UnreadCountTTL: time.Minute}, logger.NewNop())
	owner := uuid.New()
	n, err := svc.Create(ctx, owner, dto.CreateNotificationRequest{Title: "Stock low", Message: "SKU-9 below threshold"})
	require.NoError(t, err)

	cached, err := svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(1), cached)

	// another instance marks it read; this instance's cache is not invalidated
	require.NoError(t, repo.MarkRead(ctx, owner, n.ID, time.Now()))

	req, err := push.NewMessage(push.EventRequestCount, nil)
	require.NoError(t, err)
	replies, err := svc.HandleInbound(ctx, owner, req)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	var payload push.Count
	require.NoError(t, json.Unmarshal(replies[0].Data, &payload))
	assert.Zero(t, payload.Count)

	require.NoError(t, repo.MarkUnread(ctx, owner, n.ID))
	page, err := svc.List(ctx, owner, dto.ListNotificationsQuery{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.UnreadCount)
}

func TestMutationsRequireOwnership(t *testing.T) {
	f := newFixture(t)
	owner, stranger := uuid.New(), uuid.New()
	n := f.create(t, owner, "Vehicle assigned")
	ctx := context.Background()

	_, err := f.svc.MarkAsRead(ctx, stranger, n.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, f.svc.MarkAsUnread(ctx, stranger, n.ID), apperror.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, stranger, n.ID), apperror.ErrNotFound)
	_, err = f.svc.AcknowledgeRead(ctx, stranger, n.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.MarkAsRead(ctx, uuid.Nil, n.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestAcknowledgeReadKeepsStoredTimestamp(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	n := f.create(t, owner, "Beneficiary update")

	first, err := f.svc.AcknowledgeRead(context.Background(), owner, n.ID)
	require.NoError(t, err)

	f.tick()
	second, err := f.svc.AcknowledgeRead(context.Background(), owner, n.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestMarkAllAsReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	for i := 0; i < 3; i++ {
		f.create(t, owner, "Shift reminder")
	}
	ctx := context.Background()

	res, err := f.svc.MarkAllAsRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Affected)

	res, err = f.svc.MarkAllAsRead(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, res.Affected)

	list, err := f.svc.List(ctx, owner, dto.ListNotificationsQuery{})
	require.NoError(t, err)
	assert.Zero(t, list.UnreadCount)
	for _, n := range list.Notifications {
		assert.True(t, n.IsRead)
		assert.NotNil(t, n.ReadAt)
	}
}

func TestMarkAsUnreadClearsReadAt(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	n := f.create(t, owner, "Payroll")
	ctx := context.Background()

	_, err := f.svc.MarkAsRead(ctx, owner, n.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkAsUnread(ctx, owner, n.ID))

	list, err := f.svc.List(ctx, owner, dto.ListNotificationsQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Nil(t, list.Notifications[0].ReadAt)
	assert.Equal(t, push.EventMarkedUnread, f.delivery.last().event)
}

func TestDeleteReportsWhetherItWasUnread(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	unread := f.create(t, owner, "one")
	read := f.create(t, owner, "two")
	ctx := context.Background()
	_, err := f.svc.MarkAsRead(ctx, owner, read.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, owner, unread.ID))
	assert.True(t, f.delivery.last().payload.(push.Deleted).WasUnread)

	require.NoError(t, f.svc.Delete(ctx, owner, read.ID))
	assert.False(t, f.delivery.last().payload.(push.Deleted).WasUnread)

	assert.ErrorIs(t, f.svc.Delete(ctx, owner, read.ID), apperror.ErrNotFound)
}

func TestDeleteAllRead(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	a := f.create(t, owner, "a")
	f.create(t, owner, "b")
	ctx := context.Background()
	_, err := f.svc.MarkAsRead(ctx, owner, a.ID)
	require.NoError(t, err)

	res, err := f.svc.DeleteAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)

	res, err = f.svc.DeleteAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)

	list, err := f.svc.List(ctx, owner, dto.ListNotificationsQuery{})
	require.NoError(t, err)
	assert.Len(t, list.Notifications, 1)
}

func TestHandleInbound(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	n := f.create(t, owner, "Task assigned")
	f.create(t, owner, "Task assigned")
	ctx := context.Background()

	req, _ := push.NewMessage(push.EventRequestCount, nil)
	replies, err := f.svc.HandleInbound(ctx, owner, req)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	var count push.Count
	require.NoError(t, json.Unmarshal(replies[0].Data, &count))
	assert.Equal(t, int64(2), count.Count)

	// the client's timestamp is ignored
	forged := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	mark, _ := push.NewMessage(push.EventMarkRead, push.ReadState{NotificationID: n.ID.String(), ReadAt: &forged})
	_, err = f.svc.HandleInbound(ctx, owner, mark)
	require.NoError(t, err)
	state := f.delivery.last().payload.(push.ReadState)
	assert.True(t, f.clock.Equal(*state.ReadAt))

	bad, _ := push.NewMessage(push.EventMarkRead, push.ReadState{NotificationID: "nope"})
	_, err = f.svc.HandleInbound(ctx, owner, bad)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	unknown, _ := push.NewMessage("notification:explode", nil)
	_, err = f.svc.HandleInbound(ctx, owner, unknown)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHandleEventCreatesNotification(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	err := f.svc.handleEvent(ctx, events.BaseEvent{
		Type: events.TypeNotificationRequested,
		Data: map[string]interface{}{
			"recipient_id": owner.String(),
			"title":        "Payroll processed",
			"message":      "March payroll has been processed",
			"type":         "success",
			"link":         "/payroll/2026-03",
		},
	})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, owner, dto.ListNotificationsQuery{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, "/payroll/2026-03", list.Notifications[0].Link)
	assert.Equal(t, model.NotificationTypeSuccess, list.Notifications[0].Type)

	// malformed and foreign events are acknowledged without side effects
	assert.NoError(t, f.svc.handleEvent(ctx, events.BaseEvent{Type: events.TypeNotificationRequested, Data: map[string]interface{}{"title": "x"}}))
	assert.NoError(t, f.svc.handleEvent(ctx, events.BaseEvent{Type: "USER_LOGIN", Data: map[string]interface{}{}}))
	assert.Equal(t, []string{push.EventNew}, f.delivery.names())
}

func TestStartConsumesFromBus(t *testing.T) {
	bus := events.NewGoChannelBus(nil)
	defer bus.Close()

	delivery := &recordingDelivery{}
	repo := memory.NewNotificationRepository()
	svc := NewNotificationService(repo, bus, delivery, Options{}, logger.NewNop())
	require.NoError(t, svc.Start())

	owner := uuid.New()
	require.NoError(t, bus.Publish(context.Background(), events.BaseEvent{
		Type:       events.TypeNotificationRequested,
		Data:       map[string]interface{}{"recipient_id": owner.String(), "title": "Welcome", "message": "Account ready"},
		OccurredAt: time.Now(),
	}))

	require.Eventually(t, func() bool {
		count, err := repo.UnreadCount(context.Background(), owner)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)
}
