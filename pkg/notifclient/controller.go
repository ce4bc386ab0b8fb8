package notifclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"erp-notification-be/internal/pkg/logger"
	"erp-notification-be/pkg/push"
)

// ErrorDisplayWindow is how long a transient error banner stays visible.
const ErrorDisplayWindow = 5 * time.Second

const moduleName = "NotificationController"

// Clock drives every timer the controller uses.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Options struct {
	API API
	// Dialer opens the push channel; nil runs the controller in pull-only mode.
	Dialer Dialer
	Store  PreferenceStore
	// Alerter is optional; nil disables platform alerts.
	Alerter Alerter
	Clock   Clock
	// Jitter returns a reconnect jitter in [0, 1s).
	Jitter func() time.Duration
	Logger logger.ILogger
	// OnChange receives a snapshot after every state change.
	OnChange func(State)
}

// Controller reconciles optimistic local state, Query API responses and push
// events into one notification list and unread counter.
type Controller struct {
	api      API
	dialer   Dialer
	store    PreferenceStore
	alerter  Alerter
	clock    Clock
	jitter   func() time.Duration
	log      logger.ILogger
	onChange func(State)

	mu         sync.Mutex
	conn       ConnState
	items      []Notification
	unread     int64
	page       int
	hasMore    bool
	loading    bool
	unreadOnly bool
	attempts   int
	prefs      Preferences

	banner      *Banner
	bannerSeq   uint64
	bannerTimer Timer

	// seq numbers every fetch; generation is the seq of the newest page-1 fetch.
	seq        uint64
	generation uint64

	started   bool
	cancel    context.CancelFunc
	live      Conn
	connected bool
	wg        sync.WaitGroup
}

func NewController(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("notifclient: API is required")
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Jitter == nil {
		opts.Jitter = func() time.Duration { return time.Duration(rand.Int64N(int64(jitterRange))) }
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	c := &Controller{
		api:      opts.API,
		dialer:   opts.Dialer,
		store:    opts.Store,
		alerter:  opts.Alerter,
		clock:    opts.Clock,
		jitter:   opts.Jitter,
		log:      opts.Logger,
		onChange: opts.OnChange,
		conn:     StateDisconnected,
		prefs:    DefaultPreferences(),
	}

	if c.store != nil {
		prefs, err := c.store.Load()
		if err != nil {
			c.log.Warn(moduleName, "Failed to load preferences, using defaults", map[string]interface{}{"error": err.Error()})
		}
		c.prefs = prefs.normalize()
	}
	return c, nil
}

// State returns a snapshot safe to hold onto.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	items := make([]Notification, len(c.items))
	copy(items, c.items)
	var banner *Banner
	if c.banner != nil {
		b := *c.banner
		banner = &b
	}
	return State{
		Connection:        c.conn,
		Notifications:     items,
		UnreadCount:       c.unread,
		Page:              c.page,
		HasMore:           c.hasMore,
		Loading:           c.loading,
		UnreadOnly:        c.unreadOnly,
		ReconnectAttempts: c.attempts,
		Error:             banner,
		Preferences:       c.prefs.clone(),
	}
}

// update applies fn under the lock and publishes the resulting snapshot.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	var snap State
	if c.onChange != nil {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}

// Start performs the initial fetch and opens the push channel.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	err := c.Refresh(ctx)
	c.startPush(ctx)
	return err
}

// Reconnect restarts the push channel after it gave up, with a fresh attempt budget.
func (c *Controller) Reconnect(ctx context.Context) {
	c.update(func() {
		if c.banner != nil && c.banner.Persistent && c.banner.Kind == KindNetwork {
			c.banner = nil
		}
		c.attempts = 0
	})
	c.startPush(ctx)
}

// Close tears the session down. The controller cannot be restarted afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancel
	if c.bannerTimer != nil {
		c.bannerTimer.Stop()
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	live := c.live
	c.mu.Unlock()
	if live != nil {
		live.Close()
	}

	c.wg.Wait()
	c.update(func() {
		c.conn = StateDisconnected
		c.live = nil
	})
}

// ---- Error surface ----

func (c *Controller) report(err error) {
	c.update(func() { c.reportLocked(err) })
}

func (c *Controller) reportLocked(err error) {
	kind := KindOf(err)
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	c.showBannerLocked(kind, msg, kind == KindUnauthorized)
}

func (c *Controller) showBannerLocked(kind ErrorKind, msg string, persistent bool) {
	if c.banner != nil && c.banner.Persistent && !persistent {
		c.log.Debug(moduleName, "Transient error suppressed by persistent banner", map[string]interface{}{"message": msg})
		return
	}

	c.bannerSeq++
	id := c.bannerSeq
	c.banner = &Banner{Kind: kind, Message: msg, Persistent: persistent, id: id}

	if c.bannerTimer != nil {
		c.bannerTimer.Stop()
		c.bannerTimer = nil
	}
	if !persistent {
		c.bannerTimer = c.clock.AfterFunc(ErrorDisplayWindow, func() {
			c.update(func() {
				if c.banner != nil && c.banner.id == id {
					c.banner = nil
				}
			})
		})
	}
}

// ClearError dismisses the current banner.
func (c *Controller) ClearError() {
	c.update(func() {
		c.banner = nil
		if c.bannerTimer != nil {
			c.bannerTimer.Stop()
			c.bannerTimer = nil
		}
	})
}

// ---- Local list helpers; all require c.mu ----

func (c *Controller) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) decrementLocked() {
	if c.unread > 0 {
		c.unread--
	}
}

// insertSortedLocked keeps the list newest-first.
func (c *Controller) insertSortedLocked(n Notification) {
	if c.indexOf(n.ID) >= 0 {
		return
	}
	pos := len(c.items)
	for i := range c.items {
		if c.items[i].CreatedAt.Before(n.CreatedAt) {
			pos = i
			break
		}
	}
	c.items = append(c.items, Notification{})
	copy(c.items[pos+1:], c.items[pos:])
	c.items[pos] = n
}

func dedupe(items []Notification) []Notification {
	seen := make(map[string]struct{}, len(items))
	out := make([]Notification, 0, len(items))
	for _, n := range items {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

// applyReadLocked marks one item read with the server timestamp. It reports
// false when the id is not loaded.
func (c *Controller) applyReadLocked(id string, readAt time.Time) bool {
	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	if c.items[idx].IsRead {
		// Already counted; only take the authoritative timestamp.
		c.items[idx].ReadAt = &readAt
		return true
	}
	c.items[idx].markRead(readAt)
	c.decrementLocked()
	return true
}

func (c *Controller) applyUnreadLocked(id string) bool {
	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	if c.items[idx].IsRead {
		c.items[idx].markUnread()
		c.unread++
	}
	return true
}

func (c *Controller) removeLocked(id string) (Notification, bool) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Notification{}, false
	}
	removed := c.items[idx]
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	if !removed.IsRead {
		c.decrementLocked()
	}
	return removed, true
}

func (c *Controller) removeReadLocked() []Notification {
	var removed []Notification
	kept := c.items[:0]
	for _, n := range c.items {
		if n.IsRead {
			removed = append(removed, n)
			continue
		}
		kept = append(kept, n)
	}
	c.items = kept
	return removed
}

// ---- Query API ----

// Refresh fetches page 1 and replaces the list.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.fetch(ctx, true)
}

// LoadMore appends the next page. It is a no-op while a fetch is in flight or nothing is left.
func (c *Controller) LoadMore(ctx context.Context) error {
	return c.fetch(ctx, false)
}

// SetFilter switches between all and unread-only and refetches page 1.
func (c *Controller) SetFilter(ctx context.Context, unreadOnly bool) error {
	c.update(func() { c.unreadOnly = unreadOnly })
	return c.Refresh(ctx)
}

func (c *Controller) fetch(ctx context.Context, replace bool) error {
	c.mu.Lock()
	if !replace && (c.loading || !c.hasMore) {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	seq := c.seq
	if replace {
		c.generation = seq
	}
	gen := c.generation
	params := ListParams{Page: 1, Limit: c.prefs.PaginationLimit, UnreadOnly: c.unreadOnly}
	if !replace {
		params.Page = c.page + 1
	}
	c.loading = true
	c.mu.Unlock()

	res, err := c.api.List(ctx, params)

	stale := false
	c.update(func() {
		if gen != c.generation {
			// A newer page-1 fetch owns the list now.
			stale = true
			return
		}
		if seq == c.seq {
			c.loading = false
		}
		if err != nil {
			c.reportLocked(err)
			return
		}

		if replace {
			c.items = dedupe(res.Notifications)
			c.unread = max(res.UnreadCount, 0)
		} else {
			for _, n := range res.Notifications {
				if c.indexOf(n.ID) < 0 {
					c.items = append(c.items, n)
				}
			}
		}
		c.page = res.Pagination.Page
		c.hasMore = res.Pagination.Page < res.Pagination.Pages
	})

	if stale {
		c.log.Debug(moduleName, "Discarded stale page response", map[string]interface{}{"seq": seq, "page": params.Page})
		return nil
	}
	return err
}

// syncCount pulls the authoritative count when a change touched an item that is not loaded.
func (c *Controller) syncCount(ctx context.Context) {
	count, err := c.api.UnreadCount(ctx)
	if err != nil {
		c.log.Debug(moduleName, "Unread count resync failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c.update(func() { c.unread = max(count, 0) })
}

// MarkAsRead marks one notification read. The local guess is replaced by the server's readAt.
func (c *Controller) MarkAsRead(ctx context.Context, id string) error {
	var guess time.Time
	optimistic := false
	loaded := false
	c.update(func() {
		idx := c.indexOf(id)
		if idx < 0 {
			return
		}
		loaded = true
		if !c.items[idx].IsRead {
			guess = c.clock.Now()
			c.items[idx].markRead(guess)
			c.decrementLocked()
			optimistic = true
		}
	})

	readAt, err := c.api.MarkRead(ctx, id)
	if err != nil {
		c.update(func() {
			// A pushed marked-read replaces the guess; that state is confirmed.
			if optimistic {
				if idx := c.indexOf(id); idx >= 0 && c.items[idx].IsRead &&
					c.items[idx].ReadAt != nil && c.items[idx].ReadAt.Equal(guess) {
					c.items[idx].markUnread()
					c.unread++
				}
			}
			c.reportLocked(err)
		})
		return err
	}

	c.update(func() { c.applyReadLocked(id, readAt) })
	if !loaded {
		c.syncCount(ctx)
	}
	return nil
}

func (c *Controller) MarkAsUnread(ctx context.Context, id string) error {
	var prevReadAt *time.Time
	optimistic := false
	loaded := false
	c.update(func() {
		idx := c.indexOf(id)
		if idx < 0 {
			return
		}
		loaded = true
		if c.items[idx].IsRead {
			prevReadAt = c.items[idx].ReadAt
			c.items[idx].markUnread()
			c.unread++
			optimistic = true
		}
	})

	if err := c.api.MarkUnread(ctx, id); err != nil {
		c.update(func() {
			if optimistic && prevReadAt != nil {
				if idx := c.indexOf(id); idx >= 0 && !c.items[idx].IsRead {
					c.items[idx].markRead(*prevReadAt)
					c.decrementLocked()
				}
			}
			c.reportLocked(err)
		})
		return err
	}

	if !loaded {
		c.syncCount(ctx)
	}
	return nil
}

// MarkAllAsRead is idempotent: a second call finds nothing unread.
func (c *Controller) MarkAllAsRead(ctx context.Context) error {
	var changed []string
	var dropped int64
	c.update(func() {
		guess := c.clock.Now()
		for i := range c.items {
			if !c.items[i].IsRead {
				c.items[i].markRead(guess)
				changed = append(changed, c.items[i].ID)
			}
		}
		dropped = c.unread
		c.unread = 0
	})

	readAt, err := c.api.MarkAllRead(ctx)
	if err != nil {
		c.update(func() {
			for _, id := range changed {
				if idx := c.indexOf(id); idx >= 0 && c.items[idx].IsRead {
					c.items[idx].markUnread()
				}
			}
			c.unread += dropped
			c.reportLocked(err)
		})
		return err
	}

	c.update(func() {
		for _, id := range changed {
			if idx := c.indexOf(id); idx >= 0 && c.items[idx].IsRead {
				at := readAt
				c.items[idx].ReadAt = &at
			}
		}
	})
	return nil
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	var removed Notification
	loaded := false
	c.update(func() { removed, loaded = c.removeLocked(id) })

	if err := c.api.Delete(ctx, id); err != nil {
		c.update(func() {
			if loaded && c.indexOf(id) < 0 {
				c.insertSortedLocked(removed)
				if !removed.IsRead {
					c.unread++
				}
			}
			c.reportLocked(err)
		})
		return err
	}

	if !loaded {
		c.syncCount(ctx)
	}
	return nil
}

func (c *Controller) DeleteAllRead(ctx context.Context) error {
	var removed []Notification
	c.update(func() { removed = c.removeReadLocked() })

	if err := c.api.DeleteAllRead(ctx); err != nil {
		c.update(func() {
			for _, n := range removed {
				c.insertSortedLocked(n)
			}
			c.reportLocked(err)
		})
		return err
	}
	return nil
}

// ---- Preferences ----

func (c *Controller) updatePrefs(fn func(p *Preferences)) error {
	var next Preferences
	c.update(func() {
		next = c.prefs.clone()
		fn(&next)
		c.prefs = next
	})

	if c.store == nil {
		return nil
	}
	if err := c.store.Save(next.clone()); err != nil {
		c.log.Warn(moduleName, "Failed to persist preferences", map[string]interface{}{"error": err.Error()})
		c.report(newError(KindValidation, "could not save preferences", err))
		return err
	}
	return nil
}

func (c *Controller) SetMuted(muted bool) error {
	return c.updatePrefs(func(p *Preferences) { p.NotificationsMuted = muted })
}

// ToggleMute flips the mute flag and returns the new value.
func (c *Controller) ToggleMute() (bool, error) {
	var muted bool
	err := c.updatePrefs(func(p *Preferences) {
		p.NotificationsMuted = !p.NotificationsMuted
		muted = p.NotificationsMuted
	})
	return muted, err
}

func (c *Controller) SetSoundEnabled(enabled bool) error {
	return c.updatePrefs(func(p *Preferences) { p.SoundEnabled = enabled })
}

func (c *Controller) SetSelectedChannels(channels []string) error {
	cp := append([]string{}, channels...)
	return c.updatePrefs(func(p *Preferences) { p.SelectedChannels = cp })
}

// SetPaginationLimit validates before any network call, then refetches page 1 with the new size.
func (c *Controller) SetPaginationLimit(ctx context.Context, limit int) error {
	if err := ValidatePaginationLimit(limit); err != nil {
		c.report(err)
		return err
	}
	if err := c.updatePrefs(func(p *Preferences) { p.PaginationLimit = limit }); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// ---- Push channel ----

func (c *Controller) startPush(ctx context.Context) {
	if c.dialer == nil {
		return
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.runPush(loopCtx)
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	t := c.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}

func (c *Controller) runPush(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		cancel := c.cancel
		c.cancel = nil
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()

	failures := 0
	for {
		c.update(func() { c.conn = StateConnecting })

		conn, err := c.dialer.Dial(ctx)
		if err == nil {
			err = c.session(ctx, conn)
			if err == nil {
				// Context cancelled mid-session.
				c.update(func() { c.conn = StateDisconnected })
				return
			}
			failures = 0
		}

		if ctx.Err() != nil {
			c.update(func() { c.conn = StateDisconnected })
			return
		}

		if KindOf(err) == KindUnauthorized {
			c.update(func() {
				c.conn = StateDisconnected
				c.showBannerLocked(KindUnauthorized, "session expired, please sign in again", true)
			})
			return
		}

		failures++
		c.log.Warn(moduleName, "Push channel unavailable", map[string]interface{}{"attempt": failures, "error": err.Error()})
		if failures >= MaxReconnectAttempts {
			c.update(func() {
				c.conn = StateDisconnected
				c.attempts = failures
				c.showBannerLocked(KindNetwork, fmt.Sprintf("live updates unavailable after %d attempts", failures), true)
			})
			return
		}

		delay := Backoff(failures-1, c.jitter())
		c.update(func() { c.attempts = failures })
		if !c.sleep(ctx, delay) {
			c.update(func() { c.conn = StateDisconnected })
			return
		}
	}
}

// session serves one connection until it drops. A nil return means ctx ended.
func (c *Controller) session(ctx context.Context, conn Conn) error {
	defer conn.Close()

	reconnected := false
	cancelled := false
	c.update(func() {
		if ctx.Err() != nil {
			cancelled = true
			return
		}
		c.live = conn
		c.conn = StateConnected
		c.attempts = 0
		reconnected = c.connected
		c.connected = true
		if c.banner != nil && c.banner.Persistent && c.banner.Kind == KindNetwork {
			c.banner = nil
		}
	})
	if cancelled {
		return nil
	}
	defer c.update(func() { c.live = nil })

	c.log.Info(moduleName, "Push channel connected", nil)
	c.requestCount()
	if reconnected {
		// Events missed while offline are only recoverable through the Query API.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Refresh(ctx)
		}()
	}

	for {
		msg, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handlePush(msg)
	}
}

func (c *Controller) requestCount() {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()
	if live == nil {
		return
	}
	msg, _ := push.NewMessage(push.EventRequestCount, nil)
	if err := live.Send(msg); err != nil {
		c.log.Debug(moduleName, "Count request failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *Controller) handlePush(msg push.Message) {
	switch msg.Event {
	case push.EventNew:
		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil || n.ID == "" {
			c.log.Warn(moduleName, "Malformed notification frame", nil)
			return
		}
		c.receiveNew(n)

	case push.EventMarkedRead:
		var state push.ReadState
		if err := json.Unmarshal(msg.Data, &state); err != nil || state.ReadAt == nil {
			c.log.Warn(moduleName, "Malformed marked-read frame", nil)
			return
		}
		readAt := *state.ReadAt
		missing := false
		c.update(func() {
			if state.All {
				for i := range c.items {
					if !c.items[i].IsRead {
						c.items[i].markRead(readAt)
					}
				}
				c.unread = 0
				return
			}
			missing = !c.applyReadLocked(state.NotificationID, readAt)
		})
		if missing {
			c.requestCount()
		}

	case push.EventMarkedUnread:
		var state push.ReadState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			return
		}
		missing := false
		c.update(func() { missing = !c.applyUnreadLocked(state.NotificationID) })
		if missing {
			c.requestCount()
		}

	case push.EventDeleted:
		var d push.Deleted
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		missing := false
		c.update(func() {
			if d.All {
				c.removeReadLocked()
				return
			}
			_, found := c.removeLocked(d.NotificationID)
			missing = !found && d.WasUnread
		})
		if missing {
			c.requestCount()
		}

	case push.EventCount:
		var cnt push.Count
		if err := json.Unmarshal(msg.Data, &cnt); err != nil {
			return
		}
		c.update(func() { c.unread = max(cnt.Count, 0) })

	case push.EventError:
		var e push.Error
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		c.report(newError(KindNetwork, e.Message, nil))

	default:
		c.log.Debug(moduleName, "Ignoring unknown push event", map[string]interface{}{"event": msg.Event})
	}
}

// receiveNew applies a notification:new event. While muted the event is dropped.
func (c *Controller) receiveNew(n Notification) {
	alert := false
	c.update(func() {
		if c.prefs.NotificationsMuted {
			return
		}
		if c.indexOf(n.ID) >= 0 {
			return
		}
		c.items = append([]Notification{n}, c.items...)
		if !n.IsRead {
			c.unread++
		}
		alert = c.alerter != nil && c.conn == StateConnected && c.prefs.SoundEnabled
	})
	if alert {
		c.alert(n)
	}
}

func (c *Controller) alert(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn(moduleName, "Alerter panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	if err := c.alerter.Alert(n); err != nil {
		c.log.Debug(moduleName, "Alert failed", map[string]interface{}{"error": err.Error()})
	}
}
