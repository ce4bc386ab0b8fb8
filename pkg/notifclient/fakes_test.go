package notifclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"erp-notification-be/pkg/push"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func note(i int, read bool) Notification {
	n := Notification{
		ID:        fmt.Sprintf("n%03d", i),
		Title:     fmt.Sprintf("Notification %d", i),
		Message:   "body",
		Type:      "info",
		CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
	}
	if read {
		n.markRead(n.CreatedAt.Add(time.Second))
	}
	return n
}

// ---- API ----

type fakeAPI struct {
	mu        sync.Mutex
	all       []Notification
	readAt    time.Time
	errs      map[string]error
	gate      chan struct{}
	readGate  chan struct{}
	listCalls []ListParams
	calls     map[string]int
}

func newFakeAPI(items ...Notification) *fakeAPI {
	a := &fakeAPI{
		readAt: baseTime.Add(24 * time.Hour),
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
	a.all = append(a.all, items...)
	return a
}

func seedNotes(count, readEvery int) []Notification {
	out := make([]Notification, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, note(i, readEvery > 0 && i%readEvery == 0))
	}
	return out
}

func (a *fakeAPI) setErr(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[op] = err
}

func (a *fakeAPI) callCount(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *fakeAPI) lists() []ListParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ListParams(nil), a.listCalls...)
}

// holdNextList makes the next List call wait until the returned func is called.
func (a *fakeAPI) holdNextList() func() {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gate = gate
	a.mu.Unlock()
	return func() { close(gate) }
}

// holdNextMarkRead does the same for MarkRead.
func (a *fakeAPI) holdNextMarkRead() func() {
	gate := make(chan struct{})
	a.mu.Lock()
	a.readGate = gate
	a.mu.Unlock()
	return func() { close(gate) }
}

func (a *fakeAPI) begin(op string) error {
	a.calls[op]++
	return a.errs[op]
}

func (a *fakeAPI) unreadLocked() int64 {
	var n int64
	for _, item := range a.all {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func (a *fakeAPI) sortedLocked(unreadOnly bool) []Notification {
	out := make([]Notification, 0, len(a.all))
	for _, n := range a.all {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (a *fakeAPI) List(ctx context.Context, params ListParams) (*ListResult, error) {
	a.mu.Lock()
	a.listCalls = append(a.listCalls, params)
	gate := a.gate
	a.gate = nil
	err := a.begin("list")
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	items := a.sortedLocked(params.UnreadOnly)
	total := len(items)
	pages := (total + params.Limit - 1) / params.Limit
	if pages < 1 {
		pages = 1
	}
	start := (params.Page - 1) * params.Limit
	end := start + params.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	res := &ListResult{Notifications: append([]Notification(nil), items[start:end]...), UnreadCount: a.unreadLocked()}
	res.Pagination.Page = params.Page
	res.Pagination.Pages = pages
	res.Pagination.Total = int64(total)
	res.Pagination.Limit = params.Limit
	return res, nil
}

func (a *fakeAPI) UnreadCount(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin("count"); err != nil {
		return 0, err
	}
	return a.unreadLocked(), nil
}

func (a *fakeAPI) find(id string) int {
	for i := range a.all {
		if a.all[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound() error {
	return newError(KindNotFound, "Notification not found", nil)
}

func (a *fakeAPI) MarkRead(ctx context.Context, id string) (time.Time, error) {
	a.mu.Lock()
	gate := a.readGate
	a.readGate = nil
	err := a.begin("markRead")
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return time.Time{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.find(id)
	if idx < 0 {
		return time.Time{}, notFound()
	}
	a.all[idx].markRead(a.readAt)
	return a.readAt, nil
}

func (a *fakeAPI) MarkUnread(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin("markUnread"); err != nil {
		return err
	}
	idx := a.find(id)
	if idx < 0 {
		return notFound()
	}
	a.all[idx].markUnread()
	return nil
}

func (a *fakeAPI) MarkAllRead(ctx context.Context) (time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin("markAllRead"); err != nil {
		return time.Time{}, err
	}
	for i := range a.all {
		if !a.all[i].IsRead {
			a.all[i].markRead(a.readAt)
		}
	}
	return a.readAt, nil
}

func (a *fakeAPI) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin("delete"); err != nil {
		return err
	}
	idx := a.find(id)
	if idx < 0 {
		return notFound()
	}
	a.all = append(a.all[:idx], a.all[idx+1:]...)
	return nil
}

func (a *fakeAPI) DeleteAllRead(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.begin("deleteAllRead"); err != nil {
		return err
	}
	kept := a.all[:0]
	for _, n := range a.all {
		if !n.IsRead {
			kept = append(kept, n)
		}
	}
	a.all = kept
	return nil
}

// ---- Clock ----

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers on Advance, or right away when immediate is set.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	immediate bool
	delays    []time.Duration
	timers    []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime.Add(48 * time.Hour)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	t := &fakeTimer{at: c.now.Add(d), f: f, clock: c}
	if c.immediate {
		t.fired = true
		go f()
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// ---- Push channel ----

type fakeConn struct {
	incoming chan push.Message
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	sent []push.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan push.Message, 16), done: make(chan struct{})}
}

func (c *fakeConn) Receive() (push.Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		return push.Message{}, newError(KindNetwork, "push channel dropped", nil)
	}
}

func (c *fakeConn) Send(msg push.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) sentEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, m.Event)
	}
	return out
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu       sync.Mutex
	calls    int
	script   []dialResult
	fallback error
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.script) > 0 {
		next := d.script[0]
		d.script = d.script[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.conn, nil
	}
	if d.fallback != nil {
		return nil, d.fallback
	}
	return nil, newError(KindNetwork, "unreachable", nil)
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// ---- Preferences ----

type memoryStore struct {
	mu    sync.Mutex
	prefs *Preferences
	saves int
	err   error
}

func (s *memoryStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return DefaultPreferences(), nil
	}
	return s.prefs.clone(), nil
}

func (s *memoryStore) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := p.clone()
	s.prefs = &cp
	s.saves++
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	seen   []string
	err    error
	panics bool
}

func (a *recordingAlerter) Alert(n Notification) error {
	a.mu.Lock()
	a.seen = append(a.seen, n.ID)
	panics, err := a.panics, a.err
	a.mu.Unlock()
	if panics {
		panic("platform alert API missing")
	}
	return err
}

func (a *recordingAlerter) failWith(err error, panics bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	a.panics = panics
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}
