package notifclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"erp-notification-be/pkg/push"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (c *Controller) pushRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func immediateClock() *fakeClock {
	c := newFakeClock()
	c.immediate = true
	return c
}

func TestBackoffBounds(t *testing.T) {
	for n := 0; n < 20; n++ {
		shift := n
		if shift > 5 {
			shift = 5
		}
		low := time.Duration(1000*(1<<shift)) * time.Millisecond
		high := low + time.Second
		if high > 30*time.Second {
			high = 30 * time.Second
		}
		if low > 30*time.Second {
			low = 30 * time.Second
		}

		for _, jitter := range []time.Duration{0, 500 * time.Millisecond, 999 * time.Millisecond, 5 * time.Second, -time.Second} {
			d := Backoff(n, jitter)
			assert.GreaterOrEqual(t, d, low, "attempt %d", n)
			assert.LessOrEqual(t, d, high, "attempt %d", n)
			assert.LessOrEqual(t, d, 30*time.Second)
		}
	}
	assert.Equal(t, time.Second, Backoff(0, 0))
	assert.Equal(t, 16*time.Second+250*time.Millisecond, Backoff(4, 250*time.Millisecond))
	assert.Equal(t, 30*time.Second, Backoff(9, 0))
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{}
	clock := immediateClock()
	h := newHarness(t, newFakeAPI(), Options{Dialer: dialer, Clock: clock})

	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool {
		s := h.ctrl.State()
		return s.Error != nil && s.Error.Persistent
	}, 2*time.Second, 5*time.Millisecond)

	s := h.ctrl.State()
	assert.Equal(t, StateDisconnected, s.Connection)
	assert.Equal(t, MaxReconnectAttempts, s.ReconnectAttempts)
	assert.Equal(t, KindNetwork, s.Error.Kind)
	assert.Equal(t, MaxReconnectAttempts, dialer.callCount())

	delays := clock.recorded()
	require.Len(t, delays, MaxReconnectAttempts-1)
	for i, d := range delays {
		assert.Equal(t, Backoff(i, 250*time.Millisecond), d, "delay %d", i)
	}

	// No further automatic retries.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, MaxReconnectAttempts, dialer.callCount())
}

func TestManualReconnectAfterGivingUp(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{}
	h := newHarness(t, newFakeAPI(), Options{Dialer: dialer, Clock: immediateClock()})
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Error != nil && h.ctrl.State().Error.Persistent }, 2*time.Second, 5*time.Millisecond)

	dialer.mu.Lock()
	dialer.script = []dialResult{{conn: conn}}
	dialer.mu.Unlock()

	require.Eventually(t, func() bool { return !h.ctrl.pushRunning() }, time.Second, 5*time.Millisecond)
	h.ctrl.Reconnect(context.Background())
	require.Eventually(t, func() bool { return h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.ctrl.State().Error)
}

func TestUnauthorizedHandshakeIsNotRetried(t *testing.T) {
	dialer := &fakeDialer{fallback: newError(KindUnauthorized, "handshake rejected with status 401", nil)}
	h := newHarness(t, newFakeAPI(), Options{Dialer: dialer, Clock: immediateClock()})

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Error != nil }, time.Second, 5*time.Millisecond)

	s := h.ctrl.State()
	assert.Equal(t, KindUnauthorized, s.Error.Kind)
	assert.True(t, s.Error.Persistent)
	assert.Equal(t, StateDisconnected, s.Connection)
	assert.Equal(t, 1, dialer.callCount())
}

func TestConnectResetsAttemptsAndRequestsCount(t *testing.T) {
	conn := newFakeConn()
	offline := errors.New("connection refused")
	dialer := &fakeDialer{script: []dialResult{{err: offline}, {err: offline}, {conn: conn}}}
	h := newHarness(t, newFakeAPI(note(1, false)), Options{Dialer: dialer, Clock: immediateClock()})

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)

	assert.Zero(t, h.ctrl.State().ReconnectAttempts)
	assert.Equal(t, 3, dialer.callCount())
	require.Eventually(t, func() bool {
		events := conn.sentEvents()
		return len(events) == 1 && events[0] == push.EventRequestCount
	}, time.Second, 5*time.Millisecond)

	conn.incoming <- frame(t, push.EventCount, push.Count{Count: 7})
	require.Eventually(t, func() bool { return h.ctrl.State().UnreadCount == 7 }, time.Second, 5*time.Millisecond)
}

func TestDropReconnectsAndRefetches(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{script: []dialResult{{conn: first}, {conn: second}}}
	api := newFakeAPI(note(1, false))
	clock := immediateClock()
	h := newHarness(t, api, Options{Dialer: dialer, Clock: clock})

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)
	listsBefore := api.callCount("list")

	// Missed while offline.
	api.mu.Lock()
	api.all = append(api.all, note(2, false))
	api.mu.Unlock()

	first.Close()
	require.Eventually(t, func() bool { return dialer.callCount() == 2 && h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.ctrl.State().Notifications) == 2 }, time.Second, 5*time.Millisecond)

	assert.Greater(t, api.callCount("list"), listsBefore)
	assert.Equal(t, []time.Duration{Backoff(0, 250*time.Millisecond)}, clock.recorded())
}

func TestLivePushFlowsIntoState(t *testing.T) {
	conn := newFakeConn()
	alerter := &recordingAlerter{err: errors.New("permission revoked")}
	h := newHarness(t, newFakeAPI(), Options{
		Dialer:  &fakeDialer{script: []dialResult{{conn: conn}}},
		Alerter: alerter,
		Clock:   immediateClock(),
	})
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)

	conn.incoming <- frame(t, push.EventNew, note(1, false))
	require.Eventually(t, func() bool { return h.ctrl.State().UnreadCount == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return alerter.count() == 1 }, time.Second, 5*time.Millisecond, "failing alerter is still called and ignored")

	alerter.failWith(nil, true)
	conn.incoming <- frame(t, push.EventNew, note(2, false))
	require.Eventually(t, func() bool { return alerter.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.ctrl.State().UnreadCount == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, h.ctrl.State().Notifications, 2)

	require.NoError(t, h.ctrl.SetSoundEnabled(false))
	conn.incoming <- frame(t, push.EventNew, note(3, false))
	require.Eventually(t, func() bool { return h.ctrl.State().UnreadCount == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, alerter.count(), "sound off suppresses alerts")
}

func TestCloseTearsDownSession(t *testing.T) {
	conn := newFakeConn()
	h := newHarness(t, newFakeAPI(), Options{
		Dialer: &fakeDialer{script: []dialResult{{conn: conn}}},
		Clock:  immediateClock(),
	})
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.State().Connection == StateConnected }, time.Second, 5*time.Millisecond)

	h.ctrl.Close()
	assert.Equal(t, StateDisconnected, h.ctrl.State().Connection)
	select {
	case <-conn.done:
	default:
		t.Fatal("connection left open")
	}
}
