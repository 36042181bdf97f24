package scheduler

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/humanalog/markedfordeath/internal/dispatcher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires due callbacks synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.when <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].when < due[j].when })
		next := due[0]
		next.fired = true
		c.now = next.when
		c.mu.Unlock()
		next.fn()
	}
}

type recordingPoster struct {
	mu     sync.Mutex
	events []dispatcher.Event
	err    error
}

func (p *recordingPoster) Post(e dispatcher.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPoster) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Command
	}
	return out
}

func newTestScheduler() (*Scheduler, *fakeClock, *recordingPoster) {
	clock := &fakeClock{}
	poster := &recordingPoster{}
	s := New(clock, poster, Options{Interval: time.Minute, ConnectDelay: 10 * time.Second}, nil)
	return s, clock, poster
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, &recordingPoster{}, Options{}, nil)
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.Equal(t, DefaultConnectDelay, s.opts.ConnectDelay)
	assert.Equal(t, RealClock, s.clock)
}

func TestStart_PeriodicRefresh(t *testing.T) {
	s, clock, poster := newTestScheduler()
	require.NoError(t, s.Start())
	assert.Equal(t, 1, s.Pending())

	clock.Advance(59 * time.Second)
	assert.Empty(t, poster.commands())

	clock.Advance(time.Second)
	assert.Equal(t, []string{CommandRefresh}, poster.commands())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, []string{CommandRefresh, CommandRefresh, CommandRefresh}, poster.commands())
	assert.Equal(t, 1, s.Pending(), "periodic timer re-arms itself")

	s.Stop()
}

func TestStart_Twice(t *testing.T) {
	s, _, _ := newTestScheduler()
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	s.Stop()
}

func TestOnConnect_RepaintOnce(t *testing.T) {
	s, clock, poster := newTestScheduler()

	require.NoError(t, s.OnConnect(76561198000000001))
	require.NoError(t, s.OnConnect(76561198000000002))
	assert.Equal(t, 2, s.Pending())

	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{CommandRepaint, CommandRepaint}, poster.commands())
	assert.Equal(t, []string{"76561198000000001"}, poster.events[0].Args)
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Hour)
	assert.Len(t, poster.commands(), 2)
}

func TestStop_CancelsEverything(t *testing.T) {
	s, clock, poster := newTestScheduler()
	require.NoError(t, s.Start())
	require.NoError(t, s.OnConnect(1))

	s.Stop()
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Hour)
	assert.Empty(t, poster.commands())

	assert.ErrorIs(t, s.Start(), ErrStopped)
	assert.ErrorIs(t, s.OnConnect(2), ErrStopped)
	s.Stop()
}

func TestStop_RacingCallbackDoesNotPost(t *testing.T) {
	s, clock, poster := newTestScheduler()
	require.NoError(t, s.OnConnect(1))

	// the timer fired but its callback had not yet taken the lock
	var cb func()
	clock.mu.Lock()
	cb = clock.timers[0].fn
	clock.timers[0].fired = true
	clock.mu.Unlock()

	s.Stop()
	cb()
	assert.Empty(t, poster.commands())
}

func TestPostFailureKeepsRefreshing(t *testing.T) {
	s, clock, poster := newTestScheduler()
	poster.err = errors.New("queue full")
	require.NoError(t, s.Start())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.Pending())

	poster.mu.Lock()
	poster.err = nil
	poster.mu.Unlock()

	clock.Advance(time.Minute)
	assert.Equal(t, []string{CommandRefresh}, poster.commands())
	s.Stop()
}

func TestRealClock(t *testing.T) {
	poster := &recordingPoster{}
	s := New(RealClock, poster, Options{Interval: 10 * time.Millisecond, ConnectDelay: 5 * time.Millisecond}, nil)

	require.NoError(t, s.Start())
	require.NoError(t, s.OnConnect(1))

	assert.Eventually(t, func() bool {
		cmds := poster.commands()
		var refresh, repaint int
		for _, c := range cmds {
			switch c {
			case CommandRefresh:
				refresh++
			case CommandRepaint:
				repaint++
			}
		}
		return refresh >= 2 && repaint == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, 0, s.Pending())
}
