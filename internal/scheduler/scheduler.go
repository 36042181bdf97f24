// Package scheduler turns timer expiry into events on the dispatcher loop.
package scheduler

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/humanalog/markedfordeath/internal/dispatcher"
)

const (
	CommandRefresh = ":MARK:REFRESH:"
	CommandRepaint = ":PANEL:REPAINT:"

	DefaultInterval     = 30 * time.Minute
	DefaultConnectDelay = 10 * time.Second
)

var (
	ErrStopped        = errors.New("scheduler stopped")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

// Poster queues an event on the loop without waiting for it.
type Poster interface {
	Post(e dispatcher.Event) error
}

// Options configures a Scheduler.
type Options struct {
	Interval     time.Duration
	ConnectDelay time.Duration
}

// Scheduler owns every pending timer. Timer callbacks only post events; the
// work runs on the loop.
type Scheduler struct {
	clock  Clock
	poster Poster
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	handles map[uint64]Timer
	nextID  uint64
	started bool
	stopped bool
}

// New creates a Scheduler. Zero options fall back to the defaults.
func New(clock Clock, poster Poster, opts Options, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = DefaultConnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:   clock,
		poster:  poster,
		opts:    opts,
		logger:  logger,
		handles: make(map[uint64]Timer),
	}
}

// Start arms the periodic location refresh.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.armLocked(s.opts.Interval, s.refreshTick)
	return nil
}

func (s *Scheduler) refreshTick() {
	s.post(dispatcher.Event{Command: CommandRefresh})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.armLocked(s.opts.Interval, s.refreshTick)
	}
}

// OnConnect schedules a single panel repaint for a newly connected participant.
func (s *Scheduler) OnConnect(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.armLocked(s.opts.ConnectDelay, func() {
		s.post(dispatcher.Event{
			Command: CommandRepaint,
			Args:    []string{strconv.FormatUint(id, 10)},
		})
	})
	return nil
}

// armLocked registers a one-shot timer whose handle is dropped once it fires.
func (s *Scheduler) armLocked(d time.Duration, fn func()) {
	id := s.nextID
	s.nextID++

	s.handles[id] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.handles, id)
		s.mu.Unlock()
		fn()
	})
}

func (s *Scheduler) post(e dispatcher.Event) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	if err := s.poster.Post(e); err != nil {
		s.logger.Warn("Failed to post scheduled event", "command", e.Command, "error", err)
	}
}

// Stop cancels every pending timer. Later calls to Start and OnConnect fail.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for id, t := range s.handles {
		t.Stop()
		delete(s.handles, id)
	}
}

// Pending reports how many timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
