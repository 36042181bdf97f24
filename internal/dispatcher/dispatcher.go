package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName scopes the loop's metrics on the global meter provider.
const MeterName = "github.com/humanalog/markedfordeath/internal/dispatcher"

// DefaultQueueSize is the inbox capacity used when New is given a non-positive size.
const DefaultQueueSize = 1024

var (
	ErrQueueFull      = errors.New("dispatcher queue full")
	ErrStopped        = errors.New("dispatcher stopped")
	ErrAlreadyRunning = errors.New("dispatcher already running")
)

// Event is a host event, command or timer tick routed through the loop.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
// Handlers always run on the loop goroutine, one at a time.
type HandlerFunc func(context.Context, Event) (any, error)

// ReplyFunc receives a handler's result. It is called on the loop goroutine.
type ReplyFunc func(any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type job struct {
	event Event
	reply ReplyFunc
}

type loopKey struct{}

// Dispatcher serialises every event through a single inbox. Nothing registered
// with it runs concurrently with anything else registered with it.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	inbox   chan job
	done    chan struct{}
	running atomic.Bool
	stopped atomic.Bool

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger and inbox capacity.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, queueSize int) (*Dispatcher, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		inbox:    make(chan job, queueSize),
		done:     make(chan struct{}),
	}

	// Global meter provider; a no-op until one is installed
	m := otel.Meter(MeterName)

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting in the inbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(len(d.inbox)))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Run processes the inbox until ctx is cancelled. Events still queued when it
// returns are answered with ErrStopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)

	loopCtx := context.WithValue(ctx, loopKey{}, d)
	for {
		select {
		case <-ctx.Done():
			d.stopped.Store(true)
			d.drain()
			return nil
		case j := <-d.inbox:
			d.handle(loopCtx, j)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.inbox:
			if j.reply != nil {
				j.reply(nil, ErrStopped)
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	result, err := d.call(ctx, j.event)
	d.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("command", j.event.Command)))
	if j.reply != nil {
		j.reply(result, err)
	} else if err != nil {
		d.logger.Error("posted event failed", "command", j.event.Command, "error", err)
	}
}

func (d *Dispatcher) call(ctx context.Context, e Event) (result any, err error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", e.Command, r)
		}
	}()
	return h(ctx, e)
}

// Submit queues e without waiting for it to run. reply, if non-nil, is called
// with the handler's result on the loop goroutine.
func (d *Dispatcher) Submit(e Event, reply ReplyFunc) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if !d.HasHandler(e.Command) {
		return fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case d.inbox <- job{event: e, reply: reply}:
		return nil
	default:
		d.dropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", e.Command)))
		return fmt.Errorf("%w: %s", ErrQueueFull, e.Command)
	}
}

// Post queues e and discards the result. Handler errors are logged.
func (d *Dispatcher) Post(e Event) error {
	return d.Submit(e, nil)
}

// Dispatch queues e and waits for its result. Called from inside a handler it
// runs e inline, since the loop is already held by the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	if ctx.Value(loopKey{}) == d {
		return d.call(ctx, e)
	}

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	if err := d.Submit(e, func(r any, err error) { ch <- outcome{r, err} }); err != nil {
		return nil, err
	}

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		select {
		case o := <-ch:
			return o.result, o.err
		default:
			return nil, ErrStopped
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(ctx, e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
