// Package hostlink connects the extension to the game-server shim over a
// WebSocket. The host sends calls that are run on the event loop; the
// extension sends callbacks (panel updates) that the host acknowledges.
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/humanalog/markedfordeath/pkg/streaming"
)

var (
	ErrNotConnected = errors.New("host link not connected")
	ErrClosed       = errors.New("host link closed")
)

// CallHandler runs a host call. It must not block: the result is delivered
// later through reply. A returned error is sent to the host immediately.
type CallHandler func(command string, args []string, reply func(result any, err error)) error

// Config holds host link settings.
type Config struct {
	URL    string
	Secret string

	// Announced in the hello frame after every connect.
	Extension string
	Version   string
	Commands  []string

	// OnConnect runs after every successful (re)connect, off the read loop.
	OnConnect func()
}

// Client is a host link.
type Client struct {
	cfg     Config
	conn    *connection
	handler CallHandler
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// New creates a Client. Call Connect to dial.
func New(cfg Config, handler CallHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		conn:    newConnection(logger),
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan struct{}),
	}
	c.conn.greeting = c.hello
	c.conn.onMessage = c.handleMessage
	if cfg.OnConnect != nil {
		c.conn.onConnect = func() { go cfg.OnConnect() }
	}
	return c
}

// Connect dials the host.
func (c *Client) Connect() error {
	return c.conn.dial(c.cfg.URL, c.cfg.Secret)
}

// Close disconnects and waits for the link goroutines to exit.
func (c *Client) Close() error {
	return c.conn.close()
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	return c.conn.connected()
}

func (c *Client) hello() ([]byte, error) {
	return streaming.Marshal(streaming.TypeHello, streaming.HelloPayload{
		Extension: c.cfg.Extension,
		Version:   c.cfg.Version,
		Commands:  c.cfg.Commands,
	})
}

// Call asks the host to run function and waits for its ack.
func (c *Client) Call(ctx context.Context, function string, args ...any) error {
	if !c.conn.connected() {
		return ErrNotConnected
	}
	if args == nil {
		args = []any{}
	}

	id := uuid.NewString()
	data, err := streaming.Marshal(streaming.TypeCallback, streaming.CallbackPayload{
		ID:       id,
		Function: function,
		Args:     args,
	})
	if err != nil {
		return err
	}

	ack := make(chan struct{})
	c.mu.Lock()
	c.pending[id] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if !c.conn.send(data) {
		return fmt.Errorf("%s: send queue full", function)
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ack of %s: %w", function, ctx.Err())
	case <-c.conn.done:
		return ErrClosed
	}
}

func (c *Client) resolve(id string) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		close(ch)
	} else {
		c.logger.Debug("Ack for unknown callback", "for", id)
	}
}

type frame struct {
	Type    string          `json:"type"`
	For     string          `json:"for"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) handleMessage(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Debug("Malformed frame received", "raw", string(data))
		return
	}

	switch f.Type {
	case streaming.TypeAck:
		c.resolve(f.For)
	case streaming.TypeCall:
		var call streaming.CallPayload
		if err := json.Unmarshal(f.Payload, &call); err != nil {
			c.logger.Warn("Malformed call received", "error", err)
			return
		}
		c.dispatch(call)
	default:
		c.logger.Debug("Unhandled frame type", "type", f.Type)
	}
}

func (c *Client) dispatch(call streaming.CallPayload) {
	reply := func(result any, err error) {
		c.reply(call, result, err)
	}
	if c.handler == nil {
		reply(nil, fmt.Errorf("no handler for %s", call.Command))
		return
	}
	if err := c.handler(call.Command, call.Args, reply); err != nil {
		reply(nil, err)
	}
}

func (c *Client) reply(call streaming.CallPayload, result any, err error) {
	data, mErr := streaming.Marshal(streaming.TypeReply, streaming.ReplyPayload{
		ID:     call.ID,
		Result: streaming.FormatResult(call.Command, result, err),
	})
	if mErr != nil {
		c.logger.Error("Failed to encode reply", "command", call.Command, "error", mErr)
		return
	}
	c.conn.send(data)
}
