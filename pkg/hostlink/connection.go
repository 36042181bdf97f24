package hostlink

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// session is one live socket plus the loops serving it.
type session struct {
	conn *ws.Conn
	stop chan struct{}
	once sync.Once
}

func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}

// connection manages a WebSocket connection with a single write goroutine
// per session.
type connection struct {
	mu     sync.Mutex
	cur    *session
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool
	wg     sync.WaitGroup

	wsURL  string
	secret string

	// greeting is written first on every new session.
	greeting func() ([]byte, error)
	// onMessage receives every inbound frame on the read goroutine.
	onMessage func([]byte)
	// onConnect runs after every successful dial.
	onConnect func()

	baseBackoff time.Duration
	logger      *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:      make(chan []byte, sendChSize),
		done:        make(chan struct{}),
		baseBackoff: time.Second,
		logger:      logger,
	}
}

// dial connects to the host and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	if err := c.greet(conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.start(conn)
	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) greet(conn *ws.Conn) error {
	if c.greeting == nil {
		return nil
	}
	data, err := c.greeting()
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) start(conn *ws.Conn) {
	s := &session{conn: conn, stop: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.cur = s
	c.wg.Add(2)
	c.mu.Unlock()

	go c.writeLoop(s)
	go c.readLoop(s)

	if c.onConnect != nil {
		c.onConnect()
	}
}

// connected reports whether a session is live.
func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// writeLoop drains sendCh and writes messages to the session's socket.
func (c *connection) writeLoop(s *session) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-s.stop:
			return
		case data := <-c.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.fail(s)
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.fail(s)
				return
			}
		}
	}
}

// readLoop hands every frame to onMessage until the socket fails.
func (c *connection) readLoop(s *session) {
	defer c.wg.Done()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-s.stop:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			c.fail(s)
			return
		}
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// fail tears down s. Only the first failure of the current session starts a
// reconnect.
func (c *connection) fail(s *session) {
	s.shutdown()

	c.mu.Lock()
	if c.closed || c.cur != s {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.wg.Add(1)
	c.mu.Unlock()

	go c.reconnect()
}

// reconnect attempts to re-establish the connection with exponential backoff.
// On success it greets the host again and restarts the loops.
func (c *connection) reconnect() {
	defer c.wg.Done()

	backoff := c.baseBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to host", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, err := c.dialOnce()
		if err == nil {
			err = c.greet(conn)
			if err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			c.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Host link reconnected", "attempt", attempt)
		c.start(conn)
		return
	}

	c.logger.Error("Host link reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("Host link send channel full, dropping message")
		return false
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	s := c.cur
	c.cur = nil
	c.mu.Unlock()

	if s != nil {
		// WriteControl may run concurrently with the write loop.
		_ = s.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		s.shutdown()
	}
	c.wg.Wait()
	return nil
}
