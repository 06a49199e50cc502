package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"loom/internal/app"
)

const (
	maxFrameBytes = 1 << 20

	defaultDialTimeout = 10 * time.Second
)

// Handler consumes one inbound event payload.
type Handler func(payload json.RawMessage)

// Channel is one logical realtime connection bound to a single user id.
//
// Design notes:
// - Handlers are registered per event name; On replaces any prior handler
//   so a listener can never double-fire.
// - done signals the read loop to stop; Close is idempotent.
// - The session layer owns the Channel exclusively and never opens a
//   second one while this one is live.
type Channel struct {
	log     *slog.Logger
	metrics *app.Metrics

	userID int64

	dialTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string]Handler
	connected bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// DialOption configures optional Channel dependencies.
type DialOption func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(log *slog.Logger) DialOption {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches client metrics.
func WithMetrics(m *app.Metrics) DialOption {
	return func(c *Channel) { c.metrics = m }
}

// WithDialTimeout bounds the websocket handshake when the caller's context
// carries no deadline (default 10s; zero or negative keeps the default).
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *Channel) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// Dial opens the realtime channel for userID against the backend's root
// origin and starts the read loop.
func Dial(ctx context.Context, baseURL string, userID int64, opts ...DialOption) (*Channel, error) {
	wsURL, err := channelURL(baseURL, userID)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		log:         slog.Default(),
		userID:      userID,
		handlers:    make(map[string]Handler),
		done:        make(chan struct{}),
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}

	if c.metrics != nil {
		c.metrics.ChannelDials.Inc()
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.connected = true

	c.log.Debug("ws.dial", "user", userID)
	go c.readLoop(readCtx)

	return c, nil
}

// UserID returns the identity id this channel is bound to.
func (c *Channel) UserID() int64 {
	if c == nil {
		return 0
	}
	return c.userID
}

// Connected reports whether the read loop is still live.
func (c *Channel) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On registers handler for event, replacing any prior registration.
func (c *Channel) On(event string, handler Handler) {
	if c == nil || strings.TrimSpace(event) == "" || handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Off removes the handler for event (no-op when none is bound).
func (c *Channel) Off(event string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Done returns a channel closed when the connection has shut down.
func (c *Channel) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close tears the connection down (idempotent).
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		if c.cancel != nil {
			c.cancel()
		}
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}
		close(c.done)
		c.log.Debug("ws.close", "user", c.userID)
	})
}

func (c *Channel) readLoop(ctx context.Context) {
	defer c.Close()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if ctx.Err() == nil {
				c.log.Debug("ws.read.stop", "user", c.userID, "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("ws.event.malformed", "err", err)
			continue
		}
		if err := env.Validate(); err != nil {
			c.log.Warn("ws.event.invalid", "err", err)
			continue
		}

		if c.metrics != nil {
			c.metrics.ChannelEvents.WithLabelValues(env.Event).Inc()
		}

		c.mu.Lock()
		handler := c.handlers[env.Event]
		c.mu.Unlock()

		if handler == nil {
			c.log.Debug("ws.event.unhandled", "event", env.Event)
			continue
		}
		handler(env.Payload)
	}
}

func channelURL(baseURL string, userID int64) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("realtime: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime: unsupported scheme: %q", u.Scheme)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("userId", strconv.FormatInt(userID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
