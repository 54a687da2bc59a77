package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/ems-client/internal/version"
)

// Client is one duplex WebSocket channel to an EMS server.
type Client interface {
	// Connect performs the handshake and starts reading.
	Connect(ctx context.Context) error

	// Close sends a normal close frame and releases the socket. Safe to repeat.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages delivers inbound frames in arrival order.
	Messages() <-chan TimestampedMessage

	// Errors delivers at most one value: why the channel ended. Nothing is
	// delivered after a local Close.
	Errors() <-chan error

	// IsConnected reports whether the channel is open.
	IsConnected() bool
}

// Dialer opens Clients.
type Dialer interface {
	Dial(ctx context.Context, url string) (Client, error)
}

// WebSocketDialer opens gorilla/websocket Clients.
type WebSocketDialer struct {
	Config ClientConfig
	Logger *slog.Logger
}

// Dial connects a new Client to url.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Client, error) {
	cfg := d.Config
	cfg.URL = url
	c := NewClient(cfg, d.Logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

const handshakeTimeout = 10 * time.Second

type linkState int

const (
	linkIdle linkState = iota
	linkOpen
	linkDown // Ended by the peer or the heartbeat
	linkClosed
)

type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	frames chan TimestampedMessage
	cause  chan error
	stop   chan struct{}

	writeMu sync.Mutex

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    linkState
	lastSeen time.Time // Last ping or pong from the server
}

// NewClient creates a Client for cfg.URL. Zero config fields take the
// DefaultClientConfig values.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	return &wsClient{
		cfg:    cfg,
		logger: logger,
		frames: make(chan TimestampedMessage, cfg.BufferSize),
		cause:  make(chan error, 1),
		stop:   make(chan struct{}),
	}
}

func withDefaults(cfg ClientConfig) ClientConfig {
	d := DefaultClientConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = d.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}
	return cfg
}

func (c *wsClient) handshakeHeader() http.Header {
	h := c.cfg.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("User-Agent", version.UserAgent())
	return h
}

func (c *wsClient) Connect(ctx context.Context) error {
	if c.current() == linkClosed {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.handshakeHeader())
	if err != nil {
		return err
	}

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.mu.Lock()
	if c.state == linkClosed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.state = linkOpen
	c.lastSeen = time.Now()
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.keepalive(conn)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.state == linkClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = linkClosed
	conn := c.conn
	c.mu.Unlock()

	close(c.stop)
	if conn == nil {
		return nil
	}

	bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(time.Second))
	return conn.Close()
}

func (c *wsClient) Send(data []byte) error {
	c.mu.RLock()
	conn, open := c.conn, c.state == linkOpen
	c.mu.RUnlock()
	if !open {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) Messages() <-chan TimestampedMessage { return c.frames }

func (c *wsClient) Errors() <-chan error { return c.cause }

func (c *wsClient) IsConnected() bool { return c.current() == linkOpen }

func (c *wsClient) current() linkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *wsClient) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// end marks the link down and publishes err, unless Close got there first.
func (c *wsClient) end(err error) {
	c.mu.Lock()
	if c.state == linkClosed {
		c.mu.Unlock()
		return
	}
	c.state = linkDown
	c.mu.Unlock()

	select {
	case c.cause <- err:
	default:
	}
}

// readLoop forwards frames until the socket fails. Orderly close frames from
// the server are reported as ErrClosedByPeer.
func (c *wsClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				err = ErrClosedByPeer
			}
			c.end(err)
			return
		}

		select {
		case c.frames <- TimestampedMessage{Data: data, ReceivedAt: time.Now()}:
		case <-c.stop:
			return
		}
	}
}

// keepalive pings every PingInterval and drops the link once nothing has
// been heard for PingTimeout.
func (c *wsClient) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		if c.current() != linkOpen {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.logger.Debug("ping failed", "error", err)
		}

		c.mu.RLock()
		silent := time.Since(c.lastSeen)
		c.mu.RUnlock()
		if silent > c.cfg.PingTimeout {
			c.logger.Warn("server silent, dropping connection",
				"silent_for", silent,
				"timeout", c.cfg.PingTimeout,
			)
			c.end(ErrStaleConnection)
			conn.Close()
			return
		}
	}
}
