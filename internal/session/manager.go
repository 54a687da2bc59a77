package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ems-client/internal/connection"
	"github.com/rickgao/ems-client/internal/credential"
	"github.com/rickgao/ems-client/internal/model"
	"github.com/rickgao/ems-client/internal/notify"
	"github.com/rickgao/ems-client/internal/protocol"
)

// Defaults for zero Options fields.
const (
	DefaultAuthTimeout  = 2000 * time.Millisecond
	DefaultEventBuffer  = 100
	DefaultSubscribeTag = "fenecon_monitor_v1"

	storeTimeout = 5 * time.Second
)

// TelemetrySink receives every telemetry update accepted into the snapshot.
// HandleTelemetry runs on the attempt goroutine and must not block.
type TelemetrySink interface {
	HandleTelemetry(u model.TelemetryUpdate)
}

// Options configures a Manager.
type Options struct {
	Name          string        // Connection name, key for the stored token
	URL           string        // WebSocket URL
	RewriteHost   string        // Replaces 127.0.0.1 in persistence entries; defaults to the URL host
	AuthTimeout   time.Duration // Deadline for a login result
	EventBuffer   int
	SubscribeTag  string
	AutoSubscribe bool // Subscribe right after login
	Reconnect     ReconnectPolicy

	Dialer    connection.Dialer
	Store     credential.Store
	Sink      notify.Sink // Server notifications
	Telemetry TelemetrySink
	Logger    *slog.Logger
}

// Manager maintains one authenticated session with an EMS server.
type Manager struct {
	opts   Options
	host   string
	logger *slog.Logger
	events chan Event

	mu      sync.Mutex
	state   sessionState
	current *attempt

	// storeMu orders token writes. Taken before mu, never while holding it.
	storeMu sync.Mutex

	// Reconnect
	backoff  *backoff
	retry    *time.Timer
	retryGen uint64
}

// attempt is one dial-and-login cycle. Its fields are guarded by Manager.mu.
type attempt struct {
	id        uuid.UUID
	parent    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *slog.Logger
	client    connection.Client
	statusSet bool // First status already emitted
	connected bool // Reached Connected at least once
	retry     bool // Started by the reconnect policy
}

// New creates a Manager. The session starts disconnected.
func New(opts Options) (*Manager, error) {
	if opts.Name == "" {
		return nil, errors.New("session: name is required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("session: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("session: url scheme must be ws or wss, got %q", u.Scheme)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.SubscribeTag == "" {
		opts.SubscribeTag = DefaultSubscribeTag
	}
	if opts.Dialer == nil {
		opts.Dialer = connection.WebSocketDialer{
			Config: connection.DefaultClientConfig(),
			Logger: opts.Logger,
		}
	}
	if opts.Store == nil {
		opts.Store = credential.NewMemoryStore()
	}
	if opts.Sink == nil {
		opts.Sink = notify.Discard
	}

	host := opts.RewriteHost
	if host == "" {
		host = u.Hostname()
	}

	return &Manager{
		opts:    opts,
		host:    host,
		logger:  opts.Logger.With("conn", opts.Name),
		events:  make(chan Event, opts.EventBuffer),
		state:   newSessionState(),
		backoff: newBackoff(opts.Reconnect),
	}, nil
}

// Events returns the stream of status and config-changed events.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns a copy of the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot(m.opts.Name, m.opts.URL)
}

// ConnectWithCredential starts an attempt that logs in with password. Any
// previous attempt is superseded. The attempt lives until Close, a newer
// attempt, a transport failure or cancellation of ctx.
func (m *Manager) ConnectWithCredential(ctx context.Context, password string) {
	m.start(ctx, protocol.PasswordLogin(password), false, 0)
}

// ConnectWithStoredToken starts an attempt that logs in with the token stored
// for this connection name. It reports whether an attempt was started; with
// no stored token nothing happens and no event is emitted.
func (m *Manager) ConnectWithStoredToken(ctx context.Context) bool {
	token, ok := m.storedToken(ctx)
	if !ok {
		return false
	}
	m.start(ctx, protocol.TokenLogin(token), false, 0)
	return true
}

// Send marshals v and writes it to the open channel. Without an open channel
// the message is dropped. Only an encoding failure is returned.
func (m *Manager) Send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	var client connection.Client
	if m.current != nil {
		client = m.current.client
	}
	m.mu.Unlock()

	if client == nil {
		m.logger.Debug("send dropped, not connected")
		return nil
	}
	if err := client.Send(data); err != nil {
		m.logger.Debug("send dropped", "error", err)
	}
	return nil
}

// SubscribeNatures asks the server to stream telemetry for the subscribe tag.
func (m *Manager) SubscribeNatures() error {
	return m.Send(protocol.SubscribeMsg(m.opts.SubscribeTag))
}

// UnsubscribeNatures stops the telemetry stream.
func (m *Manager) UnsubscribeNatures() error {
	return m.Send(protocol.SubscribeMsg(""))
}

// Close forgets the stored token, ends the current attempt and emits
// "Connection ended.".
func (m *Manager) Close() {
	m.mu.Lock()
	a := m.current
	m.current = nil
	m.state.phase = Closing
	m.stopRetryLocked()
	m.mu.Unlock()

	if a != nil {
		a.cancel()
		<-a.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	m.storeMu.Lock()
	if err := m.opts.Store.RemoveToken(ctx, m.opts.Name); err != nil {
		m.logger.Warn("failed to remove token", "error", err)
	}
	m.storeMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.Nil
	if a != nil {
		id = a.id
	}
	m.state.reset()
	m.emitLocked(Event{
		Type:         EventStatus,
		Notification: notify.Notification{Kind: notify.KindError, Message: MsgConnEnded},
		Attempt:      id,
	})
	m.logger.Info("session closed")
}

// start supersedes the current attempt with a new one. A retry only starts
// while gen is still the live reconnect generation.
func (m *Manager) start(ctx context.Context, login protocol.Envelope, retry bool, gen uint64) {
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		id:     uuid.New(),
		parent: ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		retry:  retry,
	}
	a.logger = m.logger.With("attempt", a.id)

	m.mu.Lock()
	if retry && (gen != m.retryGen || m.current != nil) {
		m.mu.Unlock()
		cancel()
		return
	}
	old := m.current
	m.current = a
	if !retry {
		m.stopRetryLocked()
		m.backoff.Reset()
	}
	m.state.reset()
	m.state.phase = Connecting
	m.state.attempt = a.id
	m.mu.Unlock()

	if old != nil {
		old.logger.Debug("attempt superseded")
		old.cancel()
	}

	a.logger.Info("connecting", "url", m.opts.URL, "retry", retry)
	go m.run(actx, a, login)
}

type dialResult struct {
	client connection.Client
	err    error
}

// run owns the attempt until it ends. Every state change of the attempt
// happens on this goroutine.
func (m *Manager) run(ctx context.Context, a *attempt, login protocol.Envelope) {
	defer close(a.done)

	dialed := make(chan dialResult, 1)
	go func() {
		c, err := m.opts.Dialer.Dial(ctx, m.opts.URL)
		dialed <- dialResult{c, err}
	}()
	dialPending := true

	timer := time.NewTimer(m.opts.AuthTimeout)
	defer timer.Stop()
	timeout := timer.C

	var (
		client   connection.Client
		messages <-chan connection.TimestampedMessage
		errs     <-chan error
	)

	defer func() {
		if client != nil {
			client.Close()
		}
		if dialPending {
			go func() {
				if r := <-dialed; r.client != nil {
					r.client.Close()
				}
			}()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.abandon(a)
			return

		case r := <-dialed:
			dialPending = false
			if r.err != nil {
				a.logger.Warn("dial failed", "error", r.err)
				m.fail(a, MsgConnError)
				return
			}
			client = r.client
			if !m.attach(a, client) {
				return
			}
			data, err := protocol.Encode(login)
			if err == nil {
				err = client.Send(data)
			}
			if err != nil {
				a.logger.Warn("failed to send login", "error", err)
				m.fail(a, MsgConnError)
				return
			}
			messages = client.Messages()
			errs = client.Errors()

		case <-timeout:
			timeout = nil
			m.expire(a)

		case msg := <-messages:
			switch m.handleFrame(a, msg) {
			case frameLoggedIn:
				timer.Stop()
				timeout = nil
				if m.opts.AutoSubscribe {
					m.subscribe(client)
				}
			case frameEnded:
				return
			}

		case err := <-errs:
			msg := MsgConnError
			if errors.Is(err, connection.ErrClosedByPeer) {
				msg = MsgConnEnded
			}
			a.logger.Info("transport ended", "cause", err)
			m.fail(a, msg)
			return
		}
	}
}

// attach records the open client and moves to Authenticating.
func (m *Manager) attach(a *attempt, c connection.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		return false
	}
	a.client = c
	m.state.phase = Authenticating
	return true
}

// abandon runs when the attempt context ends. A superseded attempt leaves the
// state alone; a cancelled current attempt resets it without an event.
func (m *Manager) abandon(a *attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		return
	}
	m.current = nil
	m.state.reset()
	a.logger.Info("attempt cancelled")
}

// expire handles the login deadline. The transport is left open.
func (m *Manager) expire(a *attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a || m.state.connected {
		return
	}
	a.logger.Warn("login timed out", "timeout", m.opts.AuthTimeout)
	m.statusLocked(a, notify.KindError, MsgTimeout)
}

// fail resets the session after a transport failure or close and schedules
// a reconnect when the policy allows it.
func (m *Manager) fail(a *attempt, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		return
	}
	m.current = nil
	m.state.reset()
	m.statusLocked(a, notify.KindError, msg)

	if a.connected || a.retry {
		m.scheduleRetryLocked(a.parent)
	}
}

type frameResult int

const (
	frameHandled frameResult = iota
	frameLoggedIn
	frameEnded
)

// handleFrame dispatches one inbound frame. Each present field is handled on
// its own: authenticate, then config, data and notification.
func (m *Manager) handleFrame(a *attempt, msg connection.TimestampedMessage) frameResult {
	env, err := protocol.Decode(msg.Data)
	if err != nil {
		a.logger.Debug("ignoring frame", "error", err)
		return frameHandled
	}

	if len(env.Skipped) > 0 {
		a.logger.Debug("ignoring malformed fields", "fields", env.Skipped)
	}

	result := frameHandled
	if env.Authenticate != nil {
		result = m.handleAuth(a, env.Authenticate)
		if result == frameEnded {
			return result
		}
	}
	if env.Config != nil {
		m.handleConfig(a, env.Config)
	}
	if env.Data != nil {
		m.handleData(a, env.Data, msg.ReceivedAt)
	}
	if env.Notification != nil {
		m.opts.Sink.Deliver(notify.Notification{
			Kind:    notify.ParseKind(env.Notification.Type),
			Message: env.Notification.Message,
		})
	}
	return result
}

// handleAuth applies a login result. Success needs both token and username.
// Only the current attempt writes the stored token.
func (m *Manager) handleAuth(a *attempt, auth *protocol.Authenticate) frameResult {
	ok := auth.HasToken() && auth.HasUsername()

	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if !m.isCurrent(a) {
		return frameEnded
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.parent), storeTimeout)
	defer cancel()
	if ok {
		if err := m.opts.Store.SetToken(ctx, m.opts.Name, *auth.Token); err != nil {
			a.logger.Warn("failed to store token", "error", err)
		}
	} else if err := m.opts.Store.RemoveToken(ctx, m.opts.Name); err != nil {
		a.logger.Warn("failed to remove token", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		return frameEnded
	}

	if !ok {
		a.logger.Warn("authentication failed",
			"has_token", auth.HasToken(),
			"has_username", auth.HasUsername(),
		)
		m.current = nil
		m.stopRetryLocked()
		m.state.reset()
		m.statusLocked(a, notify.KindError, MsgAuthFailed)
		return frameEnded
	}

	m.state.username = *auth.Username
	m.state.connected = true
	m.state.phase = Connected
	a.connected = true
	m.backoff.Reset()
	a.logger.Info("logged in", "username", *auth.Username)
	m.statusLocked(a, notify.KindSuccess, fmt.Sprintf(MsgLoggedIn, *auth.Username))
	return frameLoggedIn
}

func (m *Manager) isCurrent(a *attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == a
}

// handleConfig replaces the config snapshot.
func (m *Manager) handleConfig(a *attempt, payload *protocol.ConfigPayload) {
	cfg := payload.ToModel(m.host)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		return
	}
	m.state.config = cfg
	a.logger.Debug("config replaced", "devices", len(cfg.Devices), "persistences", len(cfg.Persistences))
	m.emitLocked(Event{Type: EventConfigChanged, Attempt: a.id})
}

// handleData merges telemetry for devices of the current config.
func (m *Manager) handleData(a *attempt, data map[string]map[string]any, receivedAt time.Time) {
	var accepted []model.TelemetryUpdate

	m.mu.Lock()
	if m.current != a {
		m.mu.Unlock()
		return
	}
	for deviceID, channels := range data {
		if !m.state.config.HasDevice(deviceID) {
			continue
		}
		m.state.telemetry.Merge(deviceID, channels)
		accepted = append(accepted, model.TelemetryUpdate{
			Connection: m.opts.Name,
			DeviceID:   deviceID,
			Channels:   channels,
			ReceivedAt: receivedAt,
		})
	}
	m.mu.Unlock()

	if dropped := len(data) - len(accepted); dropped > 0 {
		a.logger.Debug("dropped telemetry for unknown devices", "count", dropped)
	}
	if m.opts.Telemetry == nil {
		return
	}
	for _, u := range accepted {
		m.opts.Telemetry.HandleTelemetry(u)
	}
}

func (m *Manager) subscribe(c connection.Client) {
	data, err := protocol.Encode(protocol.SubscribeMsg(m.opts.SubscribeTag))
	if err == nil {
		err = c.Send(data)
	}
	if err != nil {
		m.logger.Warn("failed to subscribe", "tag", m.opts.SubscribeTag, "error", err)
	}
}

func (m *Manager) storedToken(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	token, ok, err := m.opts.Store.Token(ctx, m.opts.Name)
	if err != nil {
		m.logger.Warn("failed to read stored token", "error", err)
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, ok
}

// statusLocked emits the status event of a, unless one was already emitted.
func (m *Manager) statusLocked(a *attempt, kind notify.Kind, msg string) {
	if a.statusSet {
		a.logger.Debug("status suppressed", "message", msg)
		return
	}
	a.statusSet = true
	m.emitLocked(Event{
		Type:         EventStatus,
		Notification: notify.Notification{Kind: kind, Message: msg},
		Attempt:      a.id,
	})
}

// emitLocked never blocks; a full buffer drops the event.
func (m *Manager) emitLocked(ev Event) {
	ev.At = time.Now()
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping event",
			"type", ev.Type,
			"message", ev.Notification.Message,
		)
	}
}
