package client

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/domain"
	apperrors "github.com/cartelera-live/cartelera/internal/errors"
	"github.com/cartelera-live/cartelera/internal/metrics"
)

// State is the channel's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DefaultReconnectDelay is the fixed delay before retrying after an
// unexpected close.
const DefaultReconnectDelay = 5 * time.Second

// Handler receives one decoded frame. Handlers run on the read goroutine in
// registration order; they should not block.
type Handler func(payload json.RawMessage)

// Subscription is the opaque disposer returned by Subscribe. Cancel removes
// exactly this registration; other handlers for the same event, including
// duplicates of the same function, are untouched.
type Subscription struct {
	ch    *Channel
	event string
	id    uint64
	fn    Handler
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.ch != nil {
		s.ch.unsubscribe(s)
	}
}

// Options configures a Channel.
type Options struct {
	// URL is the broadcast endpoint, e.g. ws://host:8080/ws/local.
	URL string
	// Credentials supplies the bearer token at connect time.
	Credentials CredentialStore
	// ReconnectDelay overrides the fixed reconnect delay. Zero means
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// Dialer overrides the websocket dialer, mostly for tests.
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Channel maintains the single logical connection a client process keeps to
// the broadcast endpoint, reconnecting after failures and dispatching
// decoded frames to subscribers. One Channel per process; concurrent
// Connect calls collapse on the Connecting/Open guard.
type Channel struct {
	endpoint string
	creds    CredentialStore
	delay    time.Duration
	dialer   *websocket.Dialer
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	ws        *websocket.Conn
	reconnect *time.Timer
	explicit  bool
	gen       uint64

	nextSubID uint64
	subs      map[string][]*Subscription
}

func New(opts Options) *Channel {
	delay := opts.ReconnectDelay
	if delay == 0 {
		delay = DefaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		endpoint: opts.URL,
		creds:    opts.Credentials,
		delay:    delay,
		dialer:   dialer,
		log:      log,
		state:    StateIdle,
		subs:     make(map[string][]*Subscription),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connection attempt. A no-op while already Connecting or
// Open, so any number of UI components may request connection safely. When
// no bearer token is available the attempt declines silently; callers retry
// once credentials exist.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}

	token, err := c.creds.Token()
	if err != nil || token == "" {
		c.mu.Unlock()
		c.log.Info("connect declined", zap.Error(apperrors.NoCredential()))
		return
	}

	c.state = StateConnecting
	c.explicit = false
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen, token)
}

// Disconnect cancels any pending reconnect, closes the transport with the
// normal-closure marker and settles in Idle. Idempotent; no reconnect is
// scheduled after an explicit disconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.explicit = true
	c.gen++ // orphan any in-flight dial
	ws := c.ws
	c.ws = nil
	c.state = StateIdle
	c.mu.Unlock()

	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

// Send transmits an envelope when Open; otherwise the frame is logged and
// dropped. Callers must not assume delivery.
func (c *Channel) Send(env *domain.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.ws == nil {
		c.log.Debug("send dropped: channel not open",
			zap.String("event", env.Name),
			zap.String("state", c.state.String()))
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.TextMessage, env.Frame()); err != nil {
		c.log.Debug("send failed", zap.String("event", env.Name), zap.Error(err))
	}
}

// Subscribe registers a handler for an event name. Handlers fire in
// registration order; the same function may be registered more than once
// and each registration is cancelled independently.
func (c *Channel) Subscribe(event string, fn Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	sub := &Subscription{ch: c, event: event, id: c.nextSubID, fn: fn}
	c.subs[event] = append(c.subs[event], sub)
	return sub
}

func (c *Channel) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.subs[sub.event]
	for i, s := range bucket {
		if s.id == sub.id {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		// Drop empty buckets so the table does not grow over the
		// lifetime of the process.
		delete(c.subs, sub.event)
	} else {
		c.subs[sub.event] = bucket
	}
}

func (c *Channel) dial(gen uint64, token string) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		c.log.Error("invalid endpoint", zap.String("url", c.endpoint), zap.Error(err))
		c.onClosed(gen)
		return
	}
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	ws, _, err := c.dialer.Dial(target.String(), nil)
	if err != nil {
		c.log.Warn("connect failed", zap.Error(err))
		c.onClosed(gen)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect (or a newer attempt) won the race.
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.state = StateOpen
	c.mu.Unlock()

	c.log.Info("channel open", zap.String("endpoint", c.endpoint))
	c.readLoop(gen, ws)
}

// readLoop dispatches frames in receipt order until the transport fails.
func (c *Channel) readLoop(gen uint64, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.log.Debug("transport closed", zap.Error(apperrors.TransportFailure("read", err)))
			c.onClosed(gen)
			return
		}

		name, payload, err := domain.DecodeFrame(data)
		if err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(apperrors.MalformedFrame(err)))
			continue
		}
		c.dispatch(name, payload)
	}
}

func (c *Channel) dispatch(name string, payload json.RawMessage) {
	c.mu.Lock()
	bucket := c.subs[name]
	handlers := make([]Handler, len(bucket))
	for i, s := range bucket {
		handlers[i] = s.fn
	}
	c.mu.Unlock()

	// Unrecognized event names fall through with an empty bucket:
	// forward-compatible by construction.
	for _, fn := range handlers {
		fn(payload)
	}
}

// onClosed handles transport teardown for generation gen. An explicit
// disconnect settles in Idle; anything else schedules exactly one reconnect
// after the fixed delay.
func (c *Channel) onClosed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return // stale read loop; a newer connection owns the state
	}
	c.ws = nil

	if c.explicit {
		c.state = StateIdle
		return
	}

	c.state = StateClosed
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.log.Info("channel closed, reconnect scheduled", zap.Duration("delay", c.delay))
	c.reconnect = time.AfterFunc(c.delay, c.retry)
}

// retry re-enters Connecting from a scheduled reconnect.
func (c *Channel) retry() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	token, err := c.creds.Token()
	if err != nil || token == "" {
		// Credentials vanished while we were down; stay Closed and try
		// again after another delay.
		c.reconnect = time.AfterFunc(c.delay, c.retry)
		c.mu.Unlock()
		c.log.Info("reconnect deferred", zap.Error(apperrors.NoCredential()))
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	metrics.Reconnects.Inc()
	go c.dial(gen, token)
}
