package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cartelera-live/cartelera/internal/config"
	"github.com/cartelera-live/cartelera/internal/domain"
	apperrors "github.com/cartelera-live/cartelera/internal/errors"
	"github.com/cartelera-live/cartelera/internal/metrics"
)

// Close codes used by the handshake and teardown paths.
const (
	closeCodeNormal      = websocket.CloseNormalClosure
	closeCodeGoingAway   = websocket.CloseGoingAway
	closeCodePolicy      = websocket.ClosePolicyViolation // refused handshakes (1008)
	closeCodeServerError = websocket.CloseInternalServerErr
)

const (
	pongWait   = 75 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn is one registered WebSocket connection. The registry owns the
// handle exclusively; nothing outside this package touches the underlying
// transport.
type wsConn struct {
	id    string
	ws    *websocket.Conn
	scope domain.Scope

	registry *Registry
	cfg      config.BrokerConfig
	log      *zap.Logger

	limiter *rate.Limiter

	writeMu  sync.Mutex
	closeMu  sync.Once
	isClosed atomic.Bool
}

var _ domain.Conn = (*wsConn)(nil)

func newWsConn(ws *websocket.Conn, scope domain.Scope, registry *Registry, cfg config.BrokerConfig, log *zap.Logger) *wsConn {
	c := &wsConn{
		id:       uuid.NewString(),
		ws:       ws,
		scope:    scope,
		registry: registry,
		cfg:      cfg,
		log:      log,
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.MaxFramesPerSecond > 0 {
		c.limiter = rate.NewLimiter(
			rate.Limit(cfg.RateLimit.MaxFramesPerSecond),
			cfg.RateLimit.BurstSize,
		)
	}
	return c
}

func (c *wsConn) ID() string { return c.id }

// Send writes one text frame. Calls are serialized by writeMu, so frames
// from a single broadcaster goroutine arrive in call order.
func (c *wsConn) Send(frame []byte) error {
	if c.isClosed.Load() {
		return websocket.ErrCloseSent
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the transport down exactly once. Safe to call from the read
// loop, the registry, and shutdown concurrently.
func (c *wsConn) Close(code int, reason string) {
	c.closeMu.Do(func() {
		c.isClosed.Store(true)

		msg := websocket.FormatCloseMessage(code, reason)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.ws.Close()
		metrics.DecrementActiveConnections()

		c.log.Debug("connection closed",
			zap.String("ws_id", c.id),
			zap.Int("code", code),
			zap.String("reason", reason))
	})
}

// run reads frames until the peer goes away. Kiosks and admin panels do not
// publish through the socket; inbound traffic only keeps the connection
// alive, but malformed data is still counted and dropped without affecting
// anyone else.
func (c *wsConn) run() {
	defer func() {
		c.registry.Unregister(c)
		c.Close(closeCodeNormal, "read loop terminated")
	}()

	c.ws.SetReadLimit(c.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(done)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, closeCodeNormal, closeCodeGoingAway) {
				c.log.Debug("read error, disconnecting client",
					zap.String("ws_id", c.id),
					zap.Error(apperrors.TransportFailure("read", err)))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if mt != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.log.Warn("inbound rate limit exceeded", zap.String("ws_id", c.id))
			continue
		}

		name, _, err := domain.DecodeFrame(data)
		if err != nil {
			metrics.MalformedFrames.Inc()
			c.log.Debug("dropping malformed frame",
				zap.String("ws_id", c.id),
				zap.Error(apperrors.MalformedFrame(err)))
			continue
		}
		c.log.Debug("inbound frame", zap.String("ws_id", c.id), zap.String("event", name))
	}
}

func (c *wsConn) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
