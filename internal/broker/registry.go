package broker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/domain"
	apperrors "github.com/cartelera-live/cartelera/internal/errors"
	"github.com/cartelera-live/cartelera/internal/metrics"
)

// Registry holds every live connection keyed by handle, each with the scope
// it was admitted under. It is pure routing state: rebuilt empty on process
// restart, never persisted. Clients are expected to reconnect.
type Registry struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[domain.Conn]domain.Scope
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[domain.Conn]domain.Scope),
	}
}

// Register inserts a connection under its resolved scope. Scope resolution
// happens before this call; a connection that failed it is closed by the
// handshake path and never reaches the registry. Re-registering the same
// handle replaces its scope rather than duplicating the entry.
func (r *Registry) Register(conn domain.Conn, scope domain.Scope) {
	r.mu.Lock()
	r.conns[conn] = scope
	total := len(r.conns)
	r.mu.Unlock()

	r.log.Debug("connection registered",
		zap.String("ws_id", conn.ID()),
		zap.Int64("local_id", scope.LocalID),
		zap.String("role", string(scope.Role)),
		zap.Int("total_connections", total))
}

// Unregister removes a connection if present. Idempotent: removing a handle
// that is already gone is a no-op.
func (r *Registry) Unregister(conn domain.Conn) {
	r.mu.Lock()
	_, present := r.conns[conn]
	delete(r.conns, conn)
	total := len(r.conns)
	r.mu.Unlock()

	if present {
		r.log.Debug("connection unregistered",
			zap.String("ws_id", conn.ID()),
			zap.Int("total_connections", total))
	}
}

// Size returns the number of registered connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast delivers the envelope to every connection whose scope matches
// the envelope's target. Delivery is best-effort per connection: a failed
// writer is unregistered and closed, and fan-out continues with the rest.
// Returns the number of successful deliveries.
func (r *Registry) Broadcast(env *domain.Envelope) int {
	start := time.Now()

	r.mu.RLock()
	audience := make([]domain.Conn, 0, len(r.conns))
	for conn, scope := range r.conns {
		if env.Target.Matches(scope) {
			audience = append(audience, conn)
		}
	}
	r.mu.RUnlock()

	frame := env.Frame()
	delivered := 0
	for _, conn := range audience {
		if err := conn.Send(frame); err != nil {
			metrics.DeliveryFailures.Inc()
			r.log.Warn("delivery failed, dropping connection",
				zap.String("ws_id", conn.ID()),
				zap.String("event", env.Name),
				zap.Error(apperrors.TransportFailure("write", err)))
			r.Unregister(conn)
			conn.Close(closeCodeGoingAway, "write failed")
			continue
		}
		metrics.FramesDelivered.Inc()
		delivered++
	}

	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	r.log.Debug("broadcast complete",
		zap.String("event", env.Name),
		zap.Int64("target_local", env.Target.LocalID),
		zap.Int("audience", len(audience)),
		zap.Int("delivered", delivered))
	return delivered
}

// CloseAll tears down every connection during shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]domain.Conn, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[domain.Conn]domain.Scope)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(closeCodeNormal, reason)
	}
}
