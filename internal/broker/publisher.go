package broker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/domain"
	"github.com/cartelera-live/cartelera/internal/metrics"
)

// Publisher decouples catalog mutations from fan-out: Publish enqueues and
// returns immediately, a single drain goroutine calls Registry.Broadcast in
// arrival order. One goroutine keeps per-connection delivery FIFO without
// the mutation path ever blocking on a slow peer.
type Publisher struct {
	registry *Registry
	log      *zap.Logger

	queue chan *domain.Envelope
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ domain.Broadcaster = (*Publisher)(nil)

func NewPublisher(registry *Registry, queueSize int, log *zap.Logger) *Publisher {
	p := &Publisher{
		registry: registry,
		log:      log,
		queue:    make(chan *domain.Envelope, queueSize),
		done:     make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish enqueues an envelope for broadcast. Never blocks and never
// panics: a full queue drops the envelope, and so does publishing after
// Close, matching the fabric's at-most-once best-effort contract. A late
// publish during shutdown is a dropped frame, not a crash.
func (p *Publisher) Publish(env *domain.Envelope) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.FramesDropped.Inc()
		p.log.Warn("publish after close, dropping envelope",
			zap.String("event", env.Name),
			zap.Int64("target_local", env.Target.LocalID))
		return
	}
	select {
	case p.queue <- env:
		p.mu.Unlock()
		metrics.BroadcastsTotal.WithLabelValues(env.Name).Inc()
	default:
		p.mu.Unlock()
		metrics.FramesDropped.Inc()
		p.log.Warn("publish queue full, dropping envelope",
			zap.String("event", env.Name),
			zap.Int64("target_local", env.Target.LocalID))
	}
}

func (p *Publisher) drain() {
	defer close(p.done)
	for env := range p.queue {
		p.registry.Broadcast(env)
	}
}

// Close stops accepting envelopes and waits for queued ones to fan out.
// Idempotent; Publish calls racing with Close either land before the queue
// closes or are dropped by the closed flag.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done
}
