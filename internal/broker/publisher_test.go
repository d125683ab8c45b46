package broker

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/domain"
)

func TestPublisherPreservesOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c := &fakeConn{id: "ordered"}
	r.Register(c, domain.Scope{LocalID: 7, Role: domain.RoleKiosk})

	p := NewPublisher(r, 64, zap.NewNop())

	const n = 20
	for i := 0; i < n; i++ {
		p.Publish(mustEnvelope(t, domain.EventProductUpdated,
			domain.Target{LocalID: 7}, map[string]int{"seq": i}))
	}
	p.Close() // drains the queue before returning

	if got := c.frameCount(); got != n {
		t.Fatalf("received %d frames, want %d", got, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, frame := range c.frames {
		var wf struct {
			Payload struct {
				Seq int `json:"seq"`
			} `json:"datos"`
		}
		if err := json.Unmarshal(frame, &wf); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if wf.Payload.Seq != i {
			t.Fatalf("frame %d carries seq %d, order broken", i, wf.Payload.Seq)
		}
	}
}

func TestPublishAfterCloseDropsInsteadOfPanicking(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c := &fakeConn{id: "late"}
	r.Register(c, domain.Scope{LocalID: 7, Role: domain.RoleKiosk})

	p := NewPublisher(r, 8, zap.NewNop())
	p.Close()

	// A handler still in flight during shutdown may publish after the
	// queue is gone; the envelope is dropped, never a panic.
	p.Publish(mustEnvelope(t, domain.EventProductUpdated,
		domain.Target{LocalID: 7}, nil))

	if got := c.frameCount(); got != 0 {
		t.Errorf("late publish delivered %d frames", got)
	}
	// Close is idempotent.
	p.Close()
}

func TestPublisherDropsOnOverflow(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	// A blocked drain loop: one slow connection holds Broadcast while the
	// queue fills behind it.
	slow := &slowConn{release: make(chan struct{})}
	r.Register(slow, domain.Scope{LocalID: 7, Role: domain.RoleKiosk})

	p := NewPublisher(r, 2, zap.NewNop())
	defer close(slow.release)

	for i := 0; i < 10; i++ {
		p.Publish(mustEnvelope(t, domain.EventMenuUpdated,
			domain.Target{LocalID: 7}, map[string]int{"seq": i}))
	}
	// Publish never blocked; overflow envelopes were dropped silently.
}

type slowConn struct {
	release chan struct{}
	sent    int
}

func (s *slowConn) ID() string { return "slow" }
func (s *slowConn) Send(frame []byte) error {
	if s.sent == 0 {
		s.sent++
		select {
		case <-s.release:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}
func (s *slowConn) Close(code int, reason string) {}
