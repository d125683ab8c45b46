package domain

// Conn is one live duplex connection as seen by the registry. The concrete
// type is owned by the broker package; tests substitute fakes.
type Conn interface {
	// ID returns the connection's opaque identifier.
	ID() string

	// Send writes one text frame. Frames sent through a single connection
	// are delivered in call order. A non-nil error means the transport is
	// no longer usable.
	Send(frame []byte) error

	// Close tears the transport down with the given close code. Idempotent.
	Close(code int, reason string)
}

// Broadcaster is the surface the catalog layer publishes through.
type Broadcaster interface {
	Publish(env *Envelope)
}
