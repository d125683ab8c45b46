package domain

import (
	"encoding/json"
	"fmt"
)

// Event names understood by kiosks and admin panels. Payload shape is owned
// by the catalog layer; the fabric delivers these frames verbatim.
const (
	EventConnected       = "conectado"
	EventMenuUpdated     = "menu_actualizado"
	EventProductCreated  = "producto_creado"
	EventProductUpdated  = "producto_actualizado"
	EventProductDeleted  = "producto_eliminado"
	EventCategoryCreated = "categoria_creada"
	EventCategoryUpdated = "categoria_actualizada"
	EventCarouselUpdated = "carrusel_config_actualizada"
)

// Role classifies who is on the other end of a connection.
type Role string

const (
	RoleKiosk Role = "kiosk"
	RoleAdmin Role = "admin"
)

// Scope is the (location, role) pair a connection is admitted under.
// LocalID 0 means the connection is not bound to a particular location
// (admin/monitor sessions see every location's traffic).
type Scope struct {
	LocalID int64
	Role    Role
}

// Bound reports whether the scope is pinned to a single location.
func (s Scope) Bound() bool { return s.LocalID != 0 }

// Target selects which audience a broadcast reaches. The zero value
// addresses every registered connection.
type Target struct {
	LocalID int64
}

// All reports whether the target addresses every location.
func (t Target) All() bool { return t.LocalID == 0 }

// Matches implements the audience rule: a frame reaches a connection when
// the target is global, when the connection's location matches, or when the
// connection is an unbound admin/monitor session.
func (t Target) Matches(s Scope) bool {
	return t.All() || s.LocalID == t.LocalID || !s.Bound()
}

// Envelope is the immutable unit of broadcast: a named event plus an opaque
// payload, already encoded into its wire frame at construction time.
type Envelope struct {
	Name    string
	Target  Target
	Payload json.RawMessage

	frame []byte
}

// wireFrame is the text frame format shared with the browser clients.
type wireFrame struct {
	Event   string          `json:"evento"`
	Payload json.RawMessage `json:"datos,omitempty"`
}

// NewEnvelope builds an envelope, serializing the payload once. payload may
// be any JSON-marshalable value or nil.
func NewEnvelope(name string, target Target, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload for %q: %w", name, err)
		}
		raw = b
	}
	frame, err := json.Marshal(wireFrame{Event: name, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal frame for %q: %w", name, err)
	}
	return &Envelope{Name: name, Target: target, Payload: raw, frame: frame}, nil
}

// Frame returns the serialized text frame. The slice must not be mutated.
func (e *Envelope) Frame() []byte { return e.frame }

// DecodeFrame parses an inbound text frame into its event name and payload.
func DecodeFrame(data []byte) (string, json.RawMessage, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return "", nil, err
	}
	if wf.Event == "" {
		return "", nil, fmt.Errorf("frame missing event name")
	}
	return wf.Event, wf.Payload, nil
}
