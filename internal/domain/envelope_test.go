package domain

import (
	"encoding/json"
	"testing"
)

func TestTargetMatches(t *testing.T) {
	cases := []struct {
		name   string
		target Target
		scope  Scope
		want   bool
	}{
		{"global reaches bound kiosk", Target{}, Scope{LocalID: 7, Role: RoleKiosk}, true},
		{"global reaches unbound admin", Target{}, Scope{Role: RoleAdmin}, true},
		{"scoped reaches same location", Target{LocalID: 7}, Scope{LocalID: 7, Role: RoleKiosk}, true},
		{"scoped skips other location", Target{LocalID: 7}, Scope{LocalID: 9, Role: RoleKiosk}, false},
		{"scoped reaches unbound admin", Target{LocalID: 7}, Scope{Role: RoleAdmin}, true},
		{"scoped skips other admin", Target{LocalID: 7}, Scope{LocalID: 9, Role: RoleAdmin}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.target.Matches(tc.scope); got != tc.want {
				t.Errorf("Matches(%+v, %+v) = %v, want %v", tc.target, tc.scope, got, tc.want)
			}
		})
	}
}

func TestEnvelopeFrame(t *testing.T) {
	env, err := NewEnvelope(EventProductUpdated, Target{LocalID: 7}, map[string]any{"id": 42})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var wf struct {
		Event   string          `json:"evento"`
		Payload json.RawMessage `json:"datos"`
	}
	if err := json.Unmarshal(env.Frame(), &wf); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if wf.Event != EventProductUpdated {
		t.Errorf("event = %q, want %q", wf.Event, EventProductUpdated)
	}
	if string(wf.Payload) != `{"id":42}` {
		t.Errorf("payload = %s", wf.Payload)
	}
}

func TestEnvelopeNilPayloadOmitsDatos(t *testing.T) {
	env, err := NewEnvelope(EventConnected, Target{}, nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if string(env.Frame()) != `{"evento":"conectado"}` {
		t.Errorf("frame = %s", env.Frame())
	}
}

func TestDecodeFrame(t *testing.T) {
	name, payload, err := DecodeFrame([]byte(`{"evento":"menu_actualizado","datos":{"local_id":7}}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if name != EventMenuUpdated {
		t.Errorf("name = %q", name)
	}
	if string(payload) != `{"local_id":7}` {
		t.Errorf("payload = %s", payload)
	}

	if _, _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, _, err := DecodeFrame([]byte(`{"datos":{}}`)); err == nil {
		t.Error("expected error for frame without event name")
	}
}
