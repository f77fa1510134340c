package websocket

import (
	"encoding/json"
	"fmt"
)

// Envelope is the downstream wire frame: every protocol event travels
// as one JSON text message naming the event and carrying its payload
// verbatim.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEnvelope wraps an event payload into a wire frame.
func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// DecodeEnvelope parses a wire frame and validates that it names an
// event.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope missing event name")
	}
	return env, nil
}
