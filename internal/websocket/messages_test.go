package websocket

import (
	"encoding/json"
	"testing"

	"github.com/sa2kit/iatbridge/domain/entities"
)

func TestEncodeEnvelope(t *testing.T) {
	data, err := EncodeEnvelope(entities.EventReady, entities.ReadyPayload{SessionID: "s1"})
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Encoded envelope is not valid JSON: %v", err)
	}
	if env.Event != entities.EventReady {
		t.Errorf("Expected event %s, got %s", entities.EventReady, env.Event)
	}

	var payload entities.ReadyPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Payload did not round-trip: %v", err)
	}
	if payload.SessionID != "s1" {
		t.Errorf("Expected session_id s1, got %s", payload.SessionID)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"stt:start","payload":{"session_id":"abc"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Event != entities.EventStart {
		t.Errorf("Expected event %s, got %s", entities.EventStart, env.Event)
	}

	var payload entities.StartPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.SessionID != "abc" {
		t.Errorf("Expected session_id abc, got %s", payload.SessionID)
	}
}

func TestDecodeEnvelope_MissingEvent(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"payload":{}}`)); err == nil {
		t.Error("Expected an error for an envelope without an event name")
	}
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{not json`)); err == nil {
		t.Error("Expected an error for invalid JSON")
	}
}

func TestDecodePayload_Empty(t *testing.T) {
	var payload entities.StopPayload
	if err := decodePayload(nil, &payload); err != nil {
		t.Errorf("Empty payload should decode to the zero value, got %v", err)
	}
	if payload.SessionID != "" {
		t.Errorf("Expected zero value, got %+v", payload)
	}
}
