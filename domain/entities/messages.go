package entities

// Event names exchanged between the client state machine and the
// server session bridge. The transport only needs emit/on semantics
// for these six names; it does not interpret the payloads.
const (
	EventStart  = "stt:start"
	EventAudio  = "stt:audio"
	EventStop   = "stt:stop"
	EventReady  = "stt:ready"
	EventResult = "stt:result"
	EventError  = "stt:error"
)

// StartPayload opens a recognition session.
type StartPayload struct {
	SessionID string `json:"session_id"`
}

// AudioFrame carries one chunk of base64-encoded 16-bit PCM audio
// from the client to the bridge. Language/domain/accent ride along so
// the bridge can build the first upstream frame without extra state.
type AudioFrame struct {
	SessionID string      `json:"session_id"`
	Status    FrameStatus `json:"status"`
	Audio     string      `json:"audio,omitempty"`
	Language  string      `json:"language,omitempty"`
	Domain    string      `json:"domain,omitempty"`
	Accent    string      `json:"accent,omitempty"`
}

// StopPayload tears a session down without waiting for a final result.
type StopPayload struct {
	SessionID string `json:"session_id"`
}

// ReadyPayload acknowledges that the upstream connection is open and
// the bridge will accept audio frames for the session.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
}

// ResultPayload delivers an interim or final transcript to the client.
type ResultPayload struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
}

// ErrorPayload surfaces a session failure to the client.
type ErrorPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
