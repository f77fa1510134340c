package repositories

// Handler receives the raw JSON payload of a transport event.
type Handler func(payload []byte)

// Transport abstracts the bidirectional event channel between the
// client state machine and the server session bridge. Compatible with
// any emit/on/off style transport; the wire format is the transport's
// own business.
type Transport interface {
	Emit(event string, payload interface{}) error
	On(event string, handler Handler)
	Off(event string)
}
