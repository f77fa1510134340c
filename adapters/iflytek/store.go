package iflytek

import "sync"

// upstreamState tracks the lifecycle of a session's upstream
// connection.
type upstreamState int

const (
	stateConnecting upstreamState = iota
	stateOpen
	stateClosed
)

// Session is the server-side state for one downstream connection's
// recognition attempt. All fields are guarded by the owning adapter's
// mutex; the struct itself carries no locking.
type Session struct {
	ID string

	conn  UpstreamConn
	state upstreamState
	// localClose marks that we tore the upstream connection down
	// ourselves, so the read loop's exit is not an error.
	localClose bool

	FrameCount     int
	FirstFrameSent bool
	Ended          bool
	Segments       []string
	Text           string
}

// SessionStore keeps the at-most-one session per downstream
// connection, keyed by connection identity. Injected into the adapter
// so tests see no ambient registry.
type SessionStore interface {
	Get(connID string) (*Session, bool)
	Put(connID string, session *Session)
	Delete(connID string)
}

// MemoryStore is the in-process SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(connID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[connID]
	return session, ok
}

func (s *MemoryStore) Put(connID string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[connID] = session
}

func (s *MemoryStore) Delete(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, connID)
}
