package iflytek

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/domain/entities"
)

const (
	defaultHost     = "iat-api.xfyun.cn"
	defaultPath     = "/v2/iat"
	defaultLanguage = "zh_cn"
	defaultDomain   = "iat"
	defaultAccent   = "mandarin"
)

// Socket is the downstream side of the bridge: one connected client,
// identified by connection identity, able to receive protocol events.
type Socket interface {
	ID() string
	Emit(event string, payload interface{}) error
}

// Config holds the recognizer credentials and recognition defaults.
type Config struct {
	AppID     string
	APIKey    string
	APISecret string

	// Host and Path locate the recognizer endpoint; empty values
	// fall back to the public dictation service.
	Host string
	Path string

	// Recognition parameters used when a first frame omits them.
	Language string
	Domain   string
	Accent   string
}

// Adapter bridges downstream protocol events to a signed upstream
// recognizer connection, one session per downstream connection at
// most. The hosting transport dispatches start/audio/stop/disconnect
// into the four Handle methods; everything else is internal.
type Adapter struct {
	cfg    Config
	dialer Dialer
	store  SessionStore
	logger *zap.Logger

	mu sync.Mutex
}

// NewAdapter creates a session bridge backed by the given dialer and
// session store.
func NewAdapter(cfg Config, dialer Dialer, store SessionStore, logger *zap.Logger) *Adapter {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.Accent == "" {
		cfg.Accent = defaultAccent
	}
	return &Adapter{
		cfg:    cfg,
		dialer: dialer,
		store:  store,
		logger: logger,
	}
}

// EffectiveStatus is the status actually sent upstream for a declared
// frame status. The first message to the recognizer must carry the
// recognition parameters, so until a first frame has gone out every
// non-terminal frame is reinterpreted as first regardless of what the
// client declared.
func EffectiveStatus(firstFrameSent bool, declared entities.FrameStatus) entities.FrameStatus {
	if !firstFrameSent && declared != entities.FrameStatusLast {
		return entities.FrameStatusFirst
	}
	return declared
}

// HandleStart opens a recognition session for the socket, reusing the
// existing one when the protocol says so: an open session is only
// re-acknowledged, a connecting one is left to resolve, an ended or
// dead one is discarded first.
func (a *Adapter) HandleStart(socket Socket, payload entities.StartPayload) {
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if a.cfg.AppID == "" || a.cfg.APIKey == "" || a.cfg.APISecret == "" {
		a.logger.Error("recognizer credentials missing", zap.String("connID", socket.ID()))
		a.emitError(socket, sessionID, "recognizer credentials are not configured")
		return
	}

	a.mu.Lock()
	if existing, ok := a.store.Get(socket.ID()); ok {
		switch {
		case existing.Ended:
			a.logger.Debug("replacing ended session",
				zap.String("connID", socket.ID()),
				zap.String("sessionID", existing.ID))
			a.closeUpstreamLocked(existing)
			a.store.Delete(socket.ID())
		case existing.state == stateOpen:
			a.mu.Unlock()
			a.logger.Debug("duplicate start ignored, session open",
				zap.String("connID", socket.ID()),
				zap.String("sessionID", existing.ID))
			a.emitReady(socket, existing.ID)
			return
		case existing.state == stateConnecting:
			a.mu.Unlock()
			a.logger.Debug("duplicate start ignored, session connecting",
				zap.String("connID", socket.ID()),
				zap.String("sessionID", existing.ID))
			return
		default:
			a.store.Delete(socket.ID())
		}
	}

	session := &Session{ID: sessionID, state: stateConnecting}
	a.store.Put(socket.ID(), session)
	a.mu.Unlock()

	a.logger.Info("session starting",
		zap.String("connID", socket.ID()),
		zap.String("sessionID", sessionID))
	go a.connectUpstream(socket, session)
}

// HandleAudio forwards one audio frame upstream, fixing up the frame
// status so the first message always carries recognition parameters.
func (a *Adapter) HandleAudio(socket Socket, frame entities.AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.store.Get(socket.ID())
	if !ok || session.state != stateOpen {
		return
	}
	if frame.SessionID != "" && frame.SessionID != session.ID {
		a.logger.Debug("stale audio frame ignored",
			zap.String("connID", socket.ID()),
			zap.String("sessionID", frame.SessionID))
		return
	}
	if !frame.Status.Valid() {
		a.logger.Debug("audio frame with invalid status ignored",
			zap.String("connID", socket.ID()),
			zap.Int("status", int(frame.Status)))
		return
	}
	if session.Ended && frame.Status == entities.FrameStatusLast {
		a.logger.Debug("duplicate terminal frame ignored", zap.String("connID", socket.ID()))
		return
	}
	if !session.FirstFrameSent && frame.Status == entities.FrameStatusLast {
		a.logger.Debug("terminal frame before first frame ignored", zap.String("connID", socket.ID()))
		return
	}

	status := EffectiveStatus(session.FirstFrameSent, frame.Status)
	session.FrameCount++
	if status == entities.FrameStatusFirst {
		session.FirstFrameSent = true
	}
	if status == entities.FrameStatusLast {
		session.Ended = true
	}

	payload, err := buildUpstreamFrame(a.cfg.AppID, status, frame, a.defaults())
	if err != nil {
		a.logger.Error("failed to build upstream frame",
			zap.String("connID", socket.ID()),
			zap.Error(err))
		return
	}

	a.logger.Debug("audio frame forwarded",
		zap.String("connID", socket.ID()),
		zap.Int("status", int(status)),
		zap.Int("audioLen", len(frame.Audio)),
		zap.Int("frameCount", session.FrameCount))

	// Written under the adapter lock so frames of one session can
	// never be reordered relative to each other.
	if err := session.conn.WriteMessage(payload); err != nil {
		a.logger.Error("upstream write failed",
			zap.String("connID", socket.ID()),
			zap.Error(err))
		a.emitError(socket, session.ID, "recognizer write failed: "+err.Error())
	}
}

// HandleStop tears the session down without waiting for the
// recognizer. A stop naming a different session than the active one
// is stale and ignored.
func (a *Adapter) HandleStop(socket Socket, payload entities.StopPayload) {
	a.mu.Lock()
	session, ok := a.store.Get(socket.ID())
	if !ok {
		a.mu.Unlock()
		return
	}
	if payload.SessionID != "" && session.ID != "" && payload.SessionID != session.ID {
		a.mu.Unlock()
		a.logger.Debug("stale stop ignored",
			zap.String("connID", socket.ID()),
			zap.String("sessionID", payload.SessionID))
		return
	}
	a.closeUpstreamLocked(session)
	a.store.Delete(socket.ID())
	a.mu.Unlock()

	a.logger.Debug("session stopped",
		zap.String("connID", socket.ID()),
		zap.String("sessionID", session.ID))
}

// HandleDisconnect releases whatever session the connection still
// owns.
func (a *Adapter) HandleDisconnect(socket Socket) {
	a.mu.Lock()
	session, ok := a.store.Get(socket.ID())
	if ok {
		a.closeUpstreamLocked(session)
		a.store.Delete(socket.ID())
	}
	a.mu.Unlock()

	if ok {
		a.logger.Debug("downstream disconnected",
			zap.String("connID", socket.ID()),
			zap.String("sessionID", session.ID))
	}
}

func (a *Adapter) connectUpstream(socket Socket, session *Session) {
	wsURL := BuildWSURL(a.cfg.Host, a.cfg.Path, a.cfg.APIKey, a.cfg.APISecret, time.Now())
	conn, err := a.dialer.Dial(wsURL)

	a.mu.Lock()
	current, ok := a.store.Get(socket.ID())
	if !ok || current != session || session.state != stateConnecting {
		// The session was stopped or replaced while the dial was in
		// flight. Closing the fresh connection here is the benign
		// early-close race, not a failure.
		a.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		a.logger.Debug("upstream dial resolved for a dead session",
			zap.String("connID", socket.ID()),
			zap.String("sessionID", session.ID))
		return
	}
	if err != nil {
		a.store.Delete(socket.ID())
		a.mu.Unlock()
		a.logger.Error("upstream dial failed",
			zap.String("connID", socket.ID()),
			zap.Error(err))
		a.emitError(socket, session.ID, "recognizer connection failed: "+err.Error())
		return
	}
	session.conn = conn
	session.state = stateOpen
	a.mu.Unlock()

	a.logger.Debug("upstream open",
		zap.String("connID", socket.ID()),
		zap.String("sessionID", session.ID))
	a.emitReady(socket, session.ID)

	go a.readUpstream(socket, session, conn)
}

func (a *Adapter) readUpstream(socket Socket, session *Session, conn UpstreamConn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			a.finishUpstream(socket, session, err)
			return
		}
		a.handleUpstreamMessage(socket, session, data)
	}
}

// finishUpstream deregisters the session when its upstream connection
// goes away. Closes we initiated ourselves are routine and stay out
// of the client's error callback.
func (a *Adapter) finishUpstream(socket Socket, session *Session, err error) {
	a.mu.Lock()
	benign := session.localClose
	session.state = stateClosed
	if current, ok := a.store.Get(socket.ID()); ok && current == session {
		a.store.Delete(socket.ID())
	}
	a.mu.Unlock()

	if benign || isExpectedClose(err) {
		a.logger.Debug("upstream closed",
			zap.String("connID", socket.ID()),
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return
	}

	a.logger.Warn("upstream connection error",
		zap.String("connID", socket.ID()),
		zap.String("sessionID", session.ID),
		zap.Error(err))
	a.emitError(socket, session.ID, "recognizer connection error: "+err.Error())
}

func (a *Adapter) handleUpstreamMessage(socket Socket, session *Session, raw []byte) {
	var msg upstreamResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.emitError(socket, session.ID, "malformed recognizer message: "+err.Error())
		return
	}

	a.logger.Debug("upstream message",
		zap.String("connID", socket.ID()),
		zap.Int("code", msg.Code),
		zap.Int("status", msg.Data.Status))

	if msg.Code != 0 {
		message := msg.Message
		if message == "" {
			message = fmt.Sprintf("recognizer rejected the session (code=%d)", msg.Code)
		}
		a.emitError(socket, session.ID, message)
		return
	}

	a.mu.Lock()
	if current, ok := a.store.Get(socket.ID()); !ok || current != session {
		a.mu.Unlock()
		return
	}
	session.Segments = MergeSegments(session.Segments, parseResult(msg.Data.Result))
	session.Text = JoinSegments(session.Segments)
	text := session.Text
	isFinal := msg.Data.Status == 2
	if isFinal {
		a.closeUpstreamLocked(session)
	}
	a.mu.Unlock()

	if text != "" || isFinal {
		a.emit(socket, entities.EventResult, entities.ResultPayload{
			SessionID: session.ID,
			Text:      text,
			IsFinal:   isFinal,
		})
	}
}

func (a *Adapter) closeUpstreamLocked(session *Session) {
	session.localClose = true
	if session.conn != nil {
		session.conn.Close()
	}
}

func (a *Adapter) defaults() BusinessDefaults {
	return BusinessDefaults{
		Language: a.cfg.Language,
		Domain:   a.cfg.Domain,
		Accent:   a.cfg.Accent,
	}
}

func (a *Adapter) emitReady(socket Socket, sessionID string) {
	a.emit(socket, entities.EventReady, entities.ReadyPayload{SessionID: sessionID})
}

func (a *Adapter) emitError(socket Socket, sessionID, message string) {
	a.emit(socket, entities.EventError, entities.ErrorPayload{
		SessionID: sessionID,
		Message:   message,
	})
}

func (a *Adapter) emit(socket Socket, event string, payload interface{}) {
	if err := socket.Emit(event, payload); err != nil {
		a.logger.Debug("downstream emit failed",
			zap.String("connID", socket.ID()),
			zap.String("event", event),
			zap.Error(err))
	}
}
