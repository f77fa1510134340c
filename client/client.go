// Package client implements the recording side of the speech-to-text
// bridge: a push-to-talk session state machine that feeds captured
// audio through a transport to the server session bridge and surfaces
// transcripts through callbacks.
//
// State machine: idle → connecting → recording → stopping → idle.
package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/domain/entities"
	"github.com/sa2kit/iatbridge/domain/repositories"
)

const (
	defaultSampleRate      = 16000
	defaultLanguage        = "zh_cn"
	defaultDomain          = "iat"
	defaultAccent          = "mandarin"
	defaultReadyTimeout    = 5 * time.Second
	defaultStopWaitTimeout = 1500 * time.Millisecond

	// Repeated Start calls inside this window are one physical
	// gesture, not two sessions.
	debounceWindow = 200 * time.Millisecond

	captureBufferSize = 4096
)

// User-facing failure messages for the two timeout paths.
const (
	MsgServiceNotReady   = "speech service not ready, please check the network and retry"
	MsgRecordingTooShort = "recording too short, keep holding while you speak"
	MsgRecognitionFailed = "speech recognition failed"
)

// Events are the recognizer's callbacks. Unset fields are simply not
// invoked.
type Events struct {
	OnPhaseChange   func(phase entities.Phase, sessionID string)
	OnInterimResult func(text, sessionID string)
	OnFinalResult   func(text, sessionID string)
	OnError         func(message, sessionID string)
}

// Config wires a Recognizer to its collaborators. Transport and
// Recorder are required; everything else has a default.
type Config struct {
	Transport repositories.Transport
	Recorder  repositories.AudioRecorder

	SampleRate int
	Language   string
	Domain     string
	Accent     string

	ReadyTimeout    time.Duration
	StopWaitTimeout time.Duration

	// PreReadyQueue is how many captured chunks to hold while the
	// session waits for the server's ready acknowledgement. Zero
	// keeps only the most recent chunk, overwriting earlier ones.
	PreReadyQueue int

	// Clock defaults to the wall clock; tests inject a mock.
	Clock  clock.Clock
	Logger *zap.Logger
}

type session struct {
	id          string
	phase       entities.Phase
	ready       bool
	hasAudio    bool
	finalSent   bool
	frameStatus entities.FrameStatus
	buffered    []string

	sub           repositories.Subscription
	readyTimer    *clock.Timer
	stopWaitTimer *clock.Timer
}

// Recognizer owns at most one live recognition session and the
// transport/recorder plumbing around it. All public methods are safe
// for concurrent use; session state is mutated under one mutex and
// user callbacks fire outside it.
type Recognizer struct {
	transport repositories.Transport
	recorder  repositories.AudioRecorder

	sampleRate      int
	language        string
	domain          string
	accent          string
	readyTimeout    time.Duration
	stopWaitTimeout time.Duration
	preReadyQueue   int

	clock  clock.Clock
	logger *zap.Logger

	mu        sync.Mutex
	events    Events
	session   *session
	bound     bool
	lastPress time.Time
}

// NewRecognizer creates a recognizer from the config, filling in
// defaults for everything optional.
func NewRecognizer(cfg Config) *Recognizer {
	r := &Recognizer{
		transport:       cfg.Transport,
		recorder:        cfg.Recorder,
		sampleRate:      cfg.SampleRate,
		language:        cfg.Language,
		domain:          cfg.Domain,
		accent:          cfg.Accent,
		readyTimeout:    cfg.ReadyTimeout,
		stopWaitTimeout: cfg.StopWaitTimeout,
		preReadyQueue:   cfg.PreReadyQueue,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
	}
	if r.sampleRate == 0 {
		r.sampleRate = defaultSampleRate
	}
	if r.language == "" {
		r.language = defaultLanguage
	}
	if r.domain == "" {
		r.domain = defaultDomain
	}
	if r.accent == "" {
		r.accent = defaultAccent
	}
	if r.readyTimeout == 0 {
		r.readyTimeout = defaultReadyTimeout
	}
	if r.stopWaitTimeout == 0 {
		r.stopWaitTimeout = defaultStopWaitTimeout
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// On registers event callbacks, keeping any previously set ones that
// the argument leaves nil.
func (r *Recognizer) On(events Events) *Recognizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if events.OnPhaseChange != nil {
		r.events.OnPhaseChange = events.OnPhaseChange
	}
	if events.OnInterimResult != nil {
		r.events.OnInterimResult = events.OnInterimResult
	}
	if events.OnFinalResult != nil {
		r.events.OnFinalResult = events.OnFinalResult
	}
	if events.OnError != nil {
		r.events.OnError = events.OnError
	}
	return r
}

// Phase returns the current session phase, idle when no session is
// live.
func (r *Recognizer) Phase() entities.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return entities.PhaseIdle
	}
	return r.session.phase
}

// SessionID returns the live session's id, empty when idle.
func (r *Recognizer) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.id
}

// IsActive reports whether a session exists in any phase.
func (r *Recognizer) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Start begins a recognition session: press-in. Returns false when
// the call was debounced or a session is already live.
func (r *Recognizer) Start() bool {
	r.mu.Lock()
	now := r.clock.Now()
	if now.Sub(r.lastPress) < debounceWindow {
		r.mu.Unlock()
		return false
	}
	r.lastPress = now
	if r.session != nil {
		r.mu.Unlock()
		return false
	}

	r.bindTransportLocked()

	sid := newSessionID(now)
	s := &session{
		id:          sid,
		phase:       entities.PhaseConnecting,
		frameStatus: entities.FrameStatusFirst,
	}
	r.session = s
	fire := []func(){r.setPhaseLocked(entities.PhaseConnecting, sid)}

	if err := r.recorder.Init(repositories.RecorderOptions{
		SampleRate:    r.sampleRate,
		Channels:      1,
		BitsPerSample: 16,
		BufferSize:    captureBufferSize,
	}); err != nil {
		r.logger.Warn("recorder init failed", zap.Error(err))
		fire = append(fire, r.destroyLocked(), r.errorCallback("audio capture unavailable: "+err.Error(), sid))
		r.mu.Unlock()
		runAll(fire)
		return false
	}

	s.sub = r.recorder.OnData(func(chunk string) {
		r.onAudioData(chunk, sid)
	})

	r.logger.Debug("session start", zap.String("sessionID", sid))
	if err := r.recorder.Start(); err != nil {
		r.logger.Warn("recorder start failed", zap.Error(err))
		fire = append(fire, r.destroyLocked(), r.errorCallback("audio capture unavailable: "+err.Error(), sid))
		r.mu.Unlock()
		runAll(fire)
		return false
	}

	r.emitLocked(entities.EventStart, entities.StartPayload{SessionID: sid})

	s.readyTimer = r.clock.AfterFunc(r.readyTimeout, func() {
		r.onReadyTimeout(sid)
	})

	r.mu.Unlock()
	runAll(fire)
	return true
}

// Stop ends the session: press-out. If audio already went out the
// terminal frame is sent immediately; otherwise we hold the session
// open briefly in case the first capture chunk is still in flight.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	s := r.session
	if s == nil {
		r.mu.Unlock()
		return
	}

	var fire []func()
	if s.hasAudio {
		r.logger.Debug("session stop", zap.String("sessionID", s.id))
		fire = r.finalizeLocked(s)
	} else if s.stopWaitTimer == nil && !s.finalSent {
		r.logger.Debug("stop before first frame, waiting", zap.String("sessionID", s.id))
		sid := s.id
		s.stopWaitTimer = r.clock.AfterFunc(r.stopWaitTimeout, func() {
			r.onStopWaitTimeout(sid)
		})
	}
	r.mu.Unlock()
	runAll(fire)
}

// Abort force-terminates the session without waiting for anything:
// page teardown, engine switch. Always synchronous.
func (r *Recognizer) Abort() {
	r.mu.Lock()
	if r.session != nil {
		r.emitLocked(entities.EventStop, entities.StopPayload{SessionID: r.session.id})
	}
	fire := []func(){r.destroyLocked()}
	r.mu.Unlock()
	runAll(fire)
}

// Dispose aborts the session and unregisters the transport handlers.
// The recognizer must not be used afterwards.
func (r *Recognizer) Dispose() {
	r.Abort()
	r.mu.Lock()
	r.unbindTransportLocked()
	r.mu.Unlock()
}

// transport event handlers

func (r *Recognizer) onReady(payload entities.ReadyPayload) {
	r.mu.Lock()
	s := r.session
	if s == nil || s.phase != entities.PhaseConnecting {
		r.mu.Unlock()
		return
	}
	if payload.SessionID != "" && payload.SessionID != s.id {
		r.mu.Unlock()
		return
	}

	r.logger.Debug("session ready", zap.String("sessionID", s.id))
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.ready = true
	fire := []func(){r.setPhaseLocked(entities.PhaseRecording, s.id)}

	for _, chunk := range s.buffered {
		r.sendAudioLocked(s, chunk)
	}
	s.buffered = nil

	if s.stopWaitTimer != nil && s.hasAudio {
		s.stopWaitTimer.Stop()
		s.stopWaitTimer = nil
		fire = append(fire, r.finalizeLocked(s)...)
	}
	r.mu.Unlock()
	runAll(fire)
}

func (r *Recognizer) onResult(payload entities.ResultPayload) {
	r.mu.Lock()
	s := r.session
	if s != nil && payload.SessionID != "" && payload.SessionID != s.id {
		r.mu.Unlock()
		return
	}

	text := strings.TrimSpace(payload.Text)
	r.logger.Debug("result",
		zap.Int("len", len(text)),
		zap.Bool("isFinal", payload.IsFinal))

	var fire []func()
	if payload.IsFinal {
		sid := payload.SessionID
		if s != nil {
			sid = s.id
		}
		fire = append(fire, r.destroyLocked())
		if text != "" {
			if cb := r.events.OnFinalResult; cb != nil {
				fire = append(fire, func() { cb(text, sid) })
			}
		}
	} else if text != "" {
		if cb := r.events.OnInterimResult; cb != nil {
			sid := payload.SessionID
			fire = append(fire, func() { cb(text, sid) })
		}
	}
	r.mu.Unlock()
	runAll(fire)
}

func (r *Recognizer) onServerError(payload entities.ErrorPayload) {
	r.mu.Lock()
	s := r.session
	if s != nil && payload.SessionID != "" && payload.SessionID != s.id {
		r.mu.Unlock()
		return
	}

	sid := payload.SessionID
	if s != nil {
		sid = s.id
	}
	message := payload.Message
	if message == "" {
		message = MsgRecognitionFailed
	}
	r.logger.Debug("server error",
		zap.String("sessionID", sid),
		zap.String("message", message))

	fire := []func(){r.destroyLocked(), r.errorCallback(message, sid)}
	r.mu.Unlock()
	runAll(fire)
}

// capture data

func (r *Recognizer) onAudioData(chunk string, sid string) {
	r.mu.Lock()
	s := r.session
	if s == nil || s.id != sid {
		r.mu.Unlock()
		return
	}

	if !s.ready {
		if r.preReadyQueue <= 0 {
			// single-slot buffer: only the most recent pre-ready
			// chunk survives
			s.buffered = []string{chunk}
		} else {
			if len(s.buffered) >= r.preReadyQueue {
				s.buffered = s.buffered[1:]
			}
			s.buffered = append(s.buffered, chunk)
		}
		r.mu.Unlock()
		return
	}

	r.sendAudioLocked(s, chunk)

	var fire []func()
	if s.stopWaitTimer != nil {
		s.stopWaitTimer.Stop()
		s.stopWaitTimer = nil
		fire = r.finalizeLocked(s)
	}
	r.mu.Unlock()
	runAll(fire)
}

// internals

// sendAudioLocked forwards one chunk with the session's current frame
// status and advances the status past first.
func (r *Recognizer) sendAudioLocked(s *session, chunk string) {
	r.logger.Debug("audio frame",
		zap.Int("status", int(s.frameStatus)),
		zap.Int("len", len(chunk)))
	r.emitLocked(entities.EventAudio, entities.AudioFrame{
		SessionID: s.id,
		Status:    s.frameStatus,
		Audio:     chunk,
		Language:  r.language,
		Domain:    r.domain,
		Accent:    r.accent,
	})
	s.hasAudio = true
	s.frameStatus = entities.FrameStatusContinue
}

// finalizeLocked sends the terminal frame exactly once and releases
// the capture pipeline while the server finishes recognizing.
func (r *Recognizer) finalizeLocked(s *session) []func() {
	if s.finalSent {
		return nil
	}
	s.finalSent = true

	fire := []func(){r.setPhaseLocked(entities.PhaseStopping, s.id)}
	if s.sub != nil {
		s.sub.Remove()
		s.sub = nil
	}
	if err := r.recorder.Stop(); err != nil {
		r.logger.Debug("recorder stop failed", zap.Error(err))
	}
	r.logger.Debug("final frame", zap.String("sessionID", s.id))
	r.emitLocked(entities.EventAudio, entities.AudioFrame{
		SessionID: s.id,
		Status:    entities.FrameStatusLast,
	})
	return fire
}

// destroyLocked tears the session down: timers cancelled, capture
// unsubscribed and stopped, state cleared. Returns the idle phase
// callback for the caller to fire after unlocking.
func (r *Recognizer) destroyLocked() func() {
	s := r.session
	if s == nil {
		return nil
	}
	if s.sub != nil {
		s.sub.Remove()
		s.sub = nil
	}
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	if s.stopWaitTimer != nil {
		s.stopWaitTimer.Stop()
		s.stopWaitTimer = nil
	}
	if err := r.recorder.Stop(); err != nil {
		r.logger.Debug("recorder stop failed", zap.Error(err))
	}
	r.session = nil
	return r.setPhaseLocked(entities.PhaseIdle, "")
}

func (r *Recognizer) onReadyTimeout(sid string) {
	r.mu.Lock()
	s := r.session
	if s == nil || s.id != sid || s.phase != entities.PhaseConnecting {
		r.mu.Unlock()
		return
	}
	r.logger.Debug("ready timeout", zap.String("sessionID", sid))
	r.emitLocked(entities.EventStop, entities.StopPayload{SessionID: sid})
	fire := []func(){r.destroyLocked(), r.errorCallback(MsgServiceNotReady, sid)}
	r.mu.Unlock()
	runAll(fire)
}

func (r *Recognizer) onStopWaitTimeout(sid string) {
	r.mu.Lock()
	s := r.session
	if s == nil || s.id != sid || s.hasAudio {
		r.mu.Unlock()
		return
	}
	r.logger.Debug("no audio captured", zap.String("sessionID", sid))
	r.emitLocked(entities.EventStop, entities.StopPayload{SessionID: sid})
	fire := []func(){r.destroyLocked(), r.errorCallback(MsgRecordingTooShort, sid)}
	r.mu.Unlock()
	runAll(fire)
}

// setPhaseLocked records the phase on the live session and returns
// the matching callback invocation.
func (r *Recognizer) setPhaseLocked(phase entities.Phase, sid string) func() {
	if s := r.session; s != nil {
		s.phase = phase
	}
	cb := r.events.OnPhaseChange
	if cb == nil {
		return nil
	}
	return func() { cb(phase, sid) }
}

func (r *Recognizer) errorCallback(message, sid string) func() {
	cb := r.events.OnError
	if cb == nil {
		return nil
	}
	return func() { cb(message, sid) }
}

func (r *Recognizer) emitLocked(event string, payload interface{}) {
	if err := r.transport.Emit(event, payload); err != nil {
		r.logger.Debug("emit failed", zap.String("event", event), zap.Error(err))
	}
}

func (r *Recognizer) bindTransportLocked() {
	if r.bound {
		return
	}
	r.transport.On(entities.EventReady, func(raw []byte) {
		var p entities.ReadyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			r.logger.Debug("malformed ready payload", zap.Error(err))
			return
		}
		r.onReady(p)
	})
	r.transport.On(entities.EventResult, func(raw []byte) {
		var p entities.ResultPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			r.logger.Debug("malformed result payload", zap.Error(err))
			return
		}
		r.onResult(p)
	})
	r.transport.On(entities.EventError, func(raw []byte) {
		var p entities.ErrorPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			r.logger.Debug("malformed error payload", zap.Error(err))
			return
		}
		r.onServerError(p)
	})
	r.bound = true
}

func (r *Recognizer) unbindTransportLocked() {
	if !r.bound {
		return
	}
	r.transport.Off(entities.EventReady)
	r.transport.Off(entities.EventResult)
	r.transport.Off(entities.EventError)
	r.bound = false
}

func newSessionID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func runAll(fire []func()) {
	for _, f := range fire {
		if f != nil {
			f()
		}
	}
}
