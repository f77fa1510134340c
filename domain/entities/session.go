package entities

// Phase represents the client-side lifecycle of a recognition session
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseRecording  Phase = "recording"
	PhaseStopping   Phase = "stopping"
)

// FrameStatus tags an audio frame within a session's stream.
// The first frame carries the recognition parameters, the terminal
// frame carries no audio at all.
type FrameStatus int

const (
	FrameStatusFirst    FrameStatus = 0
	FrameStatusContinue FrameStatus = 1
	FrameStatusLast     FrameStatus = 2
)

// Valid reports whether s is one of the three wire values.
func (s FrameStatus) Valid() bool {
	return s == FrameStatusFirst || s == FrameStatusContinue || s == FrameStatusLast
}
