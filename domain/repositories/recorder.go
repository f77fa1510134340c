package repositories

// RecorderOptions configures an audio capture implementation.
type RecorderOptions struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	BufferSize    int
}

// Subscription is a handle to a registered data callback.
type Subscription interface {
	// Remove unsubscribes the callback. Safe to call more than once.
	Remove()
}

// AudioRecorder abstracts platform audio capture. Implementations
// deliver base64-encoded little-endian 16-bit PCM chunks to a single
// subscriber. Start and Stop must be idempotent.
type AudioRecorder interface {
	Init(options RecorderOptions) error
	Start() error
	Stop() error
	// OnData registers the data callback, replacing any previous one.
	OnData(callback func(base64Chunk string)) Subscription
}
