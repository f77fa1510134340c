// Package capture provides AudioRecorder implementations. The WAV
// file recorder replays a recorded file at real-time pace, which is
// what demos and tests use in place of platform microphone capture.
package capture

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/domain/repositories"
)

const defaultBufferSize = 4096

// WAVFileRecorder emits the PCM payload of a 16-bit mono WAV file as
// base64 chunks, one buffer's worth per tick, matching the cadence of
// a live microphone at the same sample rate.
type WAVFileRecorder struct {
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	opts     repositories.RecorderOptions
	callback func(string)
	gen      int
	stop     chan struct{}
	running  bool
}

func NewWAVFileRecorder(path string, logger *zap.Logger) *WAVFileRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WAVFileRecorder{path: path, logger: logger}
}

func (r *WAVFileRecorder) Init(opts repositories.RecorderOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	r.opts = opts
	return nil
}

func (r *WAVFileRecorder) OnData(callback func(base64Chunk string)) repositories.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = callback
	r.gen++
	return &subscription{recorder: r, gen: r.gen}
}

func (r *WAVFileRecorder) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	opts := r.opts
	r.mu.Unlock()

	pcm, err := readWAV(r.path, opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.running = true
	r.stop = make(chan struct{})
	stop := r.stop
	r.mu.Unlock()

	go r.stream(pcm, opts, stop)
	return nil
}

func (r *WAVFileRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false
	close(r.stop)
	return nil
}

func (r *WAVFileRecorder) stream(pcm []byte, opts repositories.RecorderOptions, stop chan struct{}) {
	chunkBytes := opts.BufferSize * opts.Channels * opts.BitsPerSample / 8
	interval := time.Duration(opts.BufferSize) * time.Second / time.Duration(opts.SampleRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		end := offset + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := base64.StdEncoding.EncodeToString(pcm[offset:end])
		offset = end

		r.mu.Lock()
		callback := r.callback
		r.mu.Unlock()
		if callback != nil {
			callback(chunk)
		}
	}
	r.logger.Debug("wav file drained", zap.String("path", r.path))
}

type subscription struct {
	recorder *WAVFileRecorder
	gen      int
}

// Remove unsubscribes, unless a newer callback already replaced this
// one. Safe to call repeatedly.
func (s *subscription) Remove() {
	s.recorder.mu.Lock()
	defer s.recorder.mu.Unlock()
	if s.recorder.gen == s.gen {
		s.recorder.callback = nil
	}
}

// readWAV parses a RIFF/WAVE file and returns its PCM payload after
// checking it against the requested capture options.
func readWAV(path string, opts repositories.RecorderOptions) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav file: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s is not a RIFF/WAVE file", path)
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
		haveFmt       bool
	)

	for offset := 12; offset+8 <= len(data); {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("malformed fmt chunk in %s", path)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("%s: only uncompressed PCM is supported (format %d)", path, audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// chunks are word-aligned
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}

	if !haveFmt || pcm == nil {
		return nil, fmt.Errorf("%s is missing fmt or data chunk", path)
	}
	if bitsPerSample != opts.BitsPerSample {
		return nil, fmt.Errorf("%s has %d-bit samples, capture wants %d", path, bitsPerSample, opts.BitsPerSample)
	}
	if channels != opts.Channels {
		return nil, fmt.Errorf("%s has %d channels, capture wants %d", path, channels, opts.Channels)
	}
	if sampleRate != opts.SampleRate {
		return nil, fmt.Errorf("%s is sampled at %d Hz, capture wants %d", path, sampleRate, opts.SampleRate)
	}
	return pcm, nil
}
