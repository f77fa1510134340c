// iatclient streams a 16 kHz mono 16-bit WAV file through a running
// bridge and prints the transcripts, exercising the same client path
// a real push-to-talk UI would use.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/adapters/capture"
	"github.com/sa2kit/iatbridge/client"
	"github.com/sa2kit/iatbridge/domain/entities"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:8080/ws", "bridge websocket URL")
		wavPath   = flag.String("wav", "", "16 kHz mono 16-bit PCM WAV file to stream")
		language  = flag.String("language", "", "recognition language tag")
		holdFor   = flag.Duration("hold", 5*time.Second, "how long to keep the session open")
		debug     = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	if *wavPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	transport, err := client.DialTransport(*serverURL, logger)
	if err != nil {
		log.Fatalf("connect to bridge: %v", err)
	}
	defer transport.Close()

	recorder := capture.NewWAVFileRecorder(*wavPath, logger)

	done := make(chan struct{})
	recognizer := client.NewRecognizer(client.Config{
		Transport: transport,
		Recorder:  recorder,
		Language:  *language,
		Logger:    logger,
	}).On(client.Events{
		OnPhaseChange: func(phase entities.Phase, sessionID string) {
			fmt.Printf("[%s] %s\n", phase, sessionID)
		},
		OnInterimResult: func(text, sessionID string) {
			fmt.Printf("... %s\n", text)
		},
		OnFinalResult: func(text, sessionID string) {
			fmt.Printf("=== %s\n", text)
			close(done)
		},
		OnError: func(message, sessionID string) {
			fmt.Fprintf(os.Stderr, "error: %s\n", message)
			close(done)
		},
	})
	defer recognizer.Dispose()

	if !recognizer.Start() {
		log.Fatal("could not start a session")
	}

	// Hold the button for the requested duration, then release.
	select {
	case <-time.After(*holdFor):
	case <-done:
		return
	}
	recognizer.Stop()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for a final result")
	}
}
