// Package config reads the bridge configuration from the
// environment. main calls godotenv.Load first so a local .env file
// works the same as real environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full configuration surface of the bridge.
type Config struct {
	Port string

	// Recognizer credentials. Their absence is reported per-session
	// at start time, not at boot, so the rest of the service stays up.
	AppID     string
	APIKey    string
	APISecret string

	// Recognizer endpoint.
	Host string
	Path string

	// Recognition defaults for first frames that omit them.
	Language string
	Domain   string
	Accent   string

	Debug bool
}

// Defaults mirrored from the recognizer's public dictation service.
const (
	DefaultPort     = "8080"
	DefaultHost     = "iat-api.xfyun.cn"
	DefaultPath     = "/v2/iat"
	DefaultLanguage = "zh_cn"
	DefaultDomain   = "iat"
	DefaultAccent   = "mandarin"

	DefaultSampleRate      = 16000
	DefaultReadyTimeout    = 5 * time.Second
	DefaultStopWaitTimeout = 1500 * time.Millisecond
)

// Load reads the configuration from the environment, falling back to
// defaults for everything but credentials.
func Load() Config {
	return Config{
		Port:      envOr("PORT", DefaultPort),
		AppID:     os.Getenv("IFLYTEK_APP_ID"),
		APIKey:    os.Getenv("IFLYTEK_API_KEY"),
		APISecret: os.Getenv("IFLYTEK_API_SECRET"),
		Host:      envOr("IFLYTEK_HOST", DefaultHost),
		Path:      envOr("IFLYTEK_PATH", DefaultPath),
		Language:  envOr("IFLYTEK_LANGUAGE", DefaultLanguage),
		Domain:    envOr("IFLYTEK_DOMAIN", DefaultDomain),
		Accent:    envOr("IFLYTEK_ACCENT", DefaultAccent),
		Debug:     envBool("IATBRIDGE_DEBUG"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
