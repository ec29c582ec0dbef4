package web

import "time"

// Config holds HTTP and WebSocket server parameters.
type Config struct {
	Addr         string        `yaml:"addr"`          // Listen address, e.g. ":8080"
	AllowOrigins string        `yaml:"allow_origins"` // CORS origins, comma separated
	BodyLimit    int           `yaml:"body_limit"`    // Max request body, bytes
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Per-connection rate limit on /ws/:id/video.
	StreamFPS   float64 `yaml:"stream_fps"`
	StreamBurst int     `yaml:"stream_burst"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		AllowOrigins: "*",
		BodyLimit:    16 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		StreamFPS:    10,
		StreamBurst:  5,
	}
}
