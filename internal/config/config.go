// Package config loads go-affect configuration from a YAML file with
// AFFECT_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-affect/pkg/capture"
	"github.com/teslashibe/go-affect/pkg/classifier"
	"github.com/teslashibe/go-affect/pkg/face"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/resolve"
	"github.com/teslashibe/go-affect/pkg/session"
	"github.com/teslashibe/go-affect/pkg/web"
)

// Log configures internal/log.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text" or "" to follow GO_ENV
}

// Config is the full service configuration.
type Config struct {
	Log        Log               `yaml:"log"`
	Server     web.Config        `yaml:"server"`
	Stream     face.Config       `yaml:"stream"` // Face detection for WebSocket and JSON frames
	Upload     face.Config       `yaml:"upload"` // Face detection for multipart uploads
	Classifier classifier.Config `yaml:"classifier"`
	Resolve    resolve.Config    `yaml:"resolve"`
	Session    session.Config    `yaml:"session"`
	Pipeline   pipeline.Config   `yaml:"pipeline"`
	Capture    capture.Config    `yaml:"capture"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:        Log{Level: "info"},
		Server:     web.DefaultConfig(),
		Stream:     face.DefaultConfig(),
		Upload:     face.UploadConfig(),
		Classifier: classifier.DefaultConfig(),
		Resolve:    resolve.DefaultConfig(),
		Session:    session.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
		Capture:    capture.DefaultConfig(),
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from AFFECT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("AFFECT_LOG_LEVEL", &c.Log.Level)
	str("AFFECT_LOG_FORMAT", &c.Log.Format)
	str("AFFECT_ADDR", &c.Server.Addr)
	str("AFFECT_ALLOW_ORIGINS", &c.Server.AllowOrigins)
	float("AFFECT_STREAM_FPS", &c.Server.StreamFPS)
	str("AFFECT_MODEL_PATH", &c.Classifier.ModelPath)
	dur("AFFECT_CLASSIFY_TIMEOUT", &c.Classifier.Timeout)
	dur("AFFECT_IDLE_TTL", &c.Session.IdleTTL)
	dur("AFFECT_CLOSED_TTL", &c.Session.ClosedTTL)

	for key, set := range map[string]func(string){
		"AFFECT_CASCADE_PATH": func(v string) { c.Stream.CascadePath, c.Upload.CascadePath = v, v },
		"AFFECT_FACE_BACKEND": func(v string) { c.Stream.Backend, c.Upload.Backend = v, v },
	} {
		if v, ok := lookup(key); ok && v != "" {
			set(v)
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.StreamFPS > 0, "server.stream_fps must be positive")
	check(c.Server.StreamBurst > 0, "server.stream_burst must be positive")

	for name, f := range map[string]face.Config{"stream": c.Stream, "upload": c.Upload} {
		check(f.Backend == "" || f.Backend == face.BackendHaar || f.Backend == face.BackendYuNet,
			"%s.backend must be %q or %q", name, face.BackendHaar, face.BackendYuNet)
		check(f.ScaleFactor > 1, "%s.scale_factor must be > 1", name)
		check(f.MinNeighbors >= 0, "%s.min_neighbors must be >= 0", name)
		check(f.MaxSize == 0 || f.MaxSize >= f.MinSize, "%s.max_size must be >= min_size", name)
		check(f.ScaleW >= 1 && f.ScaleH >= 1, "%s ROI scale must be >= 1", name)
	}

	check(c.Classifier.InputSize > 0, "classifier.input_size must be positive")
	check(c.Classifier.Timeout >= 0, "classifier.timeout must be >= 0")

	check(c.Resolve.Multiplier > 0, "resolve.multiplier must be positive")
	check(c.Resolve.Floor >= 0 && c.Resolve.Floor <= 1, "resolve.floor must be within [0, 1]")
	check(c.Resolve.Margin >= 1, "resolve.margin must be >= 1")

	check(c.Session.IdleTTL >= 0 && c.Session.ClosedTTL >= 0, "session TTLs must be >= 0")
	check(c.Session.SweepInterval > 0, "session.sweep_interval must be positive")

	check(c.Pipeline.Window > 0, "pipeline.window must be positive")
	check(c.Pipeline.MinVotes > 0 && c.Pipeline.MinVotes <= c.Pipeline.Window,
		"pipeline.min_votes must be within [1, window]")
	check(c.Pipeline.FailureConfidence >= 0 && c.Pipeline.FailureConfidence <= 1,
		"pipeline.failure_confidence must be within [0, 1]")
	check(c.Pipeline.MaxPixels >= 0, "pipeline.max_pixels must be >= 0")

	check(c.Capture.FPS > 0, "capture.fps must be positive")
	check(c.Capture.JPEGQuality > 0 && c.Capture.JPEGQuality <= 100, "capture.jpeg_quality must be within [1, 100]")

	return errors.Join(errs...)
}
