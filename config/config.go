package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/keying"
	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/platform"
)

// Bounds for numeric settings.
const (
	MinFrameRate    = 1
	MaxFrameRate    = 120
	MinCaptureSide  = 16
	MinUploadTries  = 1
	MaxUploadTries  = 10
	MinTimeout      = 100 * time.Millisecond
	MaxTimeout      = 10 * time.Minute
	MinBackoffUnit  = 10 * time.Millisecond
	MaxBackoffUnit  = time.Minute
	MinArtifactSize = 1024
)

// Config is the full daemon configuration.
type Config struct {
	Strategy   string          `yaml:"strategy"`
	FrameRate  int             `yaml:"frame_rate"`
	Capture    CaptureConfig   `yaml:"capture"`
	Keying     keying.Settings `yaml:"keying"`
	Background string          `yaml:"background"`
	Recording  RecordingConfig `yaml:"recording"`
	Upload     UploadConfig    `yaml:"upload"`
	Server     ServerConfig    `yaml:"server"`
	Log        LogConfig       `yaml:"log"`
}

// CaptureConfig selects the camera and its preferred mode.
type CaptureConfig struct {
	Device      string               `yaml:"device"`
	Class       platform.DeviceClass `yaml:"class"`
	Width       int                  `yaml:"width"`
	Height      int                  `yaml:"height"`
	FrameRate   int                  `yaml:"fps"`
	OpenTimeout time.Duration        `yaml:"open_timeout"`
}

// RecordingConfig controls encoding.
type RecordingConfig struct {
	MediaType        string `yaml:"media_type"`
	MaxArtifactBytes int    `yaml:"max_artifact_bytes"`
	JPEGQuality      int    `yaml:"jpeg_quality"`
}

// UploadConfig controls artifact persistence.
type UploadConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffUnit time.Duration `yaml:"backoff_unit"`
	Timeout     time.Duration `yaml:"timeout"`
	SpoolDir    string        `yaml:"spool_dir"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
//
// Default Value Rationale:
//   - Strategy hardware: the shader path falls back to software on its own
//   - FrameRate 30: matches the preferred capture mode
//   - Upload attempts 3 with a 1s unit: waits 1s then 2s before giving up
func Default() *Config {
	return &Config{
		Strategy:  string(compositor.StrategyHardware),
		FrameRate: 30,
		Capture: CaptureConfig{
			Device:      "/dev/video0",
			Class:       platform.Desktop,
			Width:       1280,
			Height:      720,
			FrameRate:   30,
			OpenTimeout: 10 * time.Second,
		},
		Keying: keying.DefaultSettings(),
		Recording: RecordingConfig{
			MaxArtifactBytes: limits.MaxArtifactSize,
			JPEGQuality:      80,
		},
		Upload: UploadConfig{
			MaxAttempts: 3,
			BackoffUnit: time.Second,
			Timeout:     60 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load resolves configuration from path (optional), the given .env files
// (".env" when none are named) and the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logConfigurationInfo(cfg)
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes as io.EOF and leaves the defaults alone.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(files []string) error {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"function": "config.Load",
				"file":     f,
			}).Debug("Loaded environment file")
			continue
		}
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("failed to load env file %s: %w", f, err)
	}
	return nil
}

// Validate rejects values that cannot be repaired and clamps keying
// settings.
func (c *Config) Validate() error {
	st, err := compositor.ParseStrategy(c.Strategy)
	if err != nil {
		return fmt.Errorf("strategy %q: %w", c.Strategy, err)
	}
	c.Strategy = string(st)
	if c.FrameRate < MinFrameRate || c.FrameRate > MaxFrameRate {
		return fmt.Errorf("frame_rate %d outside [%d, %d]", c.FrameRate, MinFrameRate, MaxFrameRate)
	}
	if err := limits.ValidateFrameDimensions(c.Capture.Width, c.Capture.Height); err != nil {
		return fmt.Errorf("capture size: %w", err)
	}
	if c.Recording.MaxArtifactBytes < MinArtifactSize {
		return fmt.Errorf("recording.max_artifact_bytes %d below %d", c.Recording.MaxArtifactBytes, MinArtifactSize)
	}
	if c.Upload.MaxAttempts < MinUploadTries || c.Upload.MaxAttempts > MaxUploadTries {
		return fmt.Errorf("upload.max_attempts %d outside [%d, %d]", c.Upload.MaxAttempts, MinUploadTries, MaxUploadTries)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if !c.Keying.IsClamped() {
		clamped := c.Keying.Clamp()
		logrus.WithFields(logrus.Fields{
			"function": "Config.Validate",
			"given":    c.Keying.String(),
			"clamped":  clamped.String(),
		}).Warn("Keying settings out of range, clamped")
		c.Keying = clamped
	}
	return nil
}

// FrameInterval is the scheduler period for FrameRate.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func logConfigurationInfo(c *Config) {
	logrus.WithFields(logrus.Fields{
		"function":      "config.Load",
		"strategy":      c.Strategy,
		"frame_rate":    c.FrameRate,
		"device":        c.Capture.Device,
		"class":         c.Capture.Class.String(),
		"keying":        c.Keying.String(),
		"upload":        c.Upload.Endpoint != "",
		"upload_tries":  c.Upload.MaxAttempts,
		"server_addr":   c.Server.Addr,
		"log_format":    c.Log.Format,
		"artifact_max":  c.Recording.MaxArtifactBytes,
		"open_timeout":  c.Capture.OpenTimeout,
		"background":    c.Background,
		"media_type":    c.Recording.MediaType,
		"spool_enabled": c.Upload.SpoolDir != "",
	}).Info("Configuration loaded")
}
