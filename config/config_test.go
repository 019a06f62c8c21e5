package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chromakey/keying"
	"github.com/opd-ai/chromakey/platform"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// noDotEnv points Load at an empty env file so a stray .env in the working
// directory cannot leak into tests.
func noDotEnv(t *testing.T) string {
	return writeFile(t, "empty.env", "")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second/30, cfg.FrameInterval())
	assert.Equal(t, keying.DefaultSettings(), cfg.Keying)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "chromakey.yaml", `
strategy: software
frame_rate: 24
capture:
  device: file:///tmp/clip.mp4
  class: ios
  open_timeout: 3s
keying:
  threshold: 0.55
  smoothness: 0.08
  spill: 0.2
  key_color: {r: 10, g: 220, b: 30}
upload:
  endpoint: https://upload.example/api
  backoff_unit: 500ms
log:
  format: json
`)
	cfg, err := Load(path, noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "software", cfg.Strategy)
	assert.Equal(t, 24, cfg.FrameRate)
	assert.Equal(t, "file:///tmp/clip.mp4", cfg.Capture.Device)
	assert.Equal(t, platform.IOS, cfg.Capture.Class)
	assert.Equal(t, 3*time.Second, cfg.Capture.OpenTimeout)
	assert.InDelta(t, 0.55, cfg.Keying.Threshold, 1e-9)
	assert.InDelta(t, 220, cfg.Keying.KeyColor.G, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Upload.BackoffUnit)
	assert.Equal(t, 3, cfg.Upload.MaxAttempts)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_UnknownYAMLFieldFails(t *testing.T) {
	path := writeFile(t, "bad.yaml", "stratgey: software\n")
	_, err := Load(path, noDotEnv(t))
	assert.Error(t, err)
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	cfg, err := Load(path, noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid values applied",
			env: map[string]string{
				"CHROMAKEY_STRATEGY":        "Simple",
				"CHROMAKEY_FRAME_RATE":      "60",
				"CHROMAKEY_CAPTURE_CLASS":   "android",
				"CHROMAKEY_UPLOAD_ATTEMPTS": "5",
				"CHROMAKEY_UPLOAD_TIMEOUT":  "15s",
				"CHROMAKEY_THRESHOLD":       "0.3",
				"CHROMAKEY_ADDR":            "127.0.0.1:9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "simple", cfg.Strategy)
				assert.Equal(t, 60, cfg.FrameRate)
				assert.Equal(t, platform.Android, cfg.Capture.Class)
				assert.Equal(t, 5, cfg.Upload.MaxAttempts)
				assert.Equal(t, 15*time.Second, cfg.Upload.Timeout)
				assert.InDelta(t, 0.3, cfg.Keying.Threshold, 1e-9)
				assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
			},
		},
		{
			name: "invalid values keep defaults",
			env: map[string]string{
				"CHROMAKEY_STRATEGY":        "quantum",
				"CHROMAKEY_FRAME_RATE":      "fast",
				"CHROMAKEY_UPLOAD_ATTEMPTS": "50",
				"CHROMAKEY_UPLOAD_BACKOFF":  "1ns",
				"CHROMAKEY_CAPTURE_CLASS":   "toaster",
				"CHROMAKEY_SPILL":           "lots",
			},
			check: func(t *testing.T, cfg *Config) {
				def := Default()
				assert.Equal(t, def.Strategy, cfg.Strategy)
				assert.Equal(t, def.FrameRate, cfg.FrameRate)
				assert.Equal(t, def.Upload.MaxAttempts, cfg.Upload.MaxAttempts)
				assert.Equal(t, def.Upload.BackoffUnit, cfg.Upload.BackoffUnit)
				assert.Equal(t, def.Capture.Class, cfg.Capture.Class)
				assert.Equal(t, def.Keying.Spill, cfg.Keying.Spill)
			},
		},
		{
			name: "keying clamped",
			env: map[string]string{
				"CHROMAKEY_THRESHOLD":  "4",
				"CHROMAKEY_SMOOTHNESS": "-2",
				"CHROMAKEY_SPILL":      "NaN",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, keying.MaxThreshold, cfg.Keying.Threshold)
				assert.Equal(t, keying.MinSmoothness, cfg.Keying.Smoothness)
				assert.Equal(t, keying.DefaultSettings().Spill, cfg.Keying.Spill)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("", noDotEnv(t))
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	env := writeFile(t, "test.env", "CHROMAKEY_BACKGROUND=/srv/beach.webp\nCHROMAKEY_SPOOL_DIR=/var/spool/ck\n")
	t.Cleanup(func() {
		os.Unsetenv("CHROMAKEY_BACKGROUND")
		os.Unsetenv("CHROMAKEY_SPOOL_DIR")
	})

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "/srv/beach.webp", cfg.Background)
	assert.Equal(t, "/var/spool/ck", cfg.Upload.SpoolDir)
}

func TestLoad_MissingExplicitEnvFileFails(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.Strategy = "gpu" }},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }},
		{"bad capture size", func(c *Config) { c.Capture.Width = 0 }},
		{"tiny artifact limit", func(c *Config) { c.Recording.MaxArtifactBytes = 10 }},
		{"no attempts", func(c *Config) { c.Upload.MaxAttempts = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
