package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/platform"
)

const envPrefix = "CHROMAKEY_"

// applyEnvironmentOverrides updates cfg from CHROMAKEY_* variables.
func applyEnvironmentOverrides(cfg *Config) {
	if v, ok := lookup("STRATEGY"); ok {
		if st, err := compositor.ParseStrategy(v); err != nil {
			warnInvalid("STRATEGY", v, err, cfg.Strategy)
		} else {
			cfg.Strategy = string(st)
		}
	}
	parseIntSetting("FRAME_RATE", &cfg.FrameRate, MinFrameRate, MaxFrameRate)

	parseStringSetting("CAPTURE_DEVICE", &cfg.Capture.Device)
	if v, ok := lookup("CAPTURE_CLASS"); ok {
		if class, err := platform.Parse(v); err != nil {
			warnInvalid("CAPTURE_CLASS", v, err, cfg.Capture.Class.String())
		} else {
			cfg.Capture.Class = class
		}
	}
	parseIntSetting("CAPTURE_WIDTH", &cfg.Capture.Width, MinCaptureSide, limits.MaxFrameDimension)
	parseIntSetting("CAPTURE_HEIGHT", &cfg.Capture.Height, MinCaptureSide, limits.MaxFrameDimension)
	parseIntSetting("CAPTURE_FPS", &cfg.Capture.FrameRate, MinFrameRate, MaxFrameRate)
	parseDurationSetting("CAPTURE_OPEN_TIMEOUT", &cfg.Capture.OpenTimeout, MinTimeout, MaxTimeout)

	// Keying values are clamped later, so any float is accepted here.
	parseFloatSetting("THRESHOLD", &cfg.Keying.Threshold)
	parseFloatSetting("SMOOTHNESS", &cfg.Keying.Smoothness)
	parseFloatSetting("SPILL", &cfg.Keying.Spill)

	parseStringSetting("BACKGROUND", &cfg.Background)
	parseStringSetting("RECORDING_MEDIA_TYPE", &cfg.Recording.MediaType)
	parseIntSetting("MAX_ARTIFACT_BYTES", &cfg.Recording.MaxArtifactBytes, MinArtifactSize, 1<<31-1)

	parseStringSetting("UPLOAD_ENDPOINT", &cfg.Upload.Endpoint)
	parseIntSetting("UPLOAD_ATTEMPTS", &cfg.Upload.MaxAttempts, MinUploadTries, MaxUploadTries)
	parseDurationSetting("UPLOAD_BACKOFF", &cfg.Upload.BackoffUnit, MinBackoffUnit, MaxBackoffUnit)
	parseDurationSetting("UPLOAD_TIMEOUT", &cfg.Upload.Timeout, MinTimeout, MaxTimeout)
	parseStringSetting("SPOOL_DIR", &cfg.Upload.SpoolDir)

	parseStringSetting("ADDR", &cfg.Server.Addr)
	parseStringSetting("LOG_LEVEL", &cfg.Log.Level)
	parseStringSetting("LOG_FORMAT", &cfg.Log.Format)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func warnInvalid(name, value string, err error, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "applyEnvironmentOverrides",
		"env_var":     envPrefix + name,
		"value":       value,
		"error":       err.Error(),
		"using_value": using,
	}).Warn("Failed to parse environment variable, using previous value")
}

func warnBounds(name string, value, lo, hi, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "applyEnvironmentOverrides",
		"env_var":     envPrefix + name,
		"value":       value,
		"min":         lo,
		"max":         hi,
		"using_value": using,
	}).Warn("Environment variable out of bounds, using previous value")
}

func parseStringSetting(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func parseIntSetting(name string, dst *int, lo, hi int) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnInvalid(name, v, err, *dst)
		return
	}
	if n < lo || n > hi {
		warnBounds(name, n, lo, hi, *dst)
		return
	}
	*dst = n
}

func parseFloatSetting(name string, dst *float64) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnInvalid(name, v, err, *dst)
		return
	}
	*dst = f
}

func parseDurationSetting(name string, dst *time.Duration, lo, hi time.Duration) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnInvalid(name, v, err, *dst)
		return
	}
	if d < lo || d > hi {
		warnBounds(name, d, lo, hi, *dst)
		return
	}
	*dst = d
}
