// Package main runs the chroma-key compositing daemon.
//
// The daemon opens capture devices on request, composites their frames over
// a configured background and exposes the sessions over HTTP. Recordings are
// encoded with GStreamer when the codecs are installed and uploaded to the
// configured endpoint, falling back to a local reference when that fails or
// when no endpoint is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/capture/gstcapture"
	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/config"
	"github.com/opd-ai/chromakey/gpu/gstgl"
	"github.com/opd-ai/chromakey/httpapi"
	"github.com/opd-ai/chromakey/metrics"
	"github.com/opd-ai/chromakey/recording"
	"github.com/opd-ai/chromakey/recording/gstenc"
	"github.com/opd-ai/chromakey/session"
	"github.com/opd-ai/chromakey/upload"
)

// warningHistory is the number of warnings kept per session.
const warningHistory = 32

type cliFlags struct {
	configPath string
	envFiles   []string
	addr       string
	strategy   string
	help       bool
}

func parseFlags(args []string) (*cliFlags, *pflag.FlagSet, error) {
	f := &cliFlags{}
	fs := pflag.NewFlagSet("chromakeyd", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML configuration file")
	fs.StringSliceVar(&f.envFiles, "env", nil, "Dotenv files to load (default .env when present)")
	fs.StringVar(&f.addr, "addr", "", "Listen address, overrides server.addr")
	fs.StringVar(&f.strategy, "strategy", "", "Compositor strategy: hardware, software or simple")
	fs.BoolVarP(&f.help, "help", "h", false, "Show help message")
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return f, fs, nil
}

func printUsage(fs *pflag.FlagSet) {
	fmt.Println("chromakeyd: real-time chroma-key compositing daemon")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Print(fs.FlagUsages())
	fmt.Println()
	fmt.Println("Every setting can also be given as a CHROMAKEY_* environment variable.")
}

func loadConfig(f *cliFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFiles...)
	if err != nil {
		return nil, err
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.strategy != "" {
		cfg.Strategy = f.strategy
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// buildRegistry registers MJPEG at the configured quality and every
// GStreamer codec found on the host.
func buildRegistry(cfg *config.Config) *recording.Registry {
	reg := recording.NewRegistry()
	quality := cfg.Recording.JPEGQuality
	reg.Register(recording.MediaTypeMJPEG, nil, func(recording.MediaType) (recording.Encoder, error) {
		return recording.NewMJPEGEncoder(quality), nil
	})
	installed := gstenc.Register(reg)
	logrus.WithFields(logrus.Fields{
		"function": "buildRegistry",
		"codecs":   installed,
		"default":  reg.Default(),
	}).Info("Recording encoders registered")
	return reg
}

// buildUploader always returns a client. Without an endpoint it keeps
// artifacts in the spool directory, or inline as data: URLs.
func buildUploader(cfg *config.Config, m *metrics.Metrics) *upload.Client {
	if cfg.Upload.Endpoint == "" {
		logrus.WithFields(logrus.Fields{
			"function":  "buildUploader",
			"spool_dir": cfg.Upload.SpoolDir,
		}).Info("No upload endpoint configured, recordings stay local")
	}
	client := upload.NewClient(upload.Config{
		Endpoint:         cfg.Upload.Endpoint,
		MaxAttempts:      cfg.Upload.MaxAttempts,
		BackoffUnit:      cfg.Upload.BackoffUnit,
		Timeout:          cfg.Upload.Timeout,
		MaxArtifactBytes: cfg.Recording.MaxArtifactBytes,
		SpoolDir:         cfg.Upload.SpoolDir,
	})
	client.OnAttempt(func(a upload.Attempt) {
		m.ObserveUploadAttempt(a.Status)
	})
	return client
}

func sessionDefaults(cfg *config.Config) session.Config {
	c := capture.PreferredConstraints(cfg.Capture.Class)
	c.Width.Ideal = cfg.Capture.Width
	c.Height.Ideal = cfg.Capture.Height
	c.FrameRate.Ideal = cfg.Capture.FrameRate
	return session.Config{
		Device:        cfg.Capture.Device,
		Class:         cfg.Capture.Class,
		Constraints:   &c,
		Strategy:      compositor.Strategy(cfg.Strategy),
		Settings:      cfg.Keying,
		Interval:      cfg.FrameInterval(),
		BackgroundRef: cfg.Background,
		OpenTimeout:   cfg.Capture.OpenTimeout,
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	warnings := httpapi.NewWarningLog(warningHistory)
	opener := gstcapture.Opener{}

	mgr := session.NewManager(session.Deps{
		Capture:    opener,
		Background: session.DefaultBackgroundLoader(opener),
		GPU:        gstgl.Open,
		Recording: recording.Options{
			Registry:  buildRegistry(cfg),
			Class:     cfg.Capture.Class,
			MediaType: cfg.Recording.MediaType,
			FrameRate: cfg.FrameRate,
		},
		Uploader:  buildUploader(cfg, m),
		OnWarning: warnings.Handle,
		Metrics:   m,
	})

	handler := httpapi.NewHandler(mgr, sessionDefaults(cfg), warnings, m)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"addr":     cfg.Server.Addr,
		}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			mgr.CloseAll()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logrus.WithField("function", "run").Info("Shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"error":    err.Error(),
		}).Warn("HTTP server did not shut down cleanly")
	}
	if err := mgr.CloseAll(); err != nil {
		return fmt.Errorf("closing sessions: %w", err)
	}
	return nil
}

func main() {
	flags, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if flags.help {
		printUsage(fs)
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("chromakeyd exited with error")
		os.Exit(1)
	}
}
