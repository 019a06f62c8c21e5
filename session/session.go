package session

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/opd-ai/chromakey/background"
	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/gpu"
	"github.com/opd-ai/chromakey/keying"
	"github.com/opd-ai/chromakey/metrics"
	"github.com/opd-ai/chromakey/platform"
	"github.com/opd-ai/chromakey/recording"
	"github.com/opd-ai/chromakey/scheduler"
	"github.com/opd-ai/chromakey/upload"
)

// Presenter receives every composited frame in capture order. It runs on
// the scheduler goroutine and must not retain res.Mask past the call.
type Presenter interface {
	Present(res *compositor.Result)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(res *compositor.Result)

// Present implements Presenter.
func (f PresenterFunc) Present(res *compositor.Result) { f(res) }

// Warning is a non-fatal condition reported to the host.
type Warning struct {
	Session string
	Message string
	Err     error
	Time    time.Time
}

// WarningHandler receives warnings.
type WarningHandler func(w Warning)

// BackgroundLoader resolves a background reference (file path or URI).
type BackgroundLoader func(ctx context.Context, ref string) (background.Source, error)

// Config describes one session.
type Config struct {
	// Device is a capture device path or a media URI.
	Device string
	Class  platform.DeviceClass
	// Constraints overrides the preferred constraints for Class.
	Constraints *capture.Constraints

	Strategy compositor.Strategy
	Settings keying.Settings
	Interval time.Duration

	// Background is used as is when set; otherwise BackgroundRef is loaded.
	// With neither, keyed pixels become black.
	Background    background.Source
	BackgroundRef string

	OpenTimeout time.Duration
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Capture    capture.Opener
	Background BackgroundLoader
	GPU        gpu.Opener
	Recording  recording.Options
	// Uploader persists finished recordings. Nil keeps them locally as data:
	// URLs under the default artifact size limit.
	Uploader  *upload.Client
	Presenter Presenter
	OnWarning WarningHandler
	Clock     scheduler.Clock
	Metrics   *metrics.Metrics
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string          `json:"id"`
	Device    string          `json:"device"`
	State     string          `json:"state"`
	Strategy  string          `json:"strategy"`
	Requested string          `json:"requested_strategy"`
	Settings  keying.Settings `json:"settings"`
	Recording bool            `json:"recording"`
	MediaType string          `json:"media_type,omitempty"`
	Frames    uint64          `json:"frames"`
	Errors    uint64          `json:"errors"`
	Skipped   uint64          `json:"skipped"`
	Overruns  uint64          `json:"overruns"`
	// CaptureDropped counts frames the capture source replaced before a
	// tick read them.
	CaptureDropped uint64 `json:"capture_dropped"`
}

// RecordingOutcome is the result of StopRecording.
type RecordingOutcome struct {
	Artifact *recording.Artifact
	Upload   *upload.Result
}

// Session is one running composite pipeline.
type Session struct {
	id        string
	device    string
	requested compositor.Strategy
	deps      Deps

	source   capture.FrameSource
	bg       background.Source
	comp     compositor.Compositor
	settings *keying.Store
	sched    *scheduler.Scheduler
	recorder *recording.Recorder

	alive     atomic.Bool
	closeOnce sync.Once
	onClose   func()

	lastSeq    atomic.Uint64
	capDropped atomic.Uint64
	lastFrame  atomic.Pointer[compositor.Result]
	recWarn    *rate.Limiter
}

// Open acquires the capture device and background concurrently, then builds
// the compositor and scheduler. The session starts Idle.
func Open(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if deps.Capture == nil {
		return nil, ErrNoCaptureOpener
	}
	if cfg.Strategy == "" {
		cfg.Strategy = compositor.StrategyHardware
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = capture.DefaultOpenTimeout
	}
	if deps.Uploader == nil {
		deps.Uploader = upload.NewClient(upload.Config{})
	}

	s := &Session{
		id:        uuid.NewString(),
		device:    cfg.Device,
		requested: cfg.Strategy,
		deps:      deps,
		settings:  keying.NewStore(cfg.Settings),
		recorder:  recording.NewRecorder(deps.Recording),
		recWarn:   rate.NewLimiter(rate.Every(5*time.Second), 1),
	}

	comp, err := compositor.New(cfg.Strategy, compositor.Options{
		Opener:     deps.GPU,
		OnWarning:  func(msg string, err error) { s.warn(msg, err) },
		OnFallback: func(error) { deps.Metrics.IncFallbacks() },
	})
	if err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.OpenTimeout)
	defer cancel()

	var (
		src capture.FrameSource
		bg  background.Source
	)
	g, gctx := errgroup.WithContext(openCtx)
	g.Go(func() error {
		preferred := capture.PreferredConstraints(cfg.Class)
		if cfg.Constraints != nil {
			preferred = *cfg.Constraints
		}
		var err error
		src, err = capture.Open(gctx, deps.Capture, preferred.WithDevice(cfg.Device))
		return err
	})
	g.Go(func() error {
		var err error
		bg, err = s.loadBackground(gctx, cfg)
		return err
	})
	if err := g.Wait(); err != nil {
		if src != nil {
			src.Close()
		}
		if bg != nil {
			bg.Close()
		}
		comp.Close()
		return nil, err
	}

	s.source, s.bg, s.comp = src, bg, comp
	s.sched = scheduler.New(s.tick, scheduler.Options{
		Interval: cfg.Interval,
		Clock:    deps.Clock,
		Name:     s.id,
		OnTick:   s.observeTick,
	})
	s.alive.Store(true)

	logrus.WithFields(logrus.Fields{
		"function": "session.Open",
		"session":  s.id,
		"device":   cfg.Device,
		"strategy": comp.Strategy(),
	}).Info("Session opened")
	return s, nil
}

func (s *Session) loadBackground(ctx context.Context, cfg Config) (background.Source, error) {
	switch {
	case cfg.Background != nil:
		return cfg.Background, nil
	case cfg.BackgroundRef == "":
		solid, err := background.Solid(1, 1, color.RGBA{A: 255})
		if err != nil {
			return nil, err
		}
		return solid, nil
	case s.deps.Background != nil:
		return s.deps.Background(ctx, cfg.BackgroundRef)
	default:
		return DefaultBackgroundLoader(s.deps.Capture)(ctx, cfg.BackgroundRef)
	}
}

// DefaultBackgroundLoader decodes image files and plays video files and URIs
// through opener.
func DefaultBackgroundLoader(opener capture.Opener) BackgroundLoader {
	return func(ctx context.Context, ref string) (background.Source, error) {
		if strings.Contains(ref, "://") || background.IsVideoPath(ref) {
			v, err := background.OpenVideo(ctx, opener, ref)
			if err != nil {
				return nil, err
			}
			return v, nil
		}
		return background.Load(ref)
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Device returns the capture device this session holds.
func (s *Session) Device() string { return s.device }

func (s *Session) warn(msg string, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "Session.warn",
		"session":  s.id,
		"error":    fmt.Sprint(err),
	}).Warn(msg)
	if s.deps.OnWarning != nil {
		s.deps.OnWarning(Warning{Session: s.id, Message: msg, Err: err, Time: time.Now()})
	}
}

// tick composites one frame. Settings are snapshotted before any pixel work.
func (s *Session) tick(ctx context.Context) error {
	if !s.alive.Load() {
		return scheduler.ErrSkipTick
	}
	settings := s.settings.Snapshot()
	s.countCaptureDrops()

	fg, err := s.source.CurrentFrame()
	if errors.Is(err, capture.ErrNoFrame) {
		s.deps.Metrics.IncSkipped()
		return scheduler.ErrSkipTick
	}
	if err != nil {
		return err
	}
	if last := s.lastSeq.Load(); fg.Seq != 0 && fg.Seq <= last {
		s.deps.Metrics.IncSkipped()
		return scheduler.ErrSkipTick
	}

	bg, err := s.bg.Frame(fg.Width, fg.Height)
	if errors.Is(err, capture.ErrNoFrame) {
		s.deps.Metrics.IncSkipped()
		return scheduler.ErrSkipTick
	}
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}

	res, err := s.comp.Composite(fg, bg, settings)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lastSeq.Store(fg.Seq)
	s.lastFrame.Store(res)

	if s.deps.Presenter != nil {
		s.deps.Presenter.Present(res)
	}

	if s.recorder.Recording() {
		if err := s.recorder.WriteFrame(res.Frame); err != nil && s.recWarn.Allow() {
			s.warn("recording frame rejected", err)
		}
	}
	return nil
}

// countCaptureDrops forwards the growth of the source's drop counter to
// metrics. Only the tick goroutine calls it.
func (s *Session) countCaptureDrops() {
	dc, ok := s.source.(capture.DropCounter)
	if !ok {
		return
	}
	n := dc.Dropped()
	if prev := s.capDropped.Swap(n); n > prev {
		s.deps.Metrics.AddDropped("capture", n-prev)
	}
}

func (s *Session) observeTick(d time.Duration, err error) {
	if errors.Is(err, scheduler.ErrSkipTick) {
		return
	}
	s.deps.Metrics.ObserveTick(string(s.ActiveStrategy()), d, err)
}

// Start begins compositing.
func (s *Session) Start() error {
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	return s.sched.Start()
}

// Pause freezes ticking without releasing anything.
func (s *Session) Pause() error {
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	return s.sched.Pause()
}

// Resume continues after Pause.
func (s *Session) Resume() error {
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	return s.sched.Resume()
}

// Stop cancels the pending tick, waits for the in-flight one and releases
// the capture device, background and compositor. An active recording is
// abandoned. Calls after the first are no-ops.
func (s *Session) Stop() error {
	var err error
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		s.sched.Stop()

		if s.recorder.Recording() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, rerr := s.recorder.Stop(ctx); rerr != nil {
				s.warn("recording abandoned on stop", rerr)
			}
			cancel()
		}

		err = errors.Join(s.source.Close(), s.bg.Close(), s.comp.Close())
		if s.onClose != nil {
			s.onClose()
		}

		logrus.WithFields(logrus.Fields{
			"function": "Session.Stop",
			"session":  s.id,
			"device":   s.device,
			"stats":    fmt.Sprintf("%+v", s.sched.Stats()),
		}).Info("Session stopped")
	})
	return err
}

// Close is Stop.
func (s *Session) Close() error {
	return s.Stop()
}

// Settings returns the current settings.
func (s *Session) Settings() keying.Settings {
	return s.settings.Snapshot()
}

// UpdateSettings replaces the settings. The stored value is clamped and
// takes effect at the next tick.
func (s *Session) UpdateSettings(st keying.Settings) keying.Settings {
	return s.settings.Set(st)
}

// UpdateSettingsFunc applies fn to the current settings atomically, so
// concurrent partial updates do not overwrite each other. fn may run more
// than once and must not have side effects.
func (s *Session) UpdateSettingsFunc(fn func(keying.Settings) keying.Settings) keying.Settings {
	return s.settings.Update(fn)
}

// Calibrate analyzes the current frame and applies the result.
func (s *Session) Calibrate() (keying.Settings, error) {
	if !s.alive.Load() {
		return keying.Settings{}, ErrSessionClosed
	}
	fg, err := s.source.CurrentFrame()
	if err != nil {
		return keying.Settings{}, err
	}
	st := s.settings.Set(keying.Analyze(fg))

	logrus.WithFields(logrus.Fields{
		"function": "Session.Calibrate",
		"session":  s.id,
		"settings": st.String(),
	}).Info("Keying settings calibrated")
	return st, nil
}

// ActiveStrategy reports the compositor actually in use, which differs from
// the requested one after a hardware fallback.
func (s *Session) ActiveStrategy() compositor.Strategy {
	return s.comp.Strategy()
}

// LastResult returns the most recent composite, or nil.
func (s *Session) LastResult() *compositor.Result {
	return s.lastFrame.Load()
}

// State returns the scheduler state.
func (s *Session) State() scheduler.State {
	return s.sched.State()
}

// Status summarizes the session.
func (s *Session) Status() Status {
	stats := s.sched.Stats()
	return Status{
		ID:        s.id,
		Device:    s.device,
		State:     s.sched.State().String(),
		Strategy:  string(s.ActiveStrategy()),
		Requested: string(s.requested),
		Settings:  s.settings.Snapshot(),
		Recording: s.recorder.Recording(),
		MediaType: s.recorder.MediaType(),
		Frames:    stats.Ticks,
		Errors:    stats.Errors,
		Skipped:   stats.Skipped,
		Overruns:  stats.Overruns,

		CaptureDropped: s.capDropped.Load(),
	}
}

// StartRecording begins recording composited frames at the current source
// size.
func (s *Session) StartRecording(ctx context.Context) error {
	if !s.alive.Load() {
		return ErrSessionClosed
	}
	fg, err := s.source.CurrentFrame()
	if err != nil {
		return err
	}
	return s.recorder.Start(ctx, fg.Width, fg.Height)
}

// StopRecording finalizes the artifact and hands it to the uploader, which
// returns either a URL or a local reference. An upload that falls back is
// reported in the outcome, not as an error. An empty artifact is returned
// together with limits.ErrArtifactEmpty.
func (s *Session) StopRecording(ctx context.Context) (*RecordingOutcome, error) {
	art, err := s.recorder.Stop(ctx)
	if errors.Is(err, recording.ErrNotRecording) {
		return nil, err
	}
	if err != nil {
		s.deps.Metrics.ObserveRecording(0, 0, err)
		return nil, err
	}
	s.deps.Metrics.ObserveRecording(art.Chunks, art.Size(), nil)
	s.deps.Metrics.AddDropped("recording", art.DroppedFrames)

	out := &RecordingOutcome{Artifact: art}
	res, err := s.deps.Uploader.Upload(ctx, art)
	if err != nil {
		return out, err
	}
	switch {
	case res.LocalOnly():
		s.deps.Metrics.ObserveUpload(metrics.UploadLocal)
	case res.Fallback:
		s.deps.Metrics.ObserveUpload(metrics.UploadFallback)
		s.warn("upload failed, artifact kept locally", res.Cause)
	default:
		s.deps.Metrics.ObserveUpload(metrics.UploadUploaded)
	}
	out.Upload = res
	return out, nil
}
