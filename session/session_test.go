package session

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chromakey/background"
	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/gpu"
	"github.com/opd-ai/chromakey/keying"
	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/metrics"
	"github.com/opd-ai/chromakey/scheduler"
	"github.com/opd-ai/chromakey/upload"
)

var (
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

// countingOpener hands out static sources and counts releases.
type countingOpener struct {
	fill     color.RGBA
	opens    atomic.Int32
	releases atomic.Int32
	err      error
}

func (o *countingOpener) Open(ctx context.Context, c capture.Constraints) (capture.FrameSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	f, err := frame.Solid(32, 24, o.fill)
	if err != nil {
		return nil, err
	}
	src, err := capture.NewStaticSource([]*frame.Frame{f}, 0)
	if err != nil {
		return nil, err
	}
	o.opens.Add(1)
	src.OnClose(func() { o.releases.Add(1) })
	return src, nil
}

type presenterSpy struct {
	mu      sync.Mutex
	results []*compositor.Result
}

func (p *presenterSpy) Present(res *compositor.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
}

func (p *presenterSpy) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func solidBackground(t *testing.T, c color.RGBA) background.Source {
	t.Helper()
	bg, err := background.Solid(16, 16, c)
	require.NoError(t, err)
	return bg
}

func softwareConfig(t *testing.T) Config {
	return Config{
		Device:     "test0",
		Strategy:   compositor.StrategySoftware,
		Settings:   keying.Settings{Threshold: 0.4, Smoothness: 0.05, Spill: 0.1, KeyColor: keying.KeyGreen},
		Background: solidBackground(t, blue),
	}
}

func TestSession_StopTwiceReleasesDeviceOnce(t *testing.T) {
	opener := &countingOpener{fill: green}
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: opener})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())

	assert.Equal(t, int32(1), opener.opens.Load())
	assert.Equal(t, int32(1), opener.releases.Load())
	assert.Equal(t, scheduler.Stopped, s.State())
	assert.ErrorIs(t, s.Start(), ErrSessionClosed)
}

func TestSession_TickCompositesAndPresents(t *testing.T) {
	presenter := &presenterSpy{}
	s, err := Open(context.Background(), softwareConfig(t), Deps{
		Capture:   &countingOpener{fill: green},
		Presenter: presenter,
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.tick(context.Background()))
	require.Equal(t, 1, presenter.count())

	res := s.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, 32, res.Frame.Width)
	assert.Equal(t, blue, res.Frame.At(5, 5))
	for _, a := range res.Mask {
		require.Zero(t, a)
	}
}

func TestSession_TickAfterStopIsSkipped(t *testing.T) {
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: &countingOpener{fill: green}})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	assert.ErrorIs(t, s.tick(context.Background()), scheduler.ErrSkipTick)
}

func TestSession_SettingsSnapshotPerTick(t *testing.T) {
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: &countingOpener{fill: green}})
	require.NoError(t, err)
	defer s.Close()

	got := s.UpdateSettings(keying.Settings{Threshold: -3, Smoothness: -1, Spill: 0.9, KeyColor: keying.KeyGreen})
	assert.True(t, got.IsClamped())
	assert.Equal(t, got, s.Settings())

	// Threshold 0 keys nothing, so the green foreground survives.
	require.NoError(t, s.tick(context.Background()))
	assert.Equal(t, green, s.LastResult().Frame.At(0, 0))
}

func TestSession_HardwareFallbackWarns(t *testing.T) {
	var (
		mu       sync.Mutex
		warnings []Warning
	)
	cfg := softwareConfig(t)
	cfg.Strategy = compositor.StrategyHardware

	s, err := Open(context.Background(), cfg, Deps{
		Capture: &countingOpener{fill: green},
		GPU:     func() (gpu.Device, error) { return nil, gpu.ErrContextUnavailable },
		OnWarning: func(w Warning) {
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, w)
		},
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, compositor.StrategySoftware, s.ActiveStrategy())
	status := s.Status()
	assert.Equal(t, "software", status.Strategy)
	assert.Equal(t, "hardware", status.Requested)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, warnings, 1)
	assert.Equal(t, compositor.FallbackWarning, warnings[0].Message)
	assert.Equal(t, s.ID(), warnings[0].Session)
}

func TestSession_CaptureErrorIsFatal(t *testing.T) {
	opener := &countingOpener{err: capture.NewError(capture.KindPermissionDenied, "test0", nil)}
	_, err := Open(context.Background(), softwareConfig(t), Deps{Capture: opener})

	require.Error(t, err)
	assert.Equal(t, capture.KindPermissionDenied, capture.KindOf(err))
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
}

func TestSession_Calibrate(t *testing.T) {
	opener := &countingOpener{fill: color.RGBA{R: 40, G: 200, B: 50, A: 255}}
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: opener})
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Calibrate()
	require.NoError(t, err)
	assert.Equal(t, st, s.Settings())
	assert.InDelta(t, 200, st.KeyColor.G, 0.5)
}

func TestSession_RunsOnScheduler(t *testing.T) {
	presenter := &presenterSpy{}
	cfg := softwareConfig(t)
	cfg.Interval = 5 * time.Millisecond
	s, err := Open(context.Background(), cfg, Deps{Capture: &countingOpener{fill: green}, Presenter: presenter})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return presenter.count() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Pause())
	assert.Equal(t, scheduler.Paused, s.State())
	require.NoError(t, s.Resume())

	require.NoError(t, s.Stop())
	n := presenter.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, presenter.count())
}

func TestSession_RecordAndUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "url": "https://cdn.example/r.mjpeg"})
	}))
	defer srv.Close()

	s, err := Open(context.Background(), softwareConfig(t), Deps{
		Capture:  &countingOpener{fill: green},
		Uploader: upload.NewClient(upload.Config{Endpoint: srv.URL}),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartRecording(context.Background()))
	assert.True(t, s.Status().Recording)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.tick(context.Background()))
	}

	out, err := s.StopRecording(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Artifact)
	assert.NotZero(t, out.Artifact.Size())
	require.NotNil(t, out.Upload)
	assert.False(t, out.Upload.Fallback)
	assert.Equal(t, "https://cdn.example/r.mjpeg", out.Upload.URL)
}

func TestManager_OneSessionPerDevice(t *testing.T) {
	opener := &countingOpener{fill: green}
	mgr := NewManager(Deps{Capture: opener})

	s1, err := mgr.Open(context.Background(), softwareConfig(t))
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), softwareConfig(t))
	assert.ErrorIs(t, err, ErrDeviceInUse)

	other := softwareConfig(t)
	other.Device = "test1"
	s2, err := mgr.Open(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, mgr.Len())

	got, err := mgr.Get(s1.ID())
	require.NoError(t, err)
	assert.Same(t, s1, got)

	require.NoError(t, s1.Close())
	_, err = mgr.Get(s1.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s3, err := mgr.Open(context.Background(), softwareConfig(t))
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s3.ID())

	require.NoError(t, mgr.CloseAll())
	assert.Zero(t, mgr.Len())
	assert.Equal(t, opener.opens.Load(), opener.releases.Load())
	_ = s2
}

func TestOpen_RequiresCaptureOpener(t *testing.T) {
	_, err := Open(context.Background(), Config{}, Deps{})
	assert.True(t, errors.Is(err, ErrNoCaptureOpener))
}

// droppingSource reports a drop counter like the GStreamer capture source.
type droppingSource struct {
	capture.FrameSource
	dropped atomic.Uint64
}

func (d *droppingSource) Dropped() uint64 { return d.dropped.Load() }

type droppingOpener struct {
	countingOpener
	src *droppingSource
}

func (o *droppingOpener) Open(ctx context.Context, c capture.Constraints) (capture.FrameSource, error) {
	inner, err := o.countingOpener.Open(ctx, c)
	if err != nil {
		return nil, err
	}
	o.src = &droppingSource{FrameSource: inner}
	return o.src, nil
}

func TestSession_ReportsCaptureDrops(t *testing.T) {
	m := metrics.New()
	opener := &droppingOpener{countingOpener: countingOpener{fill: green}}
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: opener, Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	opener.src.dropped.Store(3)
	require.NoError(t, s.tick(context.Background()))
	assert.Equal(t, uint64(3), s.Status().CaptureDropped)

	opener.src.dropped.Store(5)
	_ = s.tick(context.Background())
	assert.Equal(t, uint64(5), s.Status().CaptureDropped)

	expected := `
# HELP chromakey_frames_dropped_total Frames dropped before compositing or encoding, by stage.
# TYPE chromakey_frames_dropped_total counter
chromakey_frames_dropped_total{stage="capture"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "chromakey_frames_dropped_total"))
}

func TestSession_RecordWithoutEndpointKeepsLocalReference(t *testing.T) {
	var (
		mu       sync.Mutex
		warnings []Warning
	)
	s, err := Open(context.Background(), softwareConfig(t), Deps{
		Capture: &countingOpener{fill: green},
		OnWarning: func(w Warning) {
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, w)
		},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartRecording(context.Background()))
	require.NoError(t, s.tick(context.Background()))

	out, err := s.StopRecording(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Upload)
	assert.True(t, out.Upload.LocalOnly())
	assert.Equal(t, upload.DataURL(out.Artifact), out.Upload.LocalRef)
	assert.Empty(t, out.Upload.URL)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, warnings)
}

func TestSession_StopRecordingEmptyArtifact(t *testing.T) {
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: &countingOpener{fill: green}})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartRecording(context.Background()))
	out, err := s.StopRecording(context.Background())
	assert.ErrorIs(t, err, limits.ErrArtifactEmpty)
	require.NotNil(t, out)
	assert.Nil(t, out.Upload)
}

func TestSession_UpdateSettingsFuncKeepsConcurrentFields(t *testing.T) {
	s, err := Open(context.Background(), softwareConfig(t), Deps{Capture: &countingOpener{fill: green}})
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.UpdateSettingsFunc(func(cur keying.Settings) keying.Settings {
				cur.Threshold = 0.7
				return cur
			})
		}()
		go func() {
			defer wg.Done()
			s.UpdateSettingsFunc(func(cur keying.Settings) keying.Settings {
				cur.Spill = 0.3
				return cur
			})
		}()
	}
	wg.Wait()

	got := s.Settings()
	assert.InDelta(t, 0.7, got.Threshold, 1e-9)
	assert.InDelta(t, 0.3, got.Spill, 1e-9)
	assert.InDelta(t, 0.05, got.Smoothness, 1e-9)
}
