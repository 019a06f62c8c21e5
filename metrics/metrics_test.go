package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTick_ByStrategy(t *testing.T) {
	m := New()

	m.ObserveTick("hardware", 5*time.Millisecond, nil)
	m.ObserveTick("software", 20*time.Millisecond, nil)
	m.ObserveTick("software", 20*time.Millisecond, nil)
	m.ObserveTick("software", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesComposited.WithLabelValues("hardware")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesComposited.WithLabelValues("software")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tickErrors.WithLabelValues("software")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.tickDuration))
}

func TestRecordingAndUploadCounters(t *testing.T) {
	m := New()

	m.ObserveRecording(3, 1200, nil)
	m.ObserveRecording(0, 0, errors.New("encoder crashed"))
	m.ObserveUploadAttempt(503)
	m.ObserveUploadAttempt(200)
	m.ObserveUpload(UploadUploaded)
	m.ObserveUpload(UploadFallback)
	m.ObserveUpload(UploadLocal)
	m.AddDropped("capture", 4)
	m.AddDropped("capture", 0)
	m.AddDropped("recording", 2)
	m.IncFallbacks()
	m.IncSkipped()
	m.SetActiveSessions(2)
	m.ObserveRequest(201)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordingChunks))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.recordingBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordings.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadAttempts.WithLabelValues("503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("local")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("capture")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("recording")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("201")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick("software", time.Millisecond, nil)
		m.IncSkipped()
		m.IncFallbacks()
		m.SetActiveSessions(1)
		m.ObserveRecording(1, 1, nil)
		m.ObserveUploadAttempt(200)
		m.ObserveUpload(UploadFallback)
		m.AddDropped("capture", 1)
		m.ObserveRequest(404)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler_ServesExposition(t *testing.T) {
	m := New()
	m.ObserveTick("simple", time.Millisecond, nil)

	refreshed := false
	srv := httptest.NewServer(m.Handler(func() { refreshed = true }))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, refreshed)
	assert.Contains(t, string(body), `chromakey_frames_composited_total{strategy="simple"} 1`)
}
