package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/compositor"
	"github.com/opd-ai/chromakey/keying"
	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/metrics"
	"github.com/opd-ai/chromakey/platform"
	"github.com/opd-ai/chromakey/recording"
	"github.com/opd-ai/chromakey/scheduler"
	"github.com/opd-ai/chromakey/session"
)

const (
	previewQuality = 75
	recordTimeout  = 2 * time.Minute
	maxBodyBytes   = 64 << 10
)

// Handler serves the session API.
type Handler struct {
	mgr      *session.Manager
	defaults session.Config
	warnings *WarningLog
	metrics  *metrics.Metrics
}

// NewHandler creates a handler. defaults seeds every new session; requests
// may override the device, strategy, class and background. warnings and m
// may be nil.
func NewHandler(mgr *session.Manager, defaults session.Config, warnings *WarningLog, m *metrics.Metrics) *Handler {
	if warnings == nil {
		warnings = NewWarningLog(0)
	}
	return &Handler{mgr: mgr, defaults: defaults, warnings: warnings, metrics: m}
}

// Router builds the chi router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(requestMetrics(h.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "sessions": h.mgr.Len()})
	})
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler(func() {
		h.metrics.SetActiveSessions(h.mgr.Len())
	}))

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.OpenSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.CloseSession)
			r.Post("/start", h.lifecycle((*session.Session).Start))
			r.Post("/pause", h.lifecycle((*session.Session).Pause))
			r.Post("/resume", h.lifecycle((*session.Session).Resume))
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.PutSettings)
			r.Post("/calibrate", h.Calibrate)
			r.Post("/recording", h.StartRecording)
			r.Delete("/recording", h.StopRecording)
			r.Get("/preview.jpg", h.Preview)
			r.Get("/warnings", h.Warnings)
		})
	})
	return r
}

// OpenRequest is the body of POST /sessions. Empty fields use defaults.
type OpenRequest struct {
	Device     string `json:"device"`
	Strategy   string `json:"strategy"`
	Class      string `json:"class"`
	Background string `json:"background"`
}

// RecordingResponse describes a finalized recording.
type RecordingResponse struct {
	ArtifactID string `json:"artifact_id"`
	MediaType  string `json:"media_type"`
	Size       int    `json:"size"`
	Chunks     int    `json:"chunks"`
	Digest     string `json:"digest"`
	URL        string `json:"url,omitempty"`
	Fallback   bool   `json:"fallback"`
	LocalRef   string `json:"local_ref,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Cause      string `json:"cause,omitempty"`
	Dropped    uint64 `json:"dropped_frames"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "httpapi.writeJSON",
			"error":    err.Error(),
		}).Debug("Failed to write response")
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	var capErr *capture.Error
	var encErr *recording.EncodingError
	switch {
	case errors.As(err, &capErr):
		resp.Kind = capErr.Kind.String()
		resp.Error = capErr.Message()
		switch capErr.Kind {
		case capture.KindPermissionDenied:
			status = http.StatusForbidden
		case capture.KindNoDevice:
			status = http.StatusNotFound
		case capture.KindDeviceBusy:
			status = http.StatusConflict
		case capture.KindUnsupportedConstraints:
			status = http.StatusUnprocessableEntity
		case capture.KindTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusServiceUnavailable
		}
	case errors.Is(err, capture.ErrNoFrame):
		status = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrDeviceInUse),
		errors.Is(err, recording.ErrAlreadyRecording),
		errors.Is(err, recording.ErrNotRecording),
		errors.Is(err, scheduler.ErrStopped),
		errors.Is(err, scheduler.ErrNotRunning),
		errors.Is(err, scheduler.ErrNotPaused),
		errors.Is(err, session.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, recording.ErrRecordingUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, limits.ErrArtifactEmpty):
		status = http.StatusUnprocessableEntity
		resp.Kind = "empty_artifact"
	case errors.As(err, &encErr):
		status = http.StatusUnprocessableEntity
		resp.Kind = "encoding"
	case errors.Is(err, compositor.ErrUnknownStrategy), errors.Is(err, platform.ErrUnknownClass):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.mgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.mgr.List()
	out := make([]session.Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

// OpenSession handles POST /sessions.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	cfg := h.defaults
	if req.Device != "" {
		cfg.Device = req.Device
	}
	if req.Strategy != "" {
		st, err := compositor.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, err)
			return
		}
		cfg.Strategy = st
	}
	if req.Class != "" {
		class, err := platform.Parse(req.Class)
		if err != nil {
			writeError(w, err)
			return
		}
		cfg.Class = class
	} else if ua := platform.FromUserAgent(r.UserAgent()); ua != platform.Desktop {
		cfg.Class = ua
	}
	if req.Background != "" {
		cfg.Background = nil
		cfg.BackgroundRef = req.Background
	}

	s, err := h.mgr.Open(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Status())
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// CloseSession handles DELETE /sessions/{id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.CloseSession",
			"session":  s.ID(),
			"error":    err.Error(),
		}).Warn("Session released with errors")
	}
	h.warnings.Forget(s.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lifecycle(op func(*session.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}
		if err := op(s); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Status())
	}
}

// GetSettings handles GET /sessions/{id}/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Settings())
}

// PutSettings handles PUT /sessions/{id}/settings. Missing fields keep their
// current values; the stored result is clamped and echoed back. The body is
// merged into the settings current at the moment of the store, so concurrent
// requests changing different fields both take effect.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		var scratch keying.Settings
		err = json.Unmarshal(body, &scratch)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid settings: " + err.Error()})
		return
	}
	st := s.UpdateSettingsFunc(func(cur keying.Settings) keying.Settings {
		// body already decoded once without error.
		_ = json.Unmarshal(body, &cur)
		return cur
	})
	writeJSON(w, http.StatusOK, st)
}

// Calibrate handles POST /sessions/{id}/calibrate.
func (h *Handler) Calibrate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.Calibrate()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StartRecording handles POST /sessions/{id}/recording. The recording
// outlives the request.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.StartRecording(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Status())
}

// StopRecording handles DELETE /sessions/{id}/recording.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), recordTimeout)
	defer cancel()

	out, err := s.StopRecording(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	art := out.Artifact
	resp := RecordingResponse{
		ArtifactID: art.ID.String(),
		MediaType:  art.MediaType,
		Size:       art.Size(),
		Chunks:     art.Chunks,
		Digest:     art.DigestHex(),
		Dropped:    art.DroppedFrames,
	}
	if res := out.Upload; res != nil {
		resp.URL = res.URL
		resp.Fallback = res.Fallback
		resp.LocalRef = res.LocalRef
		resp.Attempts = res.Attempts
		if res.Cause != nil {
			resp.Cause = res.Cause.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview handles GET /sessions/{id}/preview.jpg.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res := s.LastResult()
	if res == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no composited frame yet"})
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Compositor-Strategy", string(s.ActiveStrategy()))
	if err := jpeg.Encode(w, res.Frame.Image(), &jpeg.Options{Quality: previewQuality}); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Handler.Preview",
			"session":  s.ID(),
			"error":    err.Error(),
		}).Debug("Preview write failed")
	}
}

// Warnings handles GET /sessions/{id}/warnings.
func (h *Handler) Warnings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	type warning struct {
		Message string    `json:"message"`
		Error   string    `json:"error,omitempty"`
		Time    time.Time `json:"time"`
	}
	recent := h.warnings.Recent(s.ID())
	out := make([]warning, 0, len(recent))
	for _, wr := range recent {
		item := warning{Message: wr.Message, Time: wr.Time}
		if wr.Err != nil {
			item.Error = wr.Err.Error()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}
