package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/recording"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffUnit = time.Second
	DefaultTimeout     = 60 * time.Second

	// DigestHeader carries the hex BLAKE2b-256 digest of the artifact.
	DigestHeader = "X-Artifact-Digest"

	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	Endpoint         string
	MaxAttempts      int
	BackoffUnit      time.Duration
	Timeout          time.Duration
	MaxArtifactBytes int
	SpoolDir         string
	HTTPClient       *http.Client
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxArtifactBytes <= 0 {
		c.MaxArtifactBytes = limits.MaxArtifactSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Attempt describes one upload try. It exists only while Upload runs.
type Attempt struct {
	ArtifactID string
	Endpoint   string
	Number     int
	// Delay is the wait that preceded this attempt.
	Delay    time.Duration
	Status   int
	Duration time.Duration
	Err      error
}

// Result is the outcome of Upload. Exactly one of URL and LocalRef is set.
type Result struct {
	URL      string
	Fallback bool
	LocalRef string
	Attempts int
	// Cause explains a fallback.
	Cause error
}

// LocalOnly reports whether the artifact was kept locally because the
// client has no endpoint.
func (r *Result) LocalOnly() bool {
	return r.Fallback && errors.Is(r.Cause, ErrNoEndpoint)
}

// Reference returns the URL, or the local reference for a fallback.
func (r *Result) Reference() string {
	if r.Fallback {
		return r.LocalRef
	}
	return r.URL
}

type response struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Type     string `json:"type"`
}

// Client uploads artifacts.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	sleeper   Sleeper
	onAttempt func(Attempt)
}

// NewClient creates a client, filling in defaults.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	logrus.WithFields(logrus.Fields{
		"function": "NewClient",
		"endpoint": cfg.Endpoint,
		"attempts": cfg.MaxAttempts,
		"timeout":  cfg.Timeout,
	}).Info("Creating upload client")
	return &Client{cfg: cfg, sleeper: DefaultSleeper{}}
}

// SetSleeper replaces the backoff sleeper (primarily for testing).
func (c *Client) SetSleeper(s Sleeper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeper = s
}

// OnAttempt registers a hook called after every attempt.
func (c *Client) OnAttempt(fn func(Attempt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAttempt = fn
}

// Upload sends the artifact. Failures that exhaust the retry budget, size
// rejections and cancellation all produce a fallback Result with a nil
// error; the returned error is reserved for invalid input or a failure to
// build the local reference. A client without an endpoint keeps every
// artifact locally and reports ErrNoEndpoint as the Cause.
func (c *Client) Upload(ctx context.Context, a *recording.Artifact) (*Result, error) {
	if a == nil {
		return nil, ErrNilArtifact
	}

	if err := limits.ValidateArtifactSize(a.Size(), c.cfg.MaxArtifactBytes); err != nil {
		if errors.Is(err, limits.ErrArtifactEmpty) {
			return nil, err
		}
		cause := &SizeExceededError{Size: a.Size(), Limit: c.cfg.MaxArtifactBytes}
		return c.fallback(a, 0, cause)
	}
	if c.cfg.Endpoint == "" {
		return c.keepLocal(a)
	}

	body, contentType, err := encodeBody(a)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	sleeper, observe := c.sleeper, c.onAttempt
	c.mu.RUnlock()

	var lastErr error
	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		var delay time.Duration
		if n > 1 {
			delay = time.Duration(n-1) * c.cfg.BackoffUnit
			if err := sleeper.Sleep(ctx, delay); err != nil {
				return c.fallback(a, n-1, err)
			}
		}

		att := Attempt{ArtifactID: a.ID.String(), Endpoint: c.cfg.Endpoint, Number: n, Delay: delay}
		start := time.Now()
		url, status, err := c.post(ctx, a, body, contentType)
		att.Status, att.Duration, att.Err = status, time.Since(start), err
		if observe != nil {
			observe(att)
		}

		if err == nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.Upload",
				"artifact": a.ID.String(),
				"attempt":  n,
				"size":     a.Size(),
			}).Info("Artifact uploaded")
			return &Result{URL: url, Attempts: n}, nil
		}

		lastErr = err
		var sizeErr *SizeExceededError
		if errors.As(err, &sizeErr) {
			return c.fallback(a, n, err)
		}
		if ctx.Err() != nil {
			return c.fallback(a, n, ctx.Err())
		}

		logrus.WithFields(logrus.Fields{
			"function": "Client.Upload",
			"artifact": a.ID.String(),
			"attempt":  n,
			"status":   status,
			"error":    err.Error(),
		}).Warn("Upload attempt failed")
	}

	return c.fallback(a, c.cfg.MaxAttempts,
		fmt.Errorf("upload failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr))
}

func encodeBody(a *recording.Artifact) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, a.Filename()))
	h.Set("Content-Type", a.MediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("type", "video"); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// post performs one attempt under the per-attempt timeout.
func (c *Client) post(ctx context.Context, a *recording.Artifact, body []byte, contentType string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(DigestHeader, a.DigestHex())

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", resp.StatusCode, &SizeExceededError{Size: a.Size(), Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: invalid response body: %v", ErrNetwork, err)
	}
	if !out.Success || out.URL == "" {
		return "", resp.StatusCode, fmt.Errorf("%w: %w", ErrNetwork, ErrRejected)
	}
	return out.URL, resp.StatusCode, nil
}
