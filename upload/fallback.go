package upload

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/recording"
)

// fallback builds the local reference reported in place of a URL.
func (c *Client) fallback(a *recording.Artifact, attempts int, cause error) (*Result, error) {
	ref, err := c.localRef(a)
	if err != nil {
		return nil, fmt.Errorf("local fallback failed: %w (upload cause: %v)", err, cause)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.Upload",
		"artifact": a.ID.String(),
		"attempts": attempts,
		"cause":    cause.Error(),
		"spooled":  strings.HasPrefix(ref, "file://"),
	}).Warn("Upload failed, returning local reference")

	return &Result{Fallback: true, LocalRef: ref, Attempts: attempts, Cause: cause}, nil
}

// keepLocal is the only path for a client without an endpoint.
func (c *Client) keepLocal(a *recording.Artifact) (*Result, error) {
	ref, err := c.localRef(a)
	if err != nil {
		return nil, fmt.Errorf("keeping artifact locally: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.Upload",
		"artifact": a.ID.String(),
		"size":     a.Size(),
		"spooled":  strings.HasPrefix(ref, "file://"),
	}).Info("No upload endpoint, artifact kept locally")

	return &Result{Fallback: true, LocalRef: ref, Cause: ErrNoEndpoint}, nil
}

func (c *Client) localRef(a *recording.Artifact) (string, error) {
	if c.cfg.SpoolDir == "" {
		return DataURL(a), nil
	}

	if err := os.MkdirAll(c.cfg.SpoolDir, 0o755); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(c.cfg.SpoolDir, a.Filename()))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// DataURL encodes the artifact as a self-contained data: URL.
func DataURL(a *recording.Artifact) string {
	mediaType := a.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
