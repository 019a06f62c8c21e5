package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager enforces one session per capture device.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	byID     map[string]*Session
	byDevice map[string]string
	opening  map[string]bool
}

// NewManager creates a manager sharing deps across sessions.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		byID:     make(map[string]*Session),
		byDevice: make(map[string]string),
		opening:  make(map[string]bool),
	}
}

// Open creates a session for cfg.Device, failing with ErrDeviceInUse when
// the device already has one.
func (m *Manager) Open(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	if _, busy := m.byDevice[cfg.Device]; busy || m.opening[cfg.Device] {
		m.mu.Unlock()
		return nil, ErrDeviceInUse
	}
	m.opening[cfg.Device] = true
	m.mu.Unlock()

	s, err := Open(ctx, cfg, m.deps)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.opening, cfg.Device)
	if err != nil {
		return nil, err
	}

	m.byID[s.id] = s
	m.byDevice[s.device] = s.id
	s.onClose = func() { m.forget(s) }
	m.deps.Metrics.SetActiveSessions(len(m.byID))
	return s, nil
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, s.id)
	if m.byDevice[s.device] == s.id {
		delete(m.byDevice, s.device)
	}
	m.deps.Metrics.SetActiveSessions(len(m.byID))
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns open sessions ordered by ID.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// CloseAll stops every session.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, s := range m.List() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "Manager.CloseAll",
		"errors":   len(errs),
	}).Info("All sessions closed")
	return errors.Join(errs...)
}
