package httpapi

import (
	"sync"

	"github.com/opd-ai/chromakey/session"
)

// WarningLog keeps the most recent warnings per session.
type WarningLog struct {
	mu    sync.Mutex
	limit int
	byID  map[string][]session.Warning
}

// NewWarningLog keeps up to limit warnings per session.
func NewWarningLog(limit int) *WarningLog {
	if limit <= 0 {
		limit = 20
	}
	return &WarningLog{limit: limit, byID: make(map[string][]session.Warning)}
}

// Handle is a session.WarningHandler.
func (l *WarningLog) Handle(w session.Warning) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append(l.byID[w.Session], w)
	if len(list) > l.limit {
		list = list[len(list)-l.limit:]
	}
	l.byID[w.Session] = list
}

// Recent returns a copy of the warnings for id, oldest first.
func (l *WarningLog) Recent(id string) []session.Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Warning(nil), l.byID[id]...)
}

// Forget drops the warnings for id.
func (l *WarningLog) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, id)
}
