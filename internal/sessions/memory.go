package sessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cleanpay/internal/logging"
	"cleanpay/internal/orchestrator"
)

type entry struct {
	session  *orchestrator.Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in process and drops those idle longer than ttl.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	deps   orchestrator.Deps
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewMemoryStore(deps orchestrator.Deps, ttl time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

func (m *MemoryStore) Create(_ context.Context) (*orchestrator.Session, error) {
	s, err := orchestrator.New(newID(), m.deps)
	if err != nil {
		return nil, err
	}
	m.put(s)
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*orchestrator.Session, error) {
	if s, ok := m.lookup(id); ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) put(s *orchestrator.Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = &entry{session: s, lastSeen: m.now()}
	m.mu.Unlock()
}

func (m *MemoryStore) lookup(id string) (*orchestrator.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.session, true
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(); n > 0 {
				m.logger.Debug("reaped idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Reap drops sessions idle longer than the ttl. A session with a clean or
// verification request outstanding is kept until the request completes; one
// left with the checkout widget open is reaped like any other.
func (m *MemoryStore) Reap() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := 0
	for id, e := range m.sessions {
		if e.lastSeen.After(cutoff) || e.session.State().RemoteCallPending() {
			continue
		}
		delete(m.sessions, id)
		reaped++
	}
	return reaped
}
