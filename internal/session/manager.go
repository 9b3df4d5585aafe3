package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"faturas/internal/metrics"
	"faturas/internal/snapshot"
	"faturas/internal/storage"
)

// Manager owns the states of signed-in users, keyed by user id.
type Manager struct {
	reader  storage.Reader
	hub     *snapshot.Hub
	idle    time.Duration
	metrics *metrics.Collectors
	logger  *slog.Logger
	now     func() time.Time

	// OnTeardown runs after a state is released.
	OnTeardown func(userID string)

	mu     sync.Mutex
	states map[string]*State
	inits  singleflight.Group
}

func NewManager(reader storage.Reader, hub *snapshot.Hub, idle time.Duration, m *metrics.Collectors, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reader:  reader,
		hub:     hub,
		idle:    idle,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		states:  make(map[string]*State),
	}
}

// SignIn returns the user's state, initializing it on first use. Concurrent
// first requests of the same user share one initialization.
func (m *Manager) SignIn(ctx context.Context, userID string) (*State, error) {
	if s := m.lookup(userID); s != nil {
		s.Touch(m.now())
		return s, nil
	}

	v, err, _ := m.inits.Do(userID, func() (interface{}, error) {
		if s := m.lookup(userID); s != nil {
			return s, nil
		}
		s, err := Init(ctx, userID, m.reader, m.hub)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.states[userID] = s
		n := len(m.states)
		m.mu.Unlock()

		m.metrics.SetActiveSessions(n)
		m.logger.InfoContext(ctx, "Session initialized", "user_id", userID, "version", s.Version())
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s := v.(*State)
	s.Touch(m.now())
	return s, nil
}

func (m *Manager) lookup(userID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID]
}

// SignOut tears down the user's state. Unknown users are ignored.
func (m *Manager) SignOut(userID string) bool {
	m.mu.Lock()
	s, ok := m.states[userID]
	delete(m.states, userID)
	n := len(m.states)
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.Teardown()
	m.metrics.SetActiveSessions(n)
	if m.OnTeardown != nil {
		m.OnTeardown(userID)
	}
	m.logger.Info("Session closed", "user_id", userID)
	return true
}

// Active counts live states.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// EvictIdle tears down states not used for longer than the idle timeout.
func (m *Manager) EvictIdle() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var stale []string
	for id, s := range m.states {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.SignOut(id)
	}
	return len(stale)
}

// Run evicts idle states every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.logger.Info("Idle sessions evicted", "count", n)
			}
		}
	}
}

// Close tears down every state.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.SignOut(id)
	}
}
