package runtime

import (
	"context"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/errors"
	"log/slog"
	"sync"
	"time"
)

const defaultIdleTimeout = 30 * time.Minute

// SessionManager keeps at most one Session per viewer and runs each of them
// under the supervisor. Sessions nobody streams from or calls are closed once idle.
type SessionManager struct {
	log         *slog.Logger
	deps        SessionDeps
	supervisor  contract.ISupervisor
	idleTimeout time.Duration

	mu       sync.Mutex
	ctx      context.Context
	sessions map[string]*Session
	started  chan struct{}
	once     sync.Once
}

func NewSessionManager(log *slog.Logger, supervisor contract.ISupervisor, deps SessionDeps, idleTimeout time.Duration) *SessionManager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = log
	}
	return &SessionManager{
		log:         log,
		deps:        deps,
		supervisor:  supervisor,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
		started:     make(chan struct{}),
	}
}

// Run owns the context sessions run under. It sweeps idle sessions and
// closes every session when ctx is canceled.
func (m *SessionManager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.once.Do(func() { close(m.started) })

	ticker := time.NewTicker(m.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return nil
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *SessionManager) sweepInterval() time.Duration {
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Open returns the viewer's session, starting one if needed, once its first
// snapshots were derived.
func (m *SessionManager) Open(ctx context.Context, viewer domain.Viewer) (*Session, error) {
	if !viewer.Role.Valid() {
		return nil, errors.ErrUnknownRole
	}
	select {
	case <-m.started:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, errors.ErrManagerStopped
	}
	session, ok := m.sessions[viewer.ID]
	if ok && session.Viewer() != viewer {
		// the same id came back with another role or name: start over
		m.closeLocked(viewer.ID)
		ok = false
	}
	if !ok {
		session = NewSession(viewer, m.deps)
		m.sessions[viewer.ID] = session
		m.supervisor.Start(m.ctx, session)
		m.deps.Monitoring.SessionOpened()
		m.log.Debug("Session opened", "viewer", viewer.ID, "role", viewer.Role)
	}
	runCtx := m.ctx
	m.mu.Unlock()

	session.touch()
	select {
	case <-session.Ready():
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-runCtx.Done():
		return nil, errors.ErrManagerStopped
	}
}

func (m *SessionManager) Get(viewerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[viewerID]
	return s, ok
}

func (m *SessionManager) Close(viewerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(viewerID)
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) closeLocked(viewerID string) {
	s, ok := m.sessions[viewerID]
	if !ok {
		return
	}
	delete(m.sessions, viewerID)
	s.Close()
	m.deps.Monitoring.SessionClosed()
	m.log.Debug("Session closed", "viewer", viewerID)
}

// sweep closes sessions idle for longer than the timeout with no open stream.
func (m *SessionManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.deps.Now().Add(-m.idleTimeout)
	for id, s := range m.sessions {
		if len(m.deps.Registry.GetSinksForViewer(id)) > 0 {
			continue
		}
		if s.IdleSince().Before(deadline) {
			m.closeLocked(id)
		}
	}
}

func (m *SessionManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.closeLocked(id)
	}
}
