package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/drafts"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session owns one draft. Its mutex is the single writer lock for the draft.
type session struct {
	mu       sync.Mutex
	draft    *drafts.Draft
	lastUsed time.Time
	closed   bool
}

// SessionInfo describes an open session
type SessionInfo struct {
	SessionID   string    `json:"sessionId"`
	BlueprintID string    `json:"blueprintId"`
	BaseVersion int       `json:"baseVersion"`
	LastUsed    time.Time `json:"lastUsed"`
}

// SessionManager owns the open editing sessions. Each session has an
// independent draft; nothing is shared between sessions.
type SessionManager struct {
	store  ports.SnapshotStore
	cfg    *config.DomainConfig
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionManager creates a new session manager
func NewSessionManager(store ports.SnapshotStore, cfg *config.DomainConfig, logger *zap.Logger) *SessionManager {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// SetClock overrides the time source used for idle tracking and drafts
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// Open loads the latest committed snapshot of blueprintID and starts a
// session on it. A blueprint with no committed version opens empty at
// version 0.
func (m *SessionManager) Open(ctx context.Context, blueprintID string) (string, error) {
	if blueprintID == "" {
		return "", pkgerrors.NewValidationError("blueprintID is required")
	}

	base := aggregates.NewBlueprint(blueprintID)
	version := valueobjects.Version(0)

	snapshot, err := m.store.LoadLatest(ctx, blueprintID)
	switch {
	case err == nil:
		base = snapshot.Blueprint
		version = valueobjects.Version(snapshot.Version.Version)
	case pkgerrors.IsNotFound(err):
		m.logger.Debug("No committed version, opening empty blueprint", zap.String("blueprintID", blueprintID))
	default:
		return "", fmt.Errorf("failed to load blueprint %s: %w", blueprintID, err)
	}

	sessionID := uuid.New().String()
	draft, err := drafts.NewDraft(sessionID, blueprintID, version, base, m.cfg)
	if err != nil {
		return "", err
	}
	draft.SetClock(m.now)

	m.mu.Lock()
	m.sessions[sessionID] = &session{draft: draft, lastUsed: m.now()}
	m.mu.Unlock()

	m.logger.Info("Session opened",
		zap.String("sessionID", sessionID),
		zap.String("blueprintID", blueprintID),
		zap.Int("baseVersion", version.Int()),
	)
	return sessionID, nil
}

// WithSession runs fn with exclusive access to the session's draft
func (m *SessionManager) WithSession(sessionID string, fn func(*drafts.Draft) error) error {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return pkgerrors.SessionNotFound(sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Closed or swept while we waited for the lock
	if s.closed {
		return pkgerrors.SessionNotFound(sessionID)
	}
	s.lastUsed = m.now()
	return fn(s.draft)
}

// Close ends a session and drops its draft
func (m *SessionManager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return pkgerrors.SessionNotFound(sessionID)
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	m.logger.Info("Session closed", zap.String("sessionID", sessionID))
	return nil
}

// Sweep closes sessions idle for longer than the session timeout and
// returns their ids. Sessions busy with an operation are skipped.
func (m *SessionManager) Sweep() []string {
	cutoff := m.now().Add(-m.cfg.SessionTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(cutoff) {
			s.closed = true
			delete(m.sessions, id)
			reaped = append(reaped, id)
		}
		s.mu.Unlock()
	}
	sort.Strings(reaped)

	if len(reaped) > 0 {
		m.logger.Info("Idle sessions reaped", zap.Int("count", len(reaped)))
	}
	return reaped
}

// RunSweeper sweeps every interval until ctx is done
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// List describes the open sessions ordered by id
func (m *SessionManager) List() []SessionInfo {
	m.mu.RLock()
	all := make(map[string]*session, len(m.sessions))
	for id, s := range m.sessions {
		all[id] = s
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(all))
	for id, s := range all {
		s.mu.Lock()
		if !s.closed {
			infos = append(infos, SessionInfo{
				SessionID:   id,
				BlueprintID: s.draft.BlueprintID(),
				BaseVersion: s.draft.BaseVersion().Int(),
				LastUsed:    s.lastUsed,
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos
}

// Count returns the number of open sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Config returns the domain configuration sessions are opened with
func (m *SessionManager) Config() *config.DomainConfig {
	return m.cfg
}
