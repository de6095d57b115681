package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// ISessionManager is the session registry: issue, look up, touch, terminate
// and sweep sessions keyed by opaque session id.
type ISessionManager interface {
	CreateSession(params *sync.Map) shared.ISession
	GetSession(id string) (shared.ISession, error)
	CloseSession(id string)
	CloseAllSessions()
	GetLogger() *zap.Logger

	SessionCount() int
	CleanupIdleSessions(timeout time.Duration)
	GetServerInfo() *schema.Implementation
}

var _ ISessionManager = (*Manager)(nil)

// Manager handles all active sessions.
type Manager struct {
	sessions       map[string]*Session
	mu             sync.RWMutex
	logger         *zap.Logger
	ServerInfo     schema.Implementation
	inputProcessor *shared.Input
}

var ErrSessionNotFound = errors.New("session not found")

// NewManager creates a new session manager and starts its input processing loop.
func NewManager(logger *zap.Logger, serverInfo schema.Implementation) *Manager {
	m := &Manager{
		sessions:       make(map[string]*Session),
		logger:         logger,
		inputProcessor: shared.NewInput(logger),
		ServerInfo:     serverInfo,
	}
	go m.inputProcessor.Process()
	return m
}

// Input returns the manager's input processor.
func (m *Manager) Input() *shared.Input {
	return m.inputProcessor
}

func (m *Manager) GetLogger() *zap.Logger {
	return m.logger
}

func (m *Manager) GetServerInfo() *schema.Implementation {
	return &m.ServerInfo
}

// AddCapability registers capabilities with the input processor.
func (m *Manager) AddCapability(capabilities ...shared.ICapability) {
	m.inputProcessor.AddCapability(capabilities...)
}

// AddValidator adds message validators applied before dispatch.
func (m *Manager) AddValidator(validators ...shared.MessageValidator) {
	m.inputProcessor.AddValidator(validators...)
}

// CreateSession creates a new session with a unique id.
func (m *Manager) CreateSession(params *sync.Map) shared.ISession {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := NewSession(m, m.inputProcessor, params)
	m.sessions[session.ID] = session

	m.logger.Debug("Created new session", zap.String("sessionID", session.ID))
	return session
}

// GetSession retrieves a session by its id without touching it.
func (m *Manager) GetSession(id string) (shared.ISession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// TouchSession refreshes the last-activity timestamp on the dispatch path.
func (m *Manager) TouchSession(id string) (shared.ISession, error) {
	session, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	session.UpdateLastActivity()
	return session, nil
}

// SessionCount returns the number of open sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseSession terminates a session: cancels its in-flight requests and
// closes its output channel.
func (m *Manager) CloseSession(id string) {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		m.logger.Warn("Attempted to close non-existent session", zap.String("sessionID", id))
		return
	}
	if err := session.Close(); err != nil {
		m.logger.Error("Error closing session resources", zap.String("sessionID", id), zap.Error(err))
	}
	m.logger.Info("Closed session", zap.String("sessionID", id))
}

// CloseAllSessions terminates every open session, in parallel.
func (m *Manager) CloseAllSessions() {
	m.mu.Lock()
	idsToClose := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		idsToClose = append(idsToClose, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range idsToClose {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			m.CloseSession(sessionID)
		}(id)
	}
	wg.Wait()
	m.logger.Info("Closed all sessions")
}

// CleanupIdleSessions terminates sessions idle longer than timeout.
func (m *Manager) CleanupIdleSessions(timeout time.Duration) {
	m.mu.RLock()
	var idle []string
	now := time.Now()
	for id, session := range m.sessions {
		if session.GetLastActivity().Add(timeout).Before(now) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		m.logger.Info("Sweeping idle session", zap.String("sessionID", id))
		m.CloseSession(id)
	}
}

// StartSweeper runs the idle-session sweep until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval, idleTimeout time.Duration) {
	if interval <= 0 || idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupIdleSessions(idleTimeout)
			}
		}
	}()
}

// Shutdown stops the input loop and closes all sessions.
func (m *Manager) Shutdown() {
	m.CloseAllSessions()
	m.inputProcessor.Stop()
}
