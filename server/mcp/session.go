package mcp

import (
	"sync"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// IServerSession extends the shared session with the client descriptor
// captured during initialization.
type IServerSession interface {
	shared.ISession
	SetClientInfo(info schema.Implementation, caps schema.ClientCapabilities)
	GetClientInfo() schema.Implementation
}

var _ IServerSession = (*Session)(nil)

// Session represents one client connection on this server.
type Session struct {
	*shared.BaseSession
	manager ISessionManager

	ClientInfo         schema.Implementation      `json:"-"`
	ClientCapabilities *schema.ClientCapabilities `json:"-"`
}

// NewSession creates a new session bound to the manager's input processor.
func NewSession(manager ISessionManager, inputProcessor *shared.Input, params *sync.Map) *Session {
	return &Session{
		BaseSession: shared.NewBaseSession(manager.GetLogger(), inputProcessor, params),
		manager:     manager,
	}
}

func (s *Session) Close() error {
	logger := s.BaseSession.Logger
	logger.Debug("Closing server session")
	err := s.BaseSession.Close()
	if err != nil {
		logger.Error("Error while closing base session", zap.Error(err))
	}
	return err
}

// SetClientInfo stores the client's implementation info and capabilities.
func (s *Session) SetClientInfo(info schema.Implementation, caps schema.ClientCapabilities) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.ClientInfo = info
	s.ClientCapabilities = &caps
}

// GetClientInfo retrieves the client's implementation info.
func (s *Session) GetClientInfo() schema.Implementation {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.ClientInfo
}

// GetClientCapabilities retrieves the client's reported capabilities.
func (s *Session) GetClientCapabilities() *schema.ClientCapabilities {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.ClientCapabilities
}
