package capability

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// Supported protocol versions. The server prefers the latest.
var supportedVersions = map[string]bool{
	schema.PROTOCOL_VERSION: true, // 2025-03-26
}

const latestSupportedVersion = schema.PROTOCOL_VERSION

var _ shared.ICapability = (*BaseCapability)(nil)

// BaseCapability provides handlers for the fundamental MCP methods:
// initialize, ping and the initialized notification.
type BaseCapability struct {
	logger   *zap.Logger
	manager  mcp.ISessionManager
	handlers map[string]shared.MethodHandler
}

// NewBase creates a new BaseCapability.
func NewBase(logger *zap.Logger, manager mcp.ISessionManager) *BaseCapability {
	bc := &BaseCapability{
		logger:  logger,
		manager: manager,
	}
	bc.handlers = map[string]shared.MethodHandler{
		"ping":                      bc.handlePing,
		"initialize":                bc.handleInitialize,
		"notifications/initialized": bc.handleNotificationInitialized,
	}
	return bc
}

func (bc *BaseCapability) GetHandlers() map[string]shared.MethodHandler {
	return bc.handlers
}

func (bc *BaseCapability) SetCapabilities(s *schema.ServerCapabilities) {
	// The base capability is implicitly required for the handshake and has
	// no capability flags of its own.
}

// handleInitialize handles the 'initialize' request from the client.
func (bc *BaseCapability) handleInitialize(msg *shared.Message) (interface{}, error) {
	sessionID := msg.Session.GetID()
	logger := bc.logger.With(zap.String("sessionID", sessionID), zap.String("method", "initialize"))
	logger.Debug("Handling initialize request")

	var params schema.InitializeRequestParams
	if msg.Params == nil {
		logger.Warn("Received initialize request with missing params")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal initialize params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}

	logger.Info("Received initialize request",
		zap.String("requestedVersion", params.ProtocolVersion),
		zap.String("clientName", params.ClientInfo.Name),
		zap.String("clientVersion", params.ClientInfo.Version),
	)

	negotiatedVersion := latestSupportedVersion
	if params.ProtocolVersion != "" && supportedVersions[params.ProtocolVersion] {
		negotiatedVersion = params.ProtocolVersion
	} else if params.ProtocolVersion != "" {
		logger.Warn("Client requested unsupported version, responding with server's latest",
			zap.String("requestedVersion", params.ProtocolVersion),
			zap.String("negotiatedVersion", negotiatedVersion))
	}

	msg.Session.SetNegotiatedVersion(negotiatedVersion)
	if serverSession, ok := msg.Session.(mcp.IServerSession); ok {
		serverSession.SetClientInfo(params.ClientInfo, params.Capabilities)
	}
	msg.Session.SetStatus(shared.StatusConnecting)

	return schema.InitializeResult{
		ProtocolVersion: negotiatedVersion,
		Capabilities:    msg.Session.Input().ServerCapabilities(),
		ServerInfo:      *bc.manager.GetServerInfo(),
		SessionID:       sessionID,
	}, nil
}

func (bc *BaseCapability) handleNotificationInitialized(msg *shared.Message) (interface{}, error) {
	msg.Session.SetStatus(shared.StatusConnected)
	bc.logger.Debug("Session initialized", zap.String("sessionID", msg.Session.GetID()))
	return nil, nil
}

func (bc *BaseCapability) handlePing(msg *shared.Message) (interface{}, error) {
	return map[string]interface{}{}, nil
}
