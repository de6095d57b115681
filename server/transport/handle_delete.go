package transport

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
)

// handleDELETE terminates the session named in the Mcp-Session-Id header.
func (t *Transport) handleDELETE(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	sessionID := r.Header.Get(MCP_SESSION_HEADER)
	if sessionID == "" {
		logger.Warn("Missing Mcp-Session-Id header for DELETE request")
		sendJSONRPCErrorResponse(w, statusBadRequest, nil, shared.JSONRPCErrorInvalidRequest, "Mcp-Session-Id header required", nil, logger)
		return
	}

	if _, err := t.sessionManager.GetSession(sessionID); err != nil {
		logger.Warn("Session not found for DELETE request", zap.String("sessionId", sessionID), zap.Error(err))
		sendJSONRPCErrorResponse(w, http.StatusOK, nil, shared.JSONRPCErrorServerError, shared.ErrMsgSessionInvalid, nil, logger)
		return
	}

	logger.Info("Received DELETE request, closing session", zap.String("sessionId", sessionID))
	t.sessionManager.CloseSession(sessionID)

	w.WriteHeader(statusNoContent)
}
