package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/config"
	"github.com/graphmem/graphmem/shared/schema"
)

const (
	MCP_PATH           = "/mcp"            // Unified endpoint path
	HEALTH_PATH        = "/health"         // Liveness probe
	MCP_SESSION_HEADER = "Mcp-Session-Id"  // Header for session ID

	// SSE event names
	sseEventNotification = "mcpNotification"
	sseEventResponse     = "mcpResponse"

	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"

	statusNoContent           = http.StatusNoContent           // 204
	statusAccepted            = http.StatusAccepted            // 202
	statusBadRequest          = http.StatusBadRequest          // 400
	statusPayloadTooLarge     = http.StatusRequestEntityTooLarge // 413
	statusUnsupportedMedia    = http.StatusUnsupportedMediaType  // 415
	statusMethodNotAllowed    = http.StatusMethodNotAllowed    // 405
	statusInternalServerError = http.StatusInternalServerError // 500
)

// Transport serves the MCP endpoint over HTTP: POST for requests (JSON or
// SSE-streamed responses), GET for a session-scoped notification stream,
// DELETE for session termination.
type Transport struct {
	sessionManager mcp.ISessionManager
	logger         *zap.Logger
	config         *config.Config
	startedAt      time.Time
}

// New creates the HTTP transport handler.
func New(sessionManager mcp.ISessionManager, cfg *config.Config, logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionManager == nil {
		return nil, errors.New("session manager cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	return &Transport{
		sessionManager: sessionManager,
		logger:         logger.Named("transport"),
		config:         cfg,
		startedAt:      time.Now(),
	}, nil
}

// RegisterHandlers registers the MCP and health handlers with the HTTP mux.
func (t *Transport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(MCP_PATH, t.HandleMCP())
	mux.HandleFunc(HEALTH_PATH, t.HandleHealth())
	t.logger.Info("Registered MCP handler", zap.String("path", MCP_PATH), zap.String("health", HEALTH_PATH))
}

func (t *Transport) HandleMCP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := t.logger

		logger.Debug("Received request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remoteAddr", r.RemoteAddr),
		)

		t.applyCORS(w, r)

		switch r.Method {
		case http.MethodPost:
			t.handlePOST(w, r, logger)
		case http.MethodGet:
			t.handleGET(w, r, logger)
		case http.MethodDelete:
			t.handleDELETE(w, r, logger)
		case http.MethodOptions:
			w.Header().Set("Allow", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+MCP_SESSION_HEADER)
			w.WriteHeader(http.StatusNoContent)
		default:
			logger.Warn("Method not allowed", zap.String("method", r.Method))
			http.Error(w, "Method Not Allowed", statusMethodNotAllowed)
		}
	}
}

// applyCORS sets the allow-origin header when the request origin matches the
// configured list. An empty list keeps the endpoint same-origin only.
func (t *Transport) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, allowed := range t.config.CORSOrigins() {
		if allowed == "*" || allowed == origin {
			if allowed == "*" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Expose-Headers", MCP_SESSION_HEADER)
			return
		}
	}
}

// getSession resolves the Mcp-Session-Id header to a live session. When
// allowCreate is set and no header is present, a fresh session is issued
// (the initialize path). An unknown or expired id yields the session-invalid
// JSON-RPC error, already written to w.
func (t *Transport) getSession(w http.ResponseWriter, r *http.Request, logger *zap.Logger, allowCreate bool) (shared.ISession, error) {
	sessionID := r.Header.Get(MCP_SESSION_HEADER)

	if sessionID == "" {
		if !allowCreate {
			logger.Warn("Missing session header")
			sendJSONRPCErrorResponse(w, http.StatusOK, nil, shared.JSONRPCErrorServerError, shared.ErrMsgSessionInvalid, nil, logger)
			return nil, errors.New("session header required")
		}
		return t.sessionManager.CreateSession(nil), nil
	}

	session, err := t.sessionManager.GetSession(sessionID)
	if err != nil {
		logger.Warn("Session not found", zap.String("sessionId", sessionID), zap.Error(err))
		sendJSONRPCErrorResponse(w, http.StatusOK, nil, shared.JSONRPCErrorServerError, shared.ErrMsgSessionInvalid, nil, logger)
		return nil, err
	}
	session.UpdateLastActivity()
	return session, nil
}

// --- Helper to send JSON responses ---
func sendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Failed to encode JSON response", zap.Error(err))
		}
	}
}

// --- Helper to send JSON-RPC errors ---
func sendJSONRPCErrorResponse(w http.ResponseWriter, statusCode int, id *schema.RequestID, code int, message string, data interface{}, logger *zap.Logger) {
	errResp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id, // nil marshals as "id":null, required for pre-dispatch errors
		Error: &shared.JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	logger.Warn("Sending JSON-RPC Error",
		zap.Int("code", code),
		zap.String("message", message),
		zap.Any("reqID", id),
	)
	sendJSONResponse(w, statusCode, errResp, logger)
}
