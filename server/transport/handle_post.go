package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// keepaliveInterval paces SSE comment frames so intermediaries do not drop
// an idle stream.
const keepaliveInterval = 15 * time.Second

// handlePOST processes POST requests on the MCP endpoint: size and
// content-type guards, session resolution, message admission, then response
// delivery as plain JSON or an SSE stream depending on the Accept header.
func (t *Transport) handlePOST(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	maxRequestSize := t.config.MaxRequestSize()

	// Declared-size check: reject on the header alone, before reading the body.
	if r.ContentLength > maxRequestSize {
		logger.Warn("Declared request size exceeds limit",
			zap.Int64("contentLength", r.ContentLength),
			zap.Int64("maxRequestSize", maxRequestSize))
		sendJSONRPCErrorResponse(w, statusPayloadTooLarge, nil, shared.JSONRPCErrorServerError, shared.ErrMsgPayloadTooLarge, nil, logger)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), contentTypeJSON) {
		logger.Warn("Unsupported content type", zap.String("contentType", contentType))
		sendJSONRPCErrorResponse(w, statusUnsupportedMedia, nil, shared.JSONRPCErrorInvalidRequest, "Content-Type must be application/json", nil, logger)
		return
	}

	session, err := t.getSession(w, r, logger, true)
	if err != nil {
		return // error response already written
	}

	// Streaming-size check: guards against a missing or spoofed Content-Length.
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	bodyBytes, bodyErr := io.ReadAll(r.Body)
	if bodyErr != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(bodyErr, &maxBytesErr) {
			logger.Warn("Request body exceeds limit", zap.Int64("maxRequestSize", maxRequestSize))
			sendJSONRPCErrorResponse(w, statusPayloadTooLarge, nil, shared.JSONRPCErrorServerError, shared.ErrMsgPayloadTooLarge, nil, logger)
			return
		}
		logger.Error("Failed to read request body", zap.Error(bodyErr))
		sendJSONRPCErrorResponse(w, statusBadRequest, nil, shared.JSONRPCErrorInvalidRequest, "Failed to read request body", nil, logger)
		return
	}
	defer r.Body.Close()

	msgs, err := shared.ParseMessages(session, bodyBytes)
	if err != nil {
		logger.Error("Failed to parse JSON-RPC message(s)", zap.Error(err))
		sendJSONRPCErrorResponse(w, http.StatusOK, nil, shared.JSONRPCErrorParseError, "Parse error", err.Error(), logger)
		return
	}

	isInitializeRequest := len(msgs) > 0 && msgs[0].Method != nil && *msgs[0].Method == "initialize"

	// Clients often skip notifications/initialized before their first request,
	// so Connecting is accepted alongside Connected.
	if !isInitializeRequest &&
		session.GetStatus() != shared.StatusConnecting &&
		session.GetStatus() != shared.StatusConnected {
		logger.Warn("Non-initialize request on uninitialized session", zap.String("sessionId", session.GetID()))
		sendJSONRPCErrorResponse(w, http.StatusOK, nil, shared.JSONRPCErrorInvalidRequest, "Session not initialized", nil, logger)
		return
	}

	clientAcceptsSSE := strings.Contains(strings.ToLower(r.Header.Get("Accept")), contentTypeSSE)

	var requestIDs []*schema.RequestID
	for _, msg := range msgs {
		msg.Session = session
		msg.Timestamp = time.Now()
		msg.Ctx = r.Context()

		if msg.IsRequest() {
			requestIDs = append(requestIDs, msg.ID)
		}

		if putErr := session.Input().Put(msg); putErr != nil {
			logger.Error("Failed to admit message", zap.Error(putErr), zap.String("sessionId", session.GetID()), zap.Any("msgId", msg.ID))
		}
	}

	// Notifications only: acknowledge without waiting for output.
	if len(requestIDs) == 0 {
		w.WriteHeader(statusAccepted)
		logger.Debug("POST processed, returning 202 Accepted", zap.String("sessionId", session.GetID()), zap.Int("messageCount", len(msgs)))
		return
	}

	if clientAcceptsSSE {
		t.respondStream(w, r, session, logger, requestIDs)
	} else {
		t.respondJSON(w, r, session, logger, requestIDs)
	}
}

// collectTimeout bounds how long the handler waits for terminal responses.
// The dispatcher's own per-request timer fires first, so a small grace on
// top of the configured timeout is enough.
func (t *Transport) collectTimeout() time.Duration {
	return t.config.RequestTimeout() + 5*time.Second
}

// respondJSON drains the session output until every admitted request has a
// terminal response, then writes a single JSON body. Progress notifications
// cannot be delivered on this path and are dropped.
func (t *Transport) respondJSON(w http.ResponseWriter, r *http.Request, session shared.ISession, logger *zap.Logger, requestIDs []*schema.RequestID) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(MCP_SESSION_HEADER, session.GetID())

	pending := pendingSet(requestIDs)

	output, ok := session.AcquireOutput()
	if !ok {
		logger.Error("Failed to acquire output channel", zap.String("sessionId", session.GetID()))
		sendJSONRPCErrorResponse(w, statusInternalServerError, nil, shared.JSONRPCErrorInternal, "Session output busy", nil, logger)
		return
	}
	defer session.ReleaseOutput()

	responseTimer := time.NewTimer(t.collectTimeout())
	defer responseTimer.Stop()

	responses := make([]interface{}, 0, len(requestIDs))
collectLoop:
	for {
		select {
		case respMsg, ok := <-output:
			if !ok {
				logger.Info("Session output channel closed", zap.String("sessionId", session.GetID()))
				break collectLoop
			}
			if respMsg == nil {
				continue
			}
			if respMsg.ID == nil || respMsg.ID.IsEmpty() {
				logger.Debug("Dropping notification on JSON response path",
					zap.String("sessionId", session.GetID()),
					zap.String("method", shared.NilIfNil(respMsg.Method)))
				continue
			}
			if _, expected := pending[respMsg.ID.String()]; !expected {
				continue
			}
			responses = append(responses, responseFrame(respMsg))
			delete(pending, respMsg.ID.String())
			if len(pending) == 0 {
				break collectLoop
			}

		case <-responseTimer.C:
			logger.Warn("Timeout waiting for response(s)", zap.String("sessionId", session.GetID()))
			break collectLoop

		case <-r.Context().Done():
			logger.Warn("Client disconnected while waiting for response", zap.String("sessionId", session.GetID()))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if len(requestIDs) == 1 && len(responses) == 1 {
		if err := json.NewEncoder(w).Encode(responses[0]); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
		return
	}
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		logger.Error("Failed to encode batch response", zap.Error(err))
	}
}

// respondStream delivers the output as SSE: progress and other notifications
// as mcpNotification events, terminal responses as mcpResponse events. The
// stream closes once every admitted request has its terminal response.
func (t *Transport) respondStream(w http.ResponseWriter, r *http.Request, session shared.ISession, logger *zap.Logger, requestIDs []*schema.RequestID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming unsupported by response writer", zap.String("sessionId", session.GetID()))
		http.Error(w, "Streaming unsupported", statusInternalServerError)
		return
	}

	pending := pendingSet(requestIDs)

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCP_SESSION_HEADER, session.GetID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	output, ok := session.AcquireOutput()
	if !ok {
		logger.Error("Failed to acquire output channel", zap.String("sessionId", session.GetID()))
		return
	}
	defer session.ReleaseOutput()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(t.collectTimeout())
	defer deadline.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Client disconnected from SSE stream", zap.String("sessionId", session.GetID()))
			return
		case <-deadline.C:
			logger.Warn("Timeout waiting for terminal responses on SSE stream", zap.String("sessionId", session.GetID()))
			return
		case msg, ok := <-output:
			if !ok {
				logger.Info("Session output channel closed", zap.String("sessionId", session.GetID()))
				return
			}
			if msg == nil {
				continue
			}

			if msg.ID == nil || msg.ID.IsEmpty() {
				// Notification (progress or otherwise).
				if err := writeSSEEvent(w, flusher, sseEventNotification, msg, logger); err != nil {
					return
				}
				continue
			}

			msgID := msg.ID.String()
			if _, expected := pending[msgID]; !expected {
				continue
			}
			if err := writeSSEEvent(w, flusher, sseEventResponse, responseFrame(msg), logger); err != nil {
				return
			}
			delete(pending, msgID)
			if len(pending) == 0 {
				logger.Debug("All terminal responses sent, closing SSE stream", zap.String("sessionId", session.GetID()))
				return
			}
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// pendingSet builds the set of request ids awaiting a terminal response.
func pendingSet(requestIDs []*schema.RequestID) map[string]struct{} {
	pending := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		if id != nil {
			pending[id.String()] = struct{}{}
		}
	}
	return pending
}

// responseFrame converts an outbound message to its wire response shape.
func responseFrame(msg *shared.Message) interface{} {
	if msg.Error != nil {
		return shared.JSONRPCErrorResponse{
			JSONRPC: shared.JSONRPCVersion,
			ID:      msg.ID,
			Error:   msg.Error,
		}
	}
	result := msg.Result
	if result == nil {
		raw := json.RawMessage("null")
		result = &raw
	}
	return shared.JSONRPCResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      msg.ID,
		Result:  result,
	}
}

// writeSSEEvent writes one SSE frame: "event: <name>\ndata: <json>\n\n".
func writeSSEEvent(w io.Writer, flusher http.Flusher, event string, payload interface{}, logger *zap.Logger) error {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal SSE event data", zap.Error(err))
		return nil // skip the frame, keep the stream
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		logger.Warn("Failed to write SSE event", zap.Error(err))
		return err
	}
	flusher.Flush()
	return nil
}
