package transport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// handleGET opens a session-scoped SSE stream for server-initiated
// notifications. Unused by the core tools but kept for clients that
// subscribe before posting work.
func (t *Transport) handleGET(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if !strings.Contains(strings.ToLower(r.Header.Get("Accept")), contentTypeSSE) {
		logger.Warn("GET without text/event-stream accept header")
		http.Error(w, "Not Acceptable: must accept text/event-stream", http.StatusNotAcceptable)
		return
	}

	session, err := t.getSession(w, r, logger, false)
	if err != nil {
		return // error response already written
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming unsupported by response writer", zap.String("sessionId", session.GetID()))
		http.Error(w, "Streaming unsupported", statusInternalServerError)
		return
	}

	output, ok := session.AcquireOutput()
	if !ok {
		logger.Warn("Session output already claimed by another stream", zap.String("sessionId", session.GetID()))
		http.Error(w, "Conflict: stream already open", http.StatusConflict)
		return
	}
	defer session.ReleaseOutput()

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCP_SESSION_HEADER, session.GetID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Info("Opened session event stream", zap.String("sessionId", session.GetID()))

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Client closed event stream", zap.String("sessionId", session.GetID()))
			return
		case msg, ok := <-output:
			if !ok {
				logger.Info("Session closed, ending event stream", zap.String("sessionId", session.GetID()))
				return
			}
			if msg == nil {
				continue
			}
			event := sseEventNotification
			var payload interface{} = msg
			if msg.ID != nil && !msg.ID.IsEmpty() && msg.Method == nil {
				event = sseEventResponse
				payload = responseFrame(msg)
			}
			if err := writeSSEEvent(w, flusher, event, payload, logger); err != nil {
				return
			}
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
