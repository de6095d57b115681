package shared

import (
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared/schema"
)

// ProgressMethod is the notification method used for intermediate events.
const ProgressMethod = "notifications/progress"

// ProgressPayload is the minimum shape of an intermediate progress event.
// Handlers may attach arbitrary extra fields through Extra.
type ProgressPayload struct {
	Status  string `json:"status"` // initializing | in_progress | complete | error
	Message string `json:"message"`
	// IsFinal marks the last progress notification; the terminal JSON-RPC
	// response still follows independently.
	IsFinal bool `json:"isFinal,omitempty"`
	// Extra fields are merged into the serialized payload.
	Extra map[string]interface{} `json:"-"`
}

func (p ProgressPayload) serialize() (string, error) {
	obj := map[string]interface{}{
		"status":  p.Status,
		"message": p.Message,
	}
	if p.IsFinal {
		obj["isFinal"] = true
	}
	for k, v := range p.Extra {
		obj[k] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ProgressSink is the per-request delivery primitive: zero or more progress
// notifications followed by exactly one terminal response. Calls after the
// terminal outcome are dropped with a warning.
type ProgressSink struct {
	session   ISession
	requestID *schema.RequestID
	logger    *zap.Logger
	closed    atomic.Bool
}

// NewProgressSink binds a sink to one admitted request.
func NewProgressSink(session ISession, requestID *schema.RequestID, logger *zap.Logger) *ProgressSink {
	return &ProgressSink{
		session:   session,
		requestID: requestID,
		logger:    logger.With(zap.String("requestID", requestID.String())),
	}
}

// Progress emits one notifications/progress frame correlated by the request id.
func (p *ProgressSink) Progress(payload ProgressPayload) {
	if p.closed.Load() {
		p.logger.Warn("Progress after terminal response dropped")
		return
	}
	text, err := payload.serialize()
	if err != nil {
		p.logger.Error("Failed to serialize progress payload", zap.Error(err))
		return
	}
	p.session.SendNotification(ProgressMethod, schema.ProgressNotificationParams{
		ProgressToken: p.requestID.Value,
		Content:       schema.NewTextContent(text),
		IsFinal:       payload.IsFinal,
	})
}

// Complete delivers the terminal success response and closes the sink.
func (p *ProgressSink) Complete(result interface{}) {
	if !p.closed.CompareAndSwap(false, true) {
		p.logger.Warn("Complete after terminal response dropped")
		return
	}
	p.session.Inflight().Done(p.requestID)
	p.session.SendResponse(p.requestID, result, nil)
}

// Fail delivers the terminal error response and closes the sink.
func (p *ProgressSink) Fail(err error) {
	if !p.closed.CompareAndSwap(false, true) {
		p.logger.Warn("Fail after terminal response dropped", zap.Error(err))
		return
	}
	p.session.Inflight().Done(p.requestID)
	p.session.SendResponse(p.requestID, nil, err)
}

// Discard closes the sink without emitting a response. Used when the peer
// is gone and no one is listening for a terminal outcome.
func (p *ProgressSink) Discard() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.session.Inflight().Done(p.requestID)
}

// Closed reports whether the terminal outcome has been delivered.
func (p *ProgressSink) Closed() bool {
	return p.closed.Load()
}
