package shared

import (
	"context"
	"sync"
	"time"

	"github.com/graphmem/graphmem/shared/schema"
	"go.uber.org/zap"
)

// inflightEntry holds the cancellation hook of one admitted request.
type inflightEntry struct {
	cancel    context.CancelCauseFunc
	startedAt time.Time
}

// InflightRegistry tracks the requests currently running on one session,
// keyed by request id. Terminating the session cancels every entry;
// delivering a terminal response removes its entry.
type InflightRegistry struct {
	mu      sync.Mutex
	entries map[string]inflightEntry
	logger  *zap.Logger
}

func NewInflightRegistry(logger *zap.Logger) *InflightRegistry {
	return &InflightRegistry{
		entries: make(map[string]inflightEntry),
		logger:  logger,
	}
}

// Register records an admitted request and its cancel hook. A duplicate id
// replaces the previous entry after cancelling it, so a misbehaving client
// cannot leak a handler.
func (r *InflightRegistry) Register(id *schema.RequestID, cancel context.CancelCauseFunc) {
	if id.IsEmpty() {
		return
	}
	key := id.String()
	r.mu.Lock()
	prev, exists := r.entries[key]
	r.entries[key] = inflightEntry{cancel: cancel, startedAt: time.Now()}
	r.mu.Unlock()
	if exists {
		r.logger.Warn("Duplicate in-flight request id, cancelling previous", zap.String("requestID", key))
		prev.cancel(context.Canceled)
	}
}

// Done removes the entry for a request that reached its terminal outcome.
func (r *InflightRegistry) Done(id *schema.RequestID) {
	if id.IsEmpty() {
		return
	}
	r.mu.Lock()
	delete(r.entries, id.String())
	r.mu.Unlock()
}

// CancelAll cancels every in-flight request with the given cause. Used on
// session termination and server shutdown.
func (r *InflightRegistry) CancelAll(cause error) {
	r.mu.Lock()
	entries := make([]inflightEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]inflightEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel(cause)
	}
	if len(entries) > 0 {
		r.logger.Debug("Cancelled in-flight requests", zap.Int("count", len(entries)))
	}
}

// Count returns the number of running requests.
func (r *InflightRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
