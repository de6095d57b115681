package capability

import (
	"context"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// SessionView is the immutable slice of session state handlers may see.
type SessionView struct {
	ID         string
	ClientInfo schema.Implementation
}

// ExecContext is the value passed to every tool handler. Handlers must not
// retain it beyond their own invocation.
type ExecContext struct {
	// Ctx is cancelled on client disconnect, request timeout, session
	// termination and server shutdown. Handlers check it between long steps.
	Ctx context.Context

	Logger    *zap.Logger
	Session   SessionView
	RequestID *schema.RequestID

	sink        *shared.ProgressSink
	provisioner *graph.Provisioner
}

// NewExecContext builds a handler context outside the dispatcher, for code
// that invokes tool handlers directly.
func NewExecContext(ctx context.Context, logger *zap.Logger, session SessionView, requestID *schema.RequestID, sink *shared.ProgressSink, provisioner *graph.Provisioner) *ExecContext {
	return &ExecContext{
		Ctx:         ctx,
		Logger:      logger,
		Session:     session,
		RequestID:   requestID,
		sink:        sink,
		provisioner: provisioner,
	}
}

// SendProgress emits one intermediate progress event for this request.
func (e *ExecContext) SendProgress(payload shared.ProgressPayload) {
	e.sink.Progress(payload)
}

// AcquireDB resolves the per-repository, per-branch database handle. The
// returned handle must be Released before the handler returns.
func (e *ExecContext) AcquireDB(clientProjectRoot, repository, branch string) (*graph.Handle, error) {
	return e.provisioner.Acquire(e.Ctx, clientProjectRoot, repository, branch)
}
