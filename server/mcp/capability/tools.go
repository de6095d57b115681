package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// ToolHandler executes one tool call. It may stream intermediate events via
// ctx.SendProgress and returns the final value, or an error. The dispatcher
// delivers exactly one terminal outcome regardless of handler behavior.
type ToolHandler func(ctx *ExecContext, arguments schema.Arguments) (interface{}, error)

// Tool pairs the advertised descriptor with its compiled input schema and handler.
type Tool struct {
	schema.Tool
	compiled *jsonschema.Schema
	Handler  ToolHandler
}

// ToolsCapability registers tools and dispatches tools/list and tools/call.
type ToolsCapability struct {
	manager     *mcp.Manager
	logger      *zap.Logger
	provisioner *graph.Provisioner
	// requestTimeout is read per call so a config reload takes effect
	// without restarting.
	requestTimeout func() time.Duration

	mu       sync.RWMutex
	tools    map[string]*Tool
	order    []string // registration order, stable tools/list output
	handlers map[string]shared.MethodHandler
}

// NewToolsCapability creates the tools capability. The timeout func supplies
// the per-request deadline.
func NewToolsCapability(manager *mcp.Manager, provisioner *graph.Provisioner, requestTimeout func() time.Duration, logger *zap.Logger) *ToolsCapability {
	tc := &ToolsCapability{
		manager:        manager,
		logger:         logger,
		provisioner:    provisioner,
		requestTimeout: requestTimeout,
		tools:          make(map[string]*Tool),
	}
	tc.handlers = map[string]shared.MethodHandler{
		"tools/list": tc.handleToolsList,
		"tools/call": tc.handleToolsCall,
	}
	return tc
}

func (tc *ToolsCapability) GetHandlers() map[string]shared.MethodHandler {
	return tc.handlers
}

func (tc *ToolsCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Tools = &schema.Capability{}
}

// AddTool registers a tool. The input schema is compiled once here; the tool
// set is immutable after startup.
func (tc *ToolsCapability) AddTool(name, description string, inputSchema json.RawMessage, annotations *schema.ToolAnnotations, handler ToolHandler) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, exists := tc.tools[name]; exists {
		return fmt.Errorf("tool with name '%s' already exists", name)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for tool '%s'", name)
	}

	var compiled *jsonschema.Schema
	if len(inputSchema) > 0 {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(inputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for tool '%s': %w", name, err)
		}
		compiler := jsonschema.NewCompiler()
		resource := fmt.Sprintf("graphmem://tools/%s.json", name)
		if err := compiler.AddResource(resource, doc); err != nil {
			return fmt.Errorf("failed to add schema resource for tool '%s': %w", name, err)
		}
		compiled, err = compiler.Compile(resource)
		if err != nil {
			return fmt.Errorf("failed to compile input schema for tool '%s': %w", name, err)
		}
	}

	tc.tools[name] = &Tool{
		Tool: schema.Tool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
			Annotations: annotations,
		},
		compiled: compiled,
		Handler:  handler,
	}
	tc.order = append(tc.order, name)

	tc.logger.Info("Added tool", zap.String("name", name))
	return nil
}

// handleToolsList handles the "tools/list" request from the client.
func (tc *ToolsCapability) handleToolsList(msg *shared.Message) (interface{}, error) {
	logger := tc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "tools/list"))
	logger.Debug("Handling tools list request")

	tc.mu.RLock()
	defer tc.mu.RUnlock()

	toolsList := make([]schema.Tool, 0, len(tc.tools))
	for _, name := range tc.order {
		toolsList = append(toolsList, tc.tools[name].Tool)
	}

	return schema.ListToolsResult{Tools: toolsList}, nil
}

// errRequestTimeout is the cancellation cause distinguishing a deadline
// expiry from a client disconnect.
var errRequestTimeout = errors.New("request timeout")

// handleToolsCall handles the "tools/call" request: resolve the tool,
// validate arguments, run the handler under a deadline and bridge the
// outcome to the progress sink. It always returns (nil, nil) because the
// terminal response goes through the sink.
func (tc *ToolsCapability) handleToolsCall(msg *shared.Message) (interface{}, error) {
	logger := tc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "tools/call"))

	var params schema.CallToolRequestParams
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal tools/call params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("toolName", params.Name))

	tc.mu.RLock()
	tool, exists := tc.tools[params.Name]
	tc.mu.RUnlock()

	if !exists {
		logger.Warn("Tool not found")
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorMethodNotFound,
			Message: fmt.Sprintf("Tool not found: %s", params.Name),
		}
	}

	if tool.compiled != nil {
		args := map[string]interface{}(params.Arguments)
		if args == nil {
			args = map[string]interface{}{}
		}
		if err := tool.compiled.Validate(interface{}(args)); err != nil {
			logger.Warn("Tool arguments failed schema validation", zap.Error(err))
			return nil, &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorInvalidParams,
				Message: fmt.Sprintf("Invalid arguments for tool %s", params.Name),
				Data:    err.Error(),
			}
		}
	}

	tc.invoke(msg, tool, params.Arguments, logger)
	return nil, nil
}

// invoke runs the handler under the per-request deadline and enforces the
// one-terminal rule through the sink.
func (tc *ToolsCapability) invoke(msg *shared.Message, tool *Tool, arguments schema.Arguments, logger *zap.Logger) {
	timeout := tc.requestTimeout()

	ctx, cancel := context.WithCancelCause(msg.Context())
	defer cancel(nil)
	msg.Session.Inflight().Register(msg.ID, cancel)
	defer msg.Session.Inflight().Done(msg.ID)

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() { cancel(errRequestTimeout) })
		defer timer.Stop()
	}

	sink := shared.NewProgressSink(msg.Session, msg.ID, logger)

	clientInfo := schema.Implementation{}
	if serverSession, ok := msg.Session.(mcp.IServerSession); ok {
		clientInfo = serverSession.GetClientInfo()
	}
	execCtx := &ExecContext{
		Ctx:    ctx,
		Logger: logger.With(zap.String("operationID", uuid.NewString())),
		Session: SessionView{
			ID:         msg.Session.GetID(),
			ClientInfo: clientInfo,
		},
		RequestID:   msg.ID,
		sink:        sink,
		provisioner: tc.provisioner,
	}

	done := make(chan struct{})
	var result interface{}
	var handlerErr error
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in tool handler", zap.Any("panic", r))
				handlerErr = &shared.JSONRPCError{
					Code:    shared.JSONRPCErrorInternal,
					Message: "Internal error",
					Data:    fmt.Sprint(r),
				}
			}
		}()
		result, handlerErr = tool.Handler(execCtx, arguments)
	}()

	select {
	case <-done:
		if handlerErr != nil {
			sink.Fail(mapToolError(handlerErr))
			return
		}
		sink.Complete(wrapCallToolResult(result, logger))
	case <-ctx.Done():
		cause := context.Cause(ctx)
		if errors.Is(cause, errRequestTimeout) {
			logger.Warn("Tool call timed out", zap.Duration("timeout", timeout))
			sink.Fail(shared.NewServerError(shared.ErrMsgRequestTimeout, nil))
			return
		}
		// Client disconnect, session termination or shutdown: the peer is
		// gone, no terminal response is emitted.
		logger.Info("Tool call cancelled", zap.Error(cause))
		sink.Discard()
	}
}

// wrapCallToolResult places a handler's return value in the MCP envelope.
// A handler that already returns the envelope passes through.
func wrapCallToolResult(result interface{}, logger *zap.Logger) interface{} {
	if env, ok := result.(schema.CallToolResult); ok {
		return env
	}
	if env, ok := result.(*schema.CallToolResult); ok {
		return env
	}
	text, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to serialize tool result", zap.Error(err))
		return schema.CallToolResult{
			Content: schema.NewTextContent("failed to serialize tool result"),
			IsError: true,
		}
	}
	return schema.CallToolResult{
		Content: schema.NewTextContent(string(text)),
		IsError: false,
	}
}

// mapToolError normalizes handler errors to JSON-RPC error objects.
// Database open failures and plain errors map to the internal error code
// with the underlying message in data.
func mapToolError(err error) *shared.JSONRPCError {
	var rpcErr *shared.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, graph.ErrUnavailable) {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInternal,
			Message: "database unavailable",
			Data:    err.Error(),
		}
	}
	return &shared.JSONRPCError{
		Code:    shared.JSONRPCErrorInternal,
		Message: "Internal error",
		Data:    err.Error(),
	}
}
