package transport_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/server/mcp/validators"
	"github.com/graphmem/graphmem/server/transport"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/config"
	"github.com/graphmem/graphmem/shared/schema"
	"github.com/graphmem/graphmem/tools"
)

// testConfigYAML keeps request handling fast and the size limit small enough
// to trip from a test body.
const testConfigYAML = `
server:
  name: graphmem-test
  version: 0.0.1
  max_request_size: 2048
  request_timeout_ms: 300
  cors_origins:
    - "https://client.example"
`

const anySchema = `{"type":"object"}`

type serverTestEnv struct {
	t       *testing.T
	server  *httptest.Server
	manager *mcp.Manager
	cfg     *config.Config

	// spyCalls counts invocations of the spy tool.
	spyCalls atomic.Int32
}

func (env *serverTestEnv) mcpURL() string    { return env.server.URL + transport.MCP_PATH }
func (env *serverTestEnv) healthURL() string { return env.server.URL + transport.HEALTH_PATH }

// setupServerTest assembles the full HTTP stack against a real session
// manager, with an echo tool, a streaming tool and a tool that never
// finishes on its own.
func setupServerTest(t *testing.T) *serverTestEnv {
	t.Helper()
	logger := zap.NewNop()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfigYAML), 0o644))
	cfg, err := config.Load(cfgPath, logger)
	require.NoError(t, err)

	manager := mcp.NewManager(logger, schema.Implementation{Name: cfg.ServerName(), Version: cfg.ServerVersion()})
	provisioner := graph.NewProvisioner(cfg.DBRelativeDir(), cfg.DBExtension(), logger)

	baseCap := capability.NewBase(logger, manager)
	toolsCap := capability.NewToolsCapability(manager, provisioner, cfg.RequestTimeout, logger)
	require.NoError(t, tools.RegisterAll(toolsCap))

	env := &serverTestEnv{t: t, manager: manager, cfg: cfg}

	require.NoError(t, toolsCap.AddTool("spy", "Counts its own invocations.", json.RawMessage(anySchema), nil,
		func(ctx *capability.ExecContext, arguments schema.Arguments) (interface{}, error) {
			env.spyCalls.Add(1)
			return map[string]interface{}{"called": true}, nil
		}))

	require.NoError(t, toolsCap.AddTool("echo", "Echoes its arguments back.", json.RawMessage(anySchema), nil,
		func(ctx *capability.ExecContext, arguments schema.Arguments) (interface{}, error) {
			return map[string]interface{}{"echoed": arguments["value"]}, nil
		}))

	require.NoError(t, toolsCap.AddTool("stream", "Emits two progress events, then a result.", json.RawMessage(anySchema), nil,
		func(ctx *capability.ExecContext, arguments schema.Arguments) (interface{}, error) {
			ctx.SendProgress(shared.ProgressPayload{Status: "initializing", Message: "starting"})
			ctx.SendProgress(shared.ProgressPayload{Status: "in_progress", Message: "halfway"})
			return map[string]interface{}{"done": true}, nil
		}))

	require.NoError(t, toolsCap.AddTool("slow", "Blocks until the request is cancelled.", json.RawMessage(anySchema), nil,
		func(ctx *capability.ExecContext, arguments schema.Arguments) (interface{}, error) {
			<-ctx.Ctx.Done()
			// Let the dispatcher's cancellation branch win the race.
			time.Sleep(20 * time.Millisecond)
			return nil, ctx.Ctx.Err()
		}))

	manager.AddValidator(validators.CreateDefaultValidators(cfg.MaxRequestSize())...)
	manager.AddCapability(baseCap, toolsCap)

	transportInstance, err := transport.New(manager, cfg, logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	transportInstance.RegisterHandlers(mux)
	env.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		env.server.Close()
		manager.Shutdown()
	})

	return env
}

// createJsonRpcRequestBody marshals a single request frame. A nil id yields
// a notification.
func createJsonRpcRequestBody(t *testing.T, id interface{}, method string, params interface{}) []byte {
	t.Helper()
	frame := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if id != nil {
		frame["id"] = id
	}
	if params != nil {
		frame["params"] = params
	}
	body, err := json.Marshal(frame)
	require.NoError(t, err)
	return body
}

func toolCallParams(name string, arguments map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"name": name, "arguments": arguments}
}

// makePostRequest posts a body to the MCP endpoint. Empty accept defaults
// to plain JSON responses.
func makePostRequest(t *testing.T, url, sessionID, accept string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if sessionID != "" {
		req.Header.Set(transport.MCP_SESSION_HEADER, sessionID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// initializeSession performs the MCP handshake and returns the session id.
func initializeSession(t *testing.T, env *serverTestEnv) string {
	t.Helper()
	body := createJsonRpcRequestBody(t, 1, "initialize", map[string]interface{}{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "test-client", "version": "1.0.0"},
	})
	resp := makePostRequest(t, env.mcpURL(), "", "", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sessionID := resp.Header.Get(transport.MCP_SESSION_HEADER)
	require.NotEmpty(t, sessionID)
	return sessionID
}

type jsonRpcFrame struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *json.RawMessage      `json:"id"`
	Result  map[string]interface{} `json:"result"`
	Error   *shared.JSONRPCError  `json:"error"`
}

func decodeSingleResponse(t *testing.T, body io.Reader) jsonRpcFrame {
	t.Helper()
	var frame jsonRpcFrame
	require.NoError(t, json.NewDecoder(body).Decode(&frame))
	return frame
}

// readNextSseEvent reads one "event:"/"data:" pair, skipping keepalive
// comments. Returns io.EOF once the stream closes.
func readNextSseEvent(reader *bufio.Reader) (event string, data string, err error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
			if event == "" {
				return "", "", fmt.Errorf("data line before event line: %q", line)
			}
			return event, data, nil
		}
	}
}
