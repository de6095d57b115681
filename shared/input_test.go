package shared_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

type stubCapability struct {
	handlers map[string]shared.MethodHandler
}

func (c *stubCapability) GetHandlers() map[string]shared.MethodHandler  { return c.handlers }
func (c *stubCapability) SetCapabilities(s *schema.ServerCapabilities) {}

// startInput spins up an input processor and waits until its queue accepts work.
func startInput(t *testing.T, handlers map[string]shared.MethodHandler) (*shared.Input, *shared.BaseSession, <-chan *shared.Message) {
	t.Helper()
	logger := zap.NewNop()
	input := shared.NewInput(logger)
	input.AddCapability(&stubCapability{handlers: handlers})
	go input.Process()
	t.Cleanup(input.Stop)

	session := shared.NewBaseSession(logger, input, nil)
	output, ok := session.AcquireOutput()
	require.True(t, ok)
	t.Cleanup(func() {
		session.ReleaseOutput()
		_ = session.Close()
	})

	// Process installs the queue asynchronously.
	require.Eventually(t, func() bool {
		method := "ping-probe"
		return input.Put(&shared.Message{Session: session, Method: &method}) == nil
	}, time.Second, 5*time.Millisecond)

	return input, session, output
}

func request(session shared.ISession, id interface{}, method string) *shared.Message {
	return &shared.Message{
		Session: session,
		ID:      &schema.RequestID{Value: id},
		Method:  &method,
	}
}

func TestDispatchDeliversHandlerResult(t *testing.T) {
	_, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/echo": func(msg *shared.Message) (interface{}, error) {
			return map[string]string{"status": "ok"}, nil
		},
	})

	require.NoError(t, session.Input().Put(request(session, 1, "test/echo")))

	resp := receiveMessage(t, output)
	assert.Equal(t, 1, resp.ID.Value)
	require.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)

	var result map[string]string
	require.NoError(t, json.Unmarshal(*resp.Result, &result))
	assert.Equal(t, "ok", result["status"])
}

func TestDispatchUnknownMethod(t *testing.T) {
	_, session, output := startInput(t, nil)

	require.NoError(t, session.Input().Put(request(session, "r1", "no/such/method")))

	resp := receiveMessage(t, output)
	require.NotNil(t, resp.Error)
	assert.Equal(t, shared.JSONRPCErrorMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: no/such/method", resp.Error.Message)
}

func TestDispatchUnknownNotificationProducesNoResponse(t *testing.T) {
	_, session, output := startInput(t, nil)

	method := "no/such/method"
	require.NoError(t, session.Input().Put(&shared.Message{Session: session, Method: &method}))

	assertNoMessage(t, output)
}

func TestDispatchNilNilSendsNothing(t *testing.T) {
	// A handler that returns (nil, nil) has delivered its terminal outcome
	// elsewhere; the dispatcher must not respond for it.
	_, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/deferred": func(msg *shared.Message) (interface{}, error) {
			return nil, nil
		},
	})

	require.NoError(t, session.Input().Put(request(session, 2, "test/deferred")))

	assertNoMessage(t, output)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	_, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/panic": func(msg *shared.Message) (interface{}, error) {
			panic("handler exploded")
		},
	})

	require.NoError(t, session.Input().Put(request(session, 3, "test/panic")))

	resp := receiveMessage(t, output)
	require.NotNil(t, resp.Error)
	assert.Equal(t, shared.JSONRPCErrorInternal, resp.Error.Code)
	assert.Equal(t, "handler exploded", resp.Error.Data)
}

func TestDispatchHandlerError(t *testing.T) {
	_, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/fail": func(msg *shared.Message) (interface{}, error) {
			return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "bad args"}
		},
	})

	require.NoError(t, session.Input().Put(request(session, 4, "test/fail")))

	resp := receiveMessage(t, output)
	require.NotNil(t, resp.Error)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, resp.Error.Code)
}

type rejectAllValidator struct{}

func (rejectAllValidator) Validate(msg *shared.Message) error {
	return shared.NewServerError(shared.ErrMsgPayloadTooLarge, nil)
}

func TestValidatorRejectionBlocksAdmission(t *testing.T) {
	input, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/echo": func(msg *shared.Message) (interface{}, error) {
			return map[string]string{"status": "ok"}, nil
		},
	})
	input.AddValidator(rejectAllValidator{})

	err := session.Input().Put(request(session, 5, "test/echo"))
	require.Error(t, err)

	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorServerError, rpcErr.Code)
	assert.Equal(t, shared.ErrMsgPayloadTooLarge, rpcErr.Message)

	assertNoMessage(t, output)
}

func TestObserverSeesEveryDispatch(t *testing.T) {
	var mu sync.Mutex
	type observation struct {
		method string
		failed bool
	}
	var seen []observation

	input, session, output := startInput(t, map[string]shared.MethodHandler{
		"test/ok":   func(msg *shared.Message) (interface{}, error) { return map[string]string{}, nil },
		"test/fail": func(msg *shared.Message) (interface{}, error) { return nil, assert.AnError },
	})
	input.SetObserver(func(method string, failed bool, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, observation{method, failed})
	})

	require.NoError(t, session.Input().Put(request(session, 10, "test/ok")))
	receiveMessage(t, output)
	require.NoError(t, session.Input().Put(request(session, 11, "test/fail")))
	receiveMessage(t, output)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, observation{"test/ok", false})
	assert.Contains(t, seen, observation{"test/fail", true})
}
