package shared_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

func newSinkSession(t *testing.T) (*shared.BaseSession, <-chan *shared.Message) {
	t.Helper()
	logger := zap.NewNop()
	session := shared.NewBaseSession(logger, shared.NewInput(logger), nil)
	output, ok := session.AcquireOutput()
	require.True(t, ok)
	t.Cleanup(func() {
		session.ReleaseOutput()
		_ = session.Close()
	})
	return session, output
}

func receiveMessage(t *testing.T, output <-chan *shared.Message) *shared.Message {
	t.Helper()
	select {
	case msg := <-output:
		require.NotNil(t, msg)
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for output message")
		return nil
	}
}

func assertNoMessage(t *testing.T, output <-chan *shared.Message) {
	t.Helper()
	select {
	case msg := <-output:
		t.Fatalf("unexpected output message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressSinkStreamsThenCompletes(t *testing.T) {
	session, output := newSinkSession(t)
	id := &schema.RequestID{Value: float64(7)}
	sink := shared.NewProgressSink(session, id, zap.NewNop())

	sink.Progress(shared.ProgressPayload{Status: "initializing", Message: "starting"})
	sink.Progress(shared.ProgressPayload{Status: "complete", Message: "done", IsFinal: true})
	sink.Complete(map[string]string{"outcome": "ok"})

	first := receiveMessage(t, output)
	require.NotNil(t, first.Method)
	assert.Equal(t, shared.ProgressMethod, *first.Method)

	var params schema.ProgressNotificationParams
	require.NoError(t, json.Unmarshal(*first.Params, &params))
	assert.Equal(t, float64(7), params.ProgressToken)
	assert.False(t, params.IsFinal)

	second := receiveMessage(t, output)
	require.NoError(t, json.Unmarshal(*second.Params, &params))
	assert.True(t, params.IsFinal)

	terminal := receiveMessage(t, output)
	assert.Nil(t, terminal.Method)
	assert.Equal(t, id, terminal.ID)
	require.NotNil(t, terminal.Result)
	assert.Nil(t, terminal.Error)
}

func TestProgressSinkSingleTerminalResponse(t *testing.T) {
	session, output := newSinkSession(t)
	id := &schema.RequestID{Value: "req-1"}
	sink := shared.NewProgressSink(session, id, zap.NewNop())

	sink.Complete(map[string]string{"outcome": "ok"})
	assert.True(t, sink.Closed())

	// A second terminal outcome is dropped, whichever kind it is.
	sink.Fail(shared.NewServerError(shared.ErrMsgRequestTimeout, nil))
	sink.Complete(map[string]string{"outcome": "again"})

	terminal := receiveMessage(t, output)
	require.NotNil(t, terminal.Result)
	assert.Nil(t, terminal.Error)

	assertNoMessage(t, output)
}

func TestProgressSinkDropsProgressAfterTerminal(t *testing.T) {
	session, output := newSinkSession(t)
	sink := shared.NewProgressSink(session, &schema.RequestID{Value: "req-2"}, zap.NewNop())

	sink.Fail(shared.NewServerError(shared.ErrMsgRequestTimeout, nil))
	sink.Progress(shared.ProgressPayload{Status: "in_progress", Message: "late"})

	terminal := receiveMessage(t, output)
	require.NotNil(t, terminal.Error)
	assert.Equal(t, shared.JSONRPCErrorServerError, terminal.Error.Code)
	assert.Equal(t, shared.ErrMsgRequestTimeout, terminal.Error.Message)

	assertNoMessage(t, output)
}

func TestProgressSinkDiscardEmitsNothing(t *testing.T) {
	session, output := newSinkSession(t)
	sink := shared.NewProgressSink(session, &schema.RequestID{Value: "req-3"}, zap.NewNop())

	sink.Discard()
	assert.True(t, sink.Closed())

	// Terminal calls after a discard are dropped too.
	sink.Complete(map[string]string{"outcome": "ok"})
	sink.Fail(shared.NewServerError(shared.ErrMsgRequestTimeout, nil))

	assertNoMessage(t, output)
}

func TestProgressPayloadExtraFieldsSerialized(t *testing.T) {
	session, output := newSinkSession(t)
	sink := shared.NewProgressSink(session, &schema.RequestID{Value: "req-4"}, zap.NewNop())

	sink.Progress(shared.ProgressPayload{
		Status:  "in_progress",
		Message: "iteration",
		Extra:   map[string]interface{}{"iteration": 3},
	})

	msg := receiveMessage(t, output)
	var params schema.ProgressNotificationParams
	require.NoError(t, json.Unmarshal(*msg.Params, &params))
	require.Len(t, params.Content, 1)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(params.Content[0].Text), &payload))
	assert.Equal(t, "in_progress", payload["status"])
	assert.Equal(t, float64(3), payload["iteration"])
}
