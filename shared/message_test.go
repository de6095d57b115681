package shared_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

func newParseSession(t *testing.T) *shared.BaseSession {
	t.Helper()
	logger := zap.NewNop()
	session := shared.NewBaseSession(logger, shared.NewInput(logger), nil)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestParseMessagesSingle(t *testing.T) {
	session := newParseSession(t)

	msgs, err := shared.ParseMessages(session, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Same(t, session, msg.Session.(*shared.BaseSession))
	require.NotNil(t, msg.Method)
	assert.Equal(t, "tools/list", *msg.Method)
	assert.Equal(t, float64(1), msg.ID.Value)
	assert.True(t, msg.IsRequest())
}

func TestParseMessagesBatch(t *testing.T) {
	session := newParseSession(t)

	msgs, err := shared.ParseMessages(session, []byte(`[
		{"jsonrpc":"2.0","id":"a","method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"}
	]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.True(t, msgs[0].IsRequest())
	assert.False(t, msgs[1].IsRequest()) // notification: no id
	for _, m := range msgs {
		assert.NotNil(t, m.Session)
	}
}

func TestParseMessagesInvalid(t *testing.T) {
	session := newParseSession(t)

	_, err := shared.ParseMessages(session, []byte(`{not json`))
	assert.Error(t, err)
}

func TestMessageMarshalErrorWinsOverResult(t *testing.T) {
	raw := json.RawMessage(`{"ok":true}`)
	msg := &shared.Message{
		ID:     &schema.RequestID{Value: 5},
		Result: &raw,
		Error:  &shared.JSONRPCError{Code: shared.JSONRPCErrorInternal, Message: "boom"},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Contains(t, decoded, "error")
	assert.NotContains(t, decoded, "result")
}

func TestMessageMarshalResultFrame(t *testing.T) {
	raw := json.RawMessage(`{"ok":true}`)
	msg := &shared.Message{ID: &schema.RequestID{Value: "abc"}, Result: &raw}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded["id"])
	assert.Contains(t, decoded, "result")
	assert.NotContains(t, decoded, "method")
}

func TestMessageMarshalNotificationFrame(t *testing.T) {
	method := "notifications/progress"
	params := json.RawMessage(`{"progressToken":1}`)
	msg := &shared.Message{Method: &method, Params: &params}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, method, decoded["method"])
	assert.NotContains(t, decoded, "id")
}

func TestErrorResponseIDNullWhenAbsent(t *testing.T) {
	resp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      nil,
		Error:   shared.NewServerError(shared.ErrMsgPayloadTooLarge, nil),
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":null`)
}

func TestRequestIDStringAndEmpty(t *testing.T) {
	var nilID *schema.RequestID
	assert.True(t, nilID.IsEmpty())
	assert.Equal(t, "nil", nilID.String())

	id := &schema.RequestID{Value: "abc"}
	assert.False(t, id.IsEmpty())
	assert.Equal(t, `"abc"`, id.String())

	num := &schema.RequestID{Value: float64(3)}
	assert.Equal(t, "3", num.String())
}

func TestNewJSONRPCErrorPreservesCode(t *testing.T) {
	rpcErr := &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "bad args"}
	assert.Same(t, rpcErr, shared.NewJSONRPCError(rpcErr))

	wrapped := shared.NewJSONRPCError(assert.AnError)
	assert.Equal(t, shared.JSONRPCErrorInternal, wrapped.Code)

	assert.Nil(t, shared.NewJSONRPCError(nil))
}
