package validators_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp/validators"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

func validatorSession(t *testing.T) *shared.BaseSession {
	t.Helper()
	logger := zap.NewNop()
	session := shared.NewBaseSession(logger, shared.NewInput(logger), nil)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func messageWithParams(session shared.ISession, params string) *shared.Message {
	method := "tools/call"
	raw := json.RawMessage(params)
	return &shared.Message{
		Session: session,
		ID:      &schema.RequestID{Value: 1},
		Method:  &method,
		Params:  &raw,
	}
}

func TestMessageSizeValidatorAcceptsSmall(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMessageSizeValidator(1024)

	assert.NoError(t, v.Validate(messageWithParams(session, `{"name":"entity"}`)))
}

func TestMessageSizeValidatorRejectsOversizedParams(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMessageSizeValidator(16)

	err := v.Validate(messageWithParams(session, `{"blob":"`+strings.Repeat("x", 64)+`"}`))
	require.Error(t, err)

	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorServerError, rpcErr.Code)
	assert.Equal(t, shared.ErrMsgPayloadTooLarge, rpcErr.Message)
}

func TestMessageSizeValidatorRejectsHugeID(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMessageSizeValidator(1024)

	method := "ping"
	msg := &shared.Message{
		Session: session,
		ID:      &schema.RequestID{Value: strings.Repeat("a", 300)},
		Method:  &method,
	}
	err := v.Validate(msg)
	require.Error(t, err)
}

func TestMessageSizeValidatorAllowsNilParams(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMessageSizeValidator(1)

	method := "ping"
	msg := &shared.Message{Session: session, ID: &schema.RequestID{Value: 1}, Method: &method}
	assert.NoError(t, v.Validate(msg))
}

func TestMessageSizeValidatorSetMaxSize(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMessageSizeValidator(1024)
	msg := messageWithParams(session, `{"blob":"`+strings.Repeat("x", 64)+`"}`)

	require.NoError(t, v.Validate(msg))
	v.SetMaxSize(8)
	assert.Error(t, v.Validate(msg))
}

func TestMethodValidatorRejectsEmptyFrame(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMethodValidator()

	err := v.Validate(&shared.Message{Session: session})
	require.Error(t, err)

	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorInvalidRequest, rpcErr.Code)
}

func TestMethodValidatorRejectsEmptyAndOversizedMethod(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMethodValidator()

	empty := ""
	err := v.Validate(&shared.Message{Session: session, Method: &empty})
	assert.Error(t, err)

	long := strings.Repeat("m", 200)
	err = v.Validate(&shared.Message{Session: session, Method: &long})
	assert.Error(t, err)
}

func TestMethodValidatorAcceptsResponseFrame(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewMethodValidator()

	// Response frames carry an id but no method.
	msg := &shared.Message{Session: session, ID: &schema.RequestID{Value: 9}}
	assert.NoError(t, v.Validate(msg))
}

func TestThrottlingAllowsWithinLimits(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewThrottling(100, 1000)

	method := "ping"
	for i := 0; i < 10; i++ {
		msg := &shared.Message{Session: session, Method: &method}
		assert.NoError(t, v.Validate(msg))
	}
}

func TestThrottlingRejectsBurstBeyondLimit(t *testing.T) {
	session := validatorSession(t)
	v := validators.NewThrottling(2, 1000)

	method := "ping"
	rejected := false
	for i := 0; i < 20; i++ {
		if err := v.Validate(&shared.Message{Session: session, Method: &method}); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "burst above the RPS limit must be throttled")
}

func TestCreateDefaultValidators(t *testing.T) {
	vs := validators.CreateDefaultValidators(2048)
	require.Len(t, vs, 3)

	session := validatorSession(t)
	msg := messageWithParams(session, `{"name":"entity"}`)
	for _, v := range vs {
		assert.NoError(t, v.Validate(msg))
	}
}
