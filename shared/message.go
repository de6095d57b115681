package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphmem/graphmem/shared/schema"
)

// Message is the in-process representation of a single JSON-RPC frame,
// inbound or outbound.
type Message struct {
	ID        *schema.RequestID `json:"id,omitempty"`
	Timestamp time.Time         `json:"-"`
	Method    *string           `json:"method,omitempty"`
	Params    *json.RawMessage  `json:"params,omitempty"`
	Result    *json.RawMessage  `json:"result,omitempty"`
	Error     *JSONRPCError     `json:"error,omitempty"`

	Processed bool     `json:"-"`
	Session   ISession `json:"-"`

	// Ctx carries the cancellation scope of the originating transport
	// request. Nil means background.
	Ctx context.Context `json:"-"`
}

// Context returns the message's cancellation scope, never nil.
func (m *Message) Context() context.Context {
	if m.Ctx == nil {
		return context.Background()
	}
	return m.Ctx
}

// ParseMessages decodes a request body that is either a single JSON-RPC
// object or a batch (JSON array) of them, binding each to the session.
func ParseMessages(s ISession, data []byte) ([]*Message, error) {
	var messages []*Message
	err := json.Unmarshal(data, &messages)
	if err == nil {
		for _, msg := range messages {
			if msg != nil {
				msg.Session = s
			}
		}
		return messages, nil
	}

	var singleMessage Message
	err = json.Unmarshal(data, &singleMessage)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC message (neither batch nor single): %w", err)
	}
	singleMessage.Session = s
	return []*Message{&singleMessage}, nil
}

// NilIfNil returns "nil" if the string pointer is nil, otherwise the pointed-to string.
func NilIfNil(s *string) string {
	if s == nil {
		return "nil"
	}
	return *s
}

// MarshalJSON ensures the jsonrpc field is properly set before marshaling.
// Error frames win over result frames; everything else is a request or
// notification shape.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m.Error != nil {
		response := JSONRPCErrorResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Error:   m.Error,
		}
		return json.Marshal(response)
	}
	if m.Result != nil {
		response := JSONRPCResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Result:  m.Result,
		}
		return json.Marshal(response)
	}
	response := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
	}
	return json.Marshal(response)
}

// IsRequest reports whether the frame expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != nil && !m.ID.IsEmpty()
}
