package validators

import (
	"github.com/graphmem/graphmem/shared"
)

// MethodValidator rejects frames that are neither a valid request, a
// notification, nor a response.
type MethodValidator struct{}

func NewMethodValidator() *MethodValidator {
	return &MethodValidator{}
}

const maxMethodLength = 128

// Validate implements the MessageValidator interface.
func (v *MethodValidator) Validate(msg *shared.Message) error {
	if msg.Method == nil && msg.ID.IsEmpty() {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInvalidRequest,
			Message: "message has neither method nor id",
		}
	}
	if msg.Method != nil {
		if *msg.Method == "" {
			return &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorInvalidRequest,
				Message: "method must not be empty",
			}
		}
		if len(*msg.Method) > maxMethodLength {
			return &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorInvalidRequest,
				Message: "method name too long",
			}
		}
	}
	return nil
}
