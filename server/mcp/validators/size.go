package validators

import (
	"sync"

	"github.com/graphmem/graphmem/shared"
)

// MessageSizeValidator rejects messages whose params exceed the configured
// size. It backs up the transport-level body guards: a message can arrive
// through stdio where no Content-Length exists.
type MessageSizeValidator struct {
	maxSize int64
	mu      sync.RWMutex
}

// NewMessageSizeValidator creates a new message size validator.
func NewMessageSizeValidator(maxSize int64) *MessageSizeValidator {
	return &MessageSizeValidator{
		maxSize: maxSize,
	}
}

// SetMaxSize updates the maximum allowed message size.
func (v *MessageSizeValidator) SetMaxSize(maxSize int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxSize = maxSize
}

// Validate implements the MessageValidator interface.
func (v *MessageSizeValidator) Validate(msg *shared.Message) error {
	if len(msg.ID.String()) >= 256 {
		return shared.NewServerError(shared.ErrMsgPayloadTooLarge, "message id exceeds 256 bytes")
	}

	if msg.Params == nil {
		return nil
	}

	v.mu.RLock()
	maxSize := v.maxSize
	v.mu.RUnlock()

	if int64(len(*msg.Params)) > maxSize {
		return shared.NewServerError(shared.ErrMsgPayloadTooLarge, nil)
	}
	return nil
}
