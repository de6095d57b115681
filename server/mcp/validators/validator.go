package validators

import (
	"github.com/graphmem/graphmem/shared"
)

// CreateDefaultValidators returns the standard set of validators.
func CreateDefaultValidators(maxMessageSize int64) []shared.MessageValidator {
	return []shared.MessageValidator{
		NewThrottling(60, 600), // 60 requests per second, 600 per minute
		NewMessageSizeValidator(maxMessageSize),
		NewMethodValidator(),
	}
}
