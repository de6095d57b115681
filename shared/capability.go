package shared

import "github.com/graphmem/graphmem/shared/schema"

// MethodHandler processes one inbound request or notification and returns
// the result value for the terminal response. A handler that delivered its
// terminal outcome through a progress sink returns (nil, nil) with the sink
// already closed.
type MethodHandler func(msg *Message) (interface{}, error)

// ICapability is a group of method handlers registered with the input
// processor at startup. The set is immutable for the life of the process.
type ICapability interface {
	GetHandlers() map[string]MethodHandler
	SetCapabilities(s *schema.ServerCapabilities)
}
