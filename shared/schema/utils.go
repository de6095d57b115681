package schema

// ProgressNotificationParams is the payload of a "notifications/progress"
// message. The token equals the originating request id so the client can
// correlate intermediate events with the eventual response.
type ProgressNotificationParams struct {
	// The progress token associated with the original request.
	ProgressToken interface{} `json:"progressToken"`
	// Serialized progress payload, mirrored in the tool-result content shape.
	Content []Content `json:"content,omitempty"`
	// True on the last progress notification for the request. The terminal
	// JSON-RPC response still follows independently.
	IsFinal bool `json:"isFinal,omitempty"`
}

// CancelledNotificationParams contains parameters for cancellation notifications.
type CancelledNotificationParams struct {
	Reason    string    `json:"reason,omitempty"`
	RequestID RequestID `json:"requestId"`
}

// PingRequest checks if the other party is alive.
type PingRequest struct {
	Method string                 `json:"method"` // const: "ping"
	Params map[string]interface{} `json:"params,omitempty"`
}
