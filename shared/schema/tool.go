package schema

import "encoding/json"

// Arguments is the raw argument map of a tool call.
type Arguments map[string]interface{}

// Meta is the reserved metadata field present on several request params.
type Meta map[string]interface{}

// ToolAnnotations provides additional properties describing a Tool to clients.
// NOTE: all properties are hints; clients should never make tool use decisions
// based on annotations received from untrusted servers.
type ToolAnnotations struct {
	// A human-readable title for the tool.
	Title string `json:"title,omitempty"`
	// If true, the tool does not modify its environment (Default: false).
	ReadOnlyHint *bool `json:"readOnlyHint,omitempty"`
	// If true, the tool may perform destructive updates (Default: true).
	DestructiveHint *bool `json:"destructiveHint,omitempty"`
	// If true, repeated calls with same args have no additional effect (Default: false).
	IdempotentHint *bool `json:"idempotentHint,omitempty"`
}

// Tool defines a callable tool the client can use.
type Tool struct {
	// The name of the tool.
	Name string `json:"name"`
	// A human-readable description of the tool.
	Description string `json:"description,omitempty"`
	// A JSON Schema object defining the expected parameters for the tool.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	// Optional additional tool information.
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ListToolsRequestParams contains parameters for tool listing requests.
type ListToolsRequestParams struct {
	PaginatedRequestParams
}

// ListToolsResult is the response to a tools/list request.
type ListToolsResult struct {
	PaginatedResult
	Meta  Meta   `json:"_meta,omitempty"`
	Tools []Tool `json:"tools"`
}

// CallToolRequestParams contains parameters for tools/call requests.
type CallToolRequestParams struct {
	// The name of the tool.
	Name string `json:"name"`
	// Arguments for the tool call. Always present; empty object if none.
	Arguments Arguments `json:"arguments"`
	// Reserved metadata; clients may flag progress/stream interest here.
	Meta Meta `json:"_meta,omitempty"`
}

// CallToolResult contains the result of a tool invocation.
type CallToolResult struct {
	Meta *Meta `json:"_meta,omitempty"`
	// Result content.
	Content []Content `json:"content"`
	// Whether the tool call ended in an error.
	IsError bool `json:"isError"`
}

// Content represents a single item of tool output content.
type Content struct {
	// The type discriminator; this server only emits "text".
	Type string `json:"type"`
	// Text content (only for type: "text").
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a single-element text content slice.
func NewTextContent(text string) []Content {
	return []Content{{Type: "text", Text: text}}
}
