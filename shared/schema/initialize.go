package schema

import "encoding/json"

// PROTOCOL_VERSION specifies the version of the MCP protocol defined in this schema.
const PROTOCOL_VERSION = "2025-03-26"

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capability represents a basic capability marker.
type Capability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities describes capabilities a client may support.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Roots        *Capability                `json:"roots,omitempty"`
	Sampling     *struct{}                  `json:"sampling,omitempty"`
}

// ServerCapabilities describes features the server supports.
type ServerCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
	Logging      *struct{}                  `json:"logging,omitempty"`
	Tools        *Capability                `json:"tools,omitempty"`
}

// InitializeRequestParams contains parameters for initialization.
type InitializeRequestParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's response to initialization.
type InitializeResult struct {
	Meta            map[string]interface{} `json:"_meta,omitempty"`
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    ServerCapabilities     `json:"capabilities"`
	ServerInfo      Implementation         `json:"serverInfo"`
	SessionID       string                 `json:"sessionId,omitempty"`
	Instructions    string                 `json:"instructions,omitempty"`
}

// InitializedNotification informs the server that initialization is complete.
type InitializedNotification struct {
	Method string                 `json:"method"` // const: "notifications/initialized"
	Params map[string]interface{} `json:"params,omitempty"`
}
