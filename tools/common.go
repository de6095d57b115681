package tools

import (
	"encoding/json"
	"fmt"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

// Relationship types used by the memory-bank domain.
const (
	RelDependsOn  = "DEPENDS_ON"
	RelBelongsTo  = "BELONGS_TO"
	RelTaggedWith = "TAGGED_WITH"
	RelGoverns    = "GOVERNS"
	RelRelatedTo  = "RELATED_TO"
)

// Scope names the database every tool call operates on. All tools accept it.
type Scope struct {
	ClientProjectRoot string `json:"clientProjectRoot"`
	Repository        string `json:"repository"`
	Branch            string `json:"branch"`
}

func (s Scope) acquire(e *capability.ExecContext) (*graph.Handle, error) {
	return e.AcquireDB(s.ClientProjectRoot, s.Repository, s.Branch)
}

// decodeArgs maps validated tool arguments onto a typed struct.
func decodeArgs(args schema.Arguments, v interface{}) error {
	data, err := json.Marshal(map[string]interface{}(args))
	if err != nil {
		return fmt.Errorf("failed to re-encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

// scopeProperties is the JSON Schema fragment shared by every tool.
const scopeProperties = `"clientProjectRoot":{"type":"string","minLength":1},"repository":{"type":"string","minLength":1},"branch":{"type":"string","minLength":1}`

// scopedSchema builds an object schema containing the scope properties plus
// the given extra property fragment.
func scopedSchema(extraProps string, required ...string) json.RawMessage {
	req := append([]string{"clientProjectRoot", "repository", "branch"}, required...)
	reqJSON, err := json.Marshal(req)
	if err != nil {
		panic(err) // static input, cannot fail
	}
	props := scopeProperties
	if extraProps != "" {
		props += "," + extraProps
	}
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{%s},"required":%s,"additionalProperties":false}`, props, reqJSON))
}
