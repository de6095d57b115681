package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

const entityLabelEnum = `"enum":["Component","Decision","Rule","File","Tag","Context"]`

var entitySchema = scopedSchema(
	`"operation":{"type":"string","enum":["create","get","update","delete","list"]},"label":{"type":"string",`+entityLabelEnum+`},"id":{"type":"string"},"properties":{"type":"object"}`,
	"operation", "label",
)

type entityArgs struct {
	Scope
	Operation  string                 `json:"operation"`
	Label      string                 `json:"label"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

// entityHandler is the CRUD surface over the typed memory-bank nodes.
func entityHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a entityArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Operation != "list" && a.ID == "" {
		return nil, fmt.Errorf("entity operation %q requires an id", a.Operation)
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	switch a.Operation {
	case "create", "update":
		node, err := db.UpsertNode(a.Label, a.ID, a.Properties)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entity": node}, nil

	case "get":
		node, err := db.GetNode(a.Label, a.ID)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return map[string]interface{}{"found": false}, nil
		}
		return map[string]interface{}{"found": true, "entity": node}, nil

	case "delete":
		deleted, err := db.DeleteNode(a.Label, a.ID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": deleted}, nil

	case "list":
		nodes, err := db.ListNodes(a.Label)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"label":    a.Label,
			"count":    len(nodes),
			"entities": nodes,
		}, nil

	default:
		return nil, fmt.Errorf("unknown entity operation: %s", a.Operation)
	}
}
