package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var querySchema = scopedSchema(
	`"type":{"type":"string","enum":["context-history","entities-by-label","dependencies","dependents","governance","tagged","related","raw"]},"label":{"type":"string"},"id":{"type":"string"},"tag":{"type":"string"},"limit":{"type":"integer","minimum":1},"query":{"type":"string"},"parameters":{"type":"object"}`,
	"type",
)

type queryArgs struct {
	Scope
	Type       string                 `json:"type"`
	Label      string                 `json:"label"`
	ID         string                 `json:"id"`
	Tag        string                 `json:"tag"`
	Limit      int                    `json:"limit"`
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters"`
}

// queryHandler answers the read-only query families over a memory bank.
func queryHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a queryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	switch a.Type {
	case "context-history":
		nodes, err := contextHistory(db, a.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entries": nodes}, nil

	case "entities-by-label":
		if a.Label == "" {
			return nil, fmt.Errorf("entities-by-label requires a label")
		}
		nodes, err := db.ListNodes(a.Label)
		if err != nil {
			return nil, err
		}
		if a.Limit > 0 && len(nodes) > a.Limit {
			nodes = nodes[:a.Limit]
		}
		return map[string]interface{}{"entities": nodes}, nil

	case "dependencies":
		return neighborResult(db, a, RelDependsOn, false)

	case "dependents":
		return neighborResult(db, a, RelDependsOn, true)

	case "governance":
		// Rules governing the given item.
		return neighborResult(db, a, RelGoverns, true)

	case "tagged":
		if a.Tag == "" {
			return nil, fmt.Errorf("tagged query requires a tag")
		}
		nodes, err := db.Neighbors(engine.LabelTag, a.Tag, RelTaggedWith, true)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"tag": a.Tag, "items": nodes}, nil

	case "related":
		return neighborResult(db, a, "", false)

	case "raw":
		if a.Query == "" {
			return nil, fmt.Errorf("raw query requires a query string")
		}
		rows, err := handle.ExecuteQuery(e.Ctx, a.Query, a.Parameters)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"rows": rows}, nil

	default:
		return nil, fmt.Errorf("unknown query type: %s", a.Type)
	}
}

func neighborResult(db *engine.Database, a queryArgs, relType string, reverse bool) (interface{}, error) {
	if a.Label == "" || a.ID == "" {
		return nil, fmt.Errorf("%s query requires label and id", a.Type)
	}
	nodes, err := db.Neighbors(a.Label, a.ID, relType, reverse)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"label":     a.Label,
		"id":        a.ID,
		"neighbors": nodes,
	}, nil
}
