package tools

import (
	"fmt"
	"sort"

	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var introspectSchema = scopedSchema(
	`"operation":{"type":"string","enum":["labels","count","properties"]},"label":{"type":"string"}`,
	"operation",
)

type introspectArgs struct {
	Scope
	Operation string `json:"operation"`
	Label     string `json:"label"`
}

// introspectHandler reports the shape of a memory bank: which labels exist,
// how many nodes carry one, and which property keys they use.
func introspectHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a introspectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	switch a.Operation {
	case "labels":
		return map[string]interface{}{"labels": db.Labels()}, nil

	case "count":
		if a.Label != "" {
			return map[string]interface{}{"label": a.Label, "count": db.CountNodes(a.Label)}, nil
		}
		counts := make(map[string]int)
		for _, label := range db.Labels() {
			counts[label] = db.CountNodes(label)
		}
		return map[string]interface{}{"counts": counts}, nil

	case "properties":
		if a.Label == "" {
			return nil, fmt.Errorf("properties operation requires a label")
		}
		nodes, err := db.ListNodes(a.Label)
		if err != nil {
			return nil, err
		}
		keySet := make(map[string]struct{})
		for _, node := range nodes {
			for k := range node.Properties {
				keySet[k] = struct{}{}
			}
		}
		keys := make([]string, 0, len(keySet))
		for k := range keySet {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return map[string]interface{}{"label": a.Label, "propertyKeys": keys}, nil

	default:
		return nil, fmt.Errorf("unknown introspect operation: %s", a.Operation)
	}
}
