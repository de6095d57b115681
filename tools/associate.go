package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var associateSchema = scopedSchema(
	`"operation":{"type":"string","enum":["file-component","tag-item","link"]},"fileId":{"type":"string"},"componentId":{"type":"string"},"tag":{"type":"string"},"label":{"type":"string"},"id":{"type":"string"},"fromLabel":{"type":"string"},"fromId":{"type":"string"},"toLabel":{"type":"string"},"toId":{"type":"string"},"relationshipType":{"type":"string"}`,
	"operation",
)

type associateArgs struct {
	Scope
	Operation        string `json:"operation"`
	FileID           string `json:"fileId"`
	ComponentID      string `json:"componentId"`
	Tag              string `json:"tag"`
	Label            string `json:"label"`
	ID               string `json:"id"`
	FromLabel        string `json:"fromLabel"`
	FromID           string `json:"fromId"`
	ToLabel          string `json:"toLabel"`
	ToID             string `json:"toId"`
	RelationshipType string `json:"relationshipType"`
}

// associateHandler creates the typed relationships between memory-bank items.
func associateHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a associateArgs
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
	case "file-component":
		if a.FileID == "" || a.ComponentID == "" {
			return nil, fmt.Errorf("file-component requires fileId and componentId")
		}
		rel, err := db.CreateRelationship(engine.LabelFile, a.FileID, engine.LabelComponent, a.ComponentID, RelBelongsTo, nil)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"relationship": rel}, nil

	case "tag-item":
		if a.Tag == "" || a.Label == "" || a.ID == "" {
			return nil, fmt.Errorf("tag-item requires tag, label and id")
		}
		// The Tag node is created on first use.
		if _, err := db.UpsertNode(engine.LabelTag, a.Tag, nil); err != nil {
			return nil, err
		}
		rel, err := db.CreateRelationship(a.Label, a.ID, engine.LabelTag, a.Tag, RelTaggedWith, nil)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"relationship": rel}, nil

	case "link":
		if a.FromLabel == "" || a.FromID == "" || a.ToLabel == "" || a.ToID == "" {
			return nil, fmt.Errorf("link requires fromLabel, fromId, toLabel and toId")
		}
		relType := a.RelationshipType
		if relType == "" {
			relType = RelRelatedTo
		}
		rel, err := db.CreateRelationship(a.FromLabel, a.FromID, a.ToLabel, a.ToID, relType, nil)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"relationship": rel}, nil

	default:
		return nil, fmt.Errorf("unknown associate operation: %s", a.Operation)
	}
}
