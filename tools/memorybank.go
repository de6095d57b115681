package tools

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

// metadataNodeID is the fixed id of the singleton Metadata node per database.
const metadataNodeID = "meta"

var memoryBankSchema = scopedSchema(
	`"operation":{"type":"string","enum":["init","get-metadata","update-metadata"]},"metadata":{"type":"object"}`,
	"operation",
)

type memoryBankArgs struct {
	Scope
	Operation string                 `json:"operation"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// memoryBankHandler initializes a per-branch memory bank and manages its
// metadata node.
func memoryBankHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a memoryBankArgs
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
	case "init":
		existing, err := db.GetNode(engine.LabelMetadata, metadataNodeID)
		if err != nil {
			return nil, err
		}
		created := existing == nil
		if created {
			_, err = db.UpsertNode(engine.LabelMetadata, metadataNodeID, map[string]interface{}{
				"repository":    a.Repository,
				"branch":        a.Branch,
				"initializedAt": time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				return nil, err
			}
			e.Logger.Info("Initialized memory bank",
				zap.String("repository", a.Repository),
				zap.String("branch", a.Branch),
				zap.String("dbPath", handle.Path))
		}
		return map[string]interface{}{
			"dbPath":  handle.Path,
			"created": created,
		}, nil

	case "get-metadata":
		node, err := db.GetNode(engine.LabelMetadata, metadataNodeID)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return map[string]interface{}{"initialized": false}, nil
		}
		return map[string]interface{}{
			"initialized": true,
			"metadata":    node.Properties,
		}, nil

	case "update-metadata":
		if len(a.Metadata) == 0 {
			return nil, fmt.Errorf("update-metadata requires a non-empty metadata object")
		}
		node, err := db.UpsertNode(engine.LabelMetadata, metadataNodeID, a.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"metadata": node.Properties}, nil

	default:
		return nil, fmt.Errorf("unknown memory-bank operation: %s", a.Operation)
	}
}
