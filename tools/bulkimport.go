package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

// progressBatch is how many imported items separate two progress events.
const progressBatch = 100

var bulkImportSchema = scopedSchema(
	`"entities":{"type":"array","items":{"type":"object","properties":{"label":{"type":"string"},"id":{"type":"string"},"properties":{"type":"object"}},"required":["label","id"]}},"relationships":{"type":"array","items":{"type":"object","properties":{"fromLabel":{"type":"string"},"fromId":{"type":"string"},"toLabel":{"type":"string"},"toId":{"type":"string"},"type":{"type":"string"},"properties":{"type":"object"}},"required":["fromLabel","fromId","toLabel","toId","type"]}}`,
)

type bulkEntity struct {
	Label      string                 `json:"label"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

type bulkRelationship struct {
	FromLabel  string                 `json:"fromLabel"`
	FromID     string                 `json:"fromId"`
	ToLabel    string                 `json:"toLabel"`
	ToID       string                 `json:"toId"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

type bulkImportArgs struct {
	Scope
	Entities      []bulkEntity       `json:"entities"`
	Relationships []bulkRelationship `json:"relationships"`
}

// bulkImportHandler loads entities then relationships, streaming progress
// every progressBatch items. Individual failures are collected, not fatal.
func bulkImportHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a bulkImportArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	total := len(a.Entities) + len(a.Relationships)
	e.SendProgress(shared.ProgressPayload{
		Status:  "initializing",
		Message: fmt.Sprintf("importing %d entities and %d relationships", len(a.Entities), len(a.Relationships)),
		Extra:   map[string]interface{}{"total": total},
	})

	var failures []string
	imported := 0

	for _, ent := range a.Entities {
		if err := e.Ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := db.UpsertNode(ent.Label, ent.ID, ent.Properties); err != nil {
			failures = append(failures, fmt.Sprintf("entity %s:%s: %v", ent.Label, ent.ID, err))
			continue
		}
		imported++
		if imported%progressBatch == 0 {
			e.SendProgress(shared.ProgressPayload{
				Status:  "in_progress",
				Message: fmt.Sprintf("imported %d/%d items", imported, total),
			})
		}
	}

	for _, rel := range a.Relationships {
		if err := e.Ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := db.CreateRelationship(rel.FromLabel, rel.FromID, rel.ToLabel, rel.ToID, rel.Type, rel.Properties); err != nil {
			failures = append(failures, fmt.Sprintf("relationship %s:%s-[%s]->%s:%s: %v",
				rel.FromLabel, rel.FromID, rel.Type, rel.ToLabel, rel.ToID, err))
			continue
		}
		imported++
		if imported%progressBatch == 0 {
			e.SendProgress(shared.ProgressPayload{
				Status:  "in_progress",
				Message: fmt.Sprintf("imported %d/%d items", imported, total),
			})
		}
	}

	e.SendProgress(shared.ProgressPayload{
		Status:  "complete",
		Message: fmt.Sprintf("imported %d/%d items", imported, total),
		IsFinal: true,
	})

	return map[string]interface{}{
		"imported": imported,
		"total":    total,
		"failures": failures,
	}, nil
}
