package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

var detectSchema = scopedSchema(
	`"type":{"type":"string","enum":["strongly-connected","weakly-connected","path-exists"]},`+
		projectionProperties+
		`,"startNodeId":{"type":"string"},"endNodeId":{"type":"string"}`,
	"type", "projectedGraphName",
)

type detectArgs struct {
	projectionArgs
	Type        string `json:"type"`
	StartNodeID string `json:"startNodeId"`
	EndNodeID   string `json:"endNodeId"`
}

// detectHandler answers structural questions about a projection, streaming
// progress around the computation.
func detectHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a detectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	projection := a.project(handle.Engine())
	e.SendProgress(shared.ProgressPayload{
		Status:  "initializing",
		Message: fmt.Sprintf("projected %d nodes for %s detection", projection.Size(), a.Type),
	})

	var result interface{}
	switch a.Type {
	case "strongly-connected":
		components, err := engine.StronglyConnectedComponents(e.Ctx, projection)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"components": components, "componentCount": componentCount(components)}

	case "weakly-connected":
		components, err := engine.WeaklyConnectedComponents(e.Ctx, projection)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"components": components, "componentCount": componentCount(components)}

	case "path-exists":
		if a.StartNodeID == "" || a.EndNodeID == "" {
			return nil, fmt.Errorf("path-exists requires startNodeId and endNodeId")
		}
		path, err := engine.ShortestPath(e.Ctx, projection, a.StartNodeID, a.EndNodeID)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"exists": path != nil}

	default:
		return nil, fmt.Errorf("unknown detect type: %s", a.Type)
	}

	e.SendProgress(shared.ProgressPayload{
		Status:  "complete",
		Message: fmt.Sprintf("%s detection finished", a.Type),
		IsFinal: true,
	})
	return result, nil
}

func componentCount(assignment map[string]int) int {
	seen := make(map[int]struct{}, len(assignment))
	for _, c := range assignment {
		seen[c] = struct{}{}
	}
	return len(seen)
}
