package tools

import (
	"fmt"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

var analyzeSchema = scopedSchema(
	`"algorithm":{"type":"string","enum":["pagerank","k-core","louvain","shortest-path"]},`+
		projectionProperties+
		`,"dampingFactor":{"type":"number","exclusiveMinimum":0,"exclusiveMaximum":1},"maxIterations":{"type":"integer","minimum":1},"startNodeId":{"type":"string"},"endNodeId":{"type":"string"}`,
	"algorithm", "projectedGraphName",
)

type analyzeArgs struct {
	projectionArgs
	Algorithm     string  `json:"algorithm"`
	DampingFactor float64 `json:"dampingFactor"`
	MaxIterations int     `json:"maxIterations"`
	StartNodeID   string  `json:"startNodeId"`
	EndNodeID     string  `json:"endNodeId"`
}

// analyzeHandler runs one graph algorithm over a projection, streaming
// progress as the computation advances.
func analyzeHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a analyzeArgs
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
		Message: fmt.Sprintf("projected %d nodes for %s", projection.Size(), a.Algorithm),
		Extra:   map[string]interface{}{"algorithm": a.Algorithm},
	})

	var result interface{}
	switch a.Algorithm {
	case "pagerank":
		ranks, err := engine.PageRank(e.Ctx, projection, engine.PageRankOptions{
			Damping:       a.DampingFactor,
			MaxIterations: a.MaxIterations,
			OnIteration: func(iteration int, delta float64) {
				e.SendProgress(shared.ProgressPayload{
					Status:  "in_progress",
					Message: fmt.Sprintf("pagerank iteration %d", iteration),
					Extra:   map[string]interface{}{"delta": delta},
				})
			},
		})
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"ranks": rankedByScore(ranks)}

	case "k-core":
		cores, err := engine.KCoreDecomposition(e.Ctx, projection)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"coreNumbers": cores}

	case "louvain":
		communities, err := engine.LouvainCommunities(e.Ctx, projection)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"communities": communities}

	case "shortest-path":
		if a.StartNodeID == "" || a.EndNodeID == "" {
			return nil, fmt.Errorf("shortest-path requires startNodeId and endNodeId")
		}
		path, err := engine.ShortestPath(e.Ctx, projection, a.StartNodeID, a.EndNodeID)
		if err != nil {
			return nil, err
		}
		result = map[string]interface{}{"found": path != nil, "path": path}

	default:
		return nil, fmt.Errorf("unknown analyze algorithm: %s", a.Algorithm)
	}

	e.SendProgress(shared.ProgressPayload{
		Status:  "complete",
		Message: fmt.Sprintf("%s finished", a.Algorithm),
		IsFinal: true,
	})
	return result, nil
}
