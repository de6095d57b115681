package tools

import (
	"sort"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

// projectionProperties is the schema fragment shared by the algorithm tools:
// a named projection over a subset of node labels and relationship types.
const projectionProperties = `"projectedGraphName":{"type":"string","minLength":1},"nodeTableNames":{"type":"array","items":{"type":"string"}},"relationshipTableNames":{"type":"array","items":{"type":"string"}}`

type projectionArgs struct {
	Scope
	ProjectedGraphName     string   `json:"projectedGraphName"`
	NodeTableNames         []string `json:"nodeTableNames"`
	RelationshipTableNames []string `json:"relationshipTableNames"`
}

func (a projectionArgs) project(db *engine.Database) *engine.Projection {
	return db.Project(a.ProjectedGraphName, a.NodeTableNames, a.RelationshipTableNames)
}

var pagerankSchema = scopedSchema(
	projectionProperties+`,"dampingFactor":{"type":"number","exclusiveMinimum":0,"exclusiveMaximum":1},"maxIterations":{"type":"integer","minimum":1}`,
	"projectedGraphName",
)

type pagerankArgs struct {
	projectionArgs
	DampingFactor float64 `json:"dampingFactor"`
	MaxIterations int     `json:"maxIterations"`
}

type rankedNode struct {
	Node  string  `json:"node"`
	Score float64 `json:"score"`
}

func pagerankHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a pagerankArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	ranks, err := engine.PageRank(e.Ctx, a.project(handle.Engine()), engine.PageRankOptions{
		Damping:       a.DampingFactor,
		MaxIterations: a.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projectedGraphName": a.ProjectedGraphName,
		"ranks":              rankedByScore(ranks),
	}, nil
}

// rankedByScore sorts node scores descending for stable output.
func rankedByScore(scores map[string]float64) []rankedNode {
	out := make([]rankedNode, 0, len(scores))
	for node, score := range scores {
		out = append(out, rankedNode{Node: node, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node < out[j].Node
	})
	return out
}

var kcoreSchema = scopedSchema(projectionProperties, "projectedGraphName")

func kcoreHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a projectionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	cores, err := engine.KCoreDecomposition(e.Ctx, a.project(handle.Engine()))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projectedGraphName": a.ProjectedGraphName,
		"coreNumbers":        cores,
	}, nil
}

var louvainSchema = scopedSchema(projectionProperties, "projectedGraphName")

func louvainHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a projectionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	communities, err := engine.LouvainCommunities(e.Ctx, a.project(handle.Engine()))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projectedGraphName": a.ProjectedGraphName,
		"communities":        communities,
	}, nil
}

var sccSchema = scopedSchema(projectionProperties, "projectedGraphName")

func sccHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a projectionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	components, err := engine.StronglyConnectedComponents(e.Ctx, a.project(handle.Engine()))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projectedGraphName": a.ProjectedGraphName,
		"components":         components,
	}, nil
}

var wccSchema = scopedSchema(projectionProperties, "projectedGraphName")

func wccHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a projectionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	components, err := engine.WeaklyConnectedComponents(e.Ctx, a.project(handle.Engine()))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projectedGraphName": a.ProjectedGraphName,
		"components":         components,
	}, nil
}

var shortestPathSchema = scopedSchema(
	projectionProperties+`,"startNodeId":{"type":"string","minLength":1},"endNodeId":{"type":"string","minLength":1}`,
	"projectedGraphName", "startNodeId", "endNodeId",
)

type shortestPathArgs struct {
	projectionArgs
	StartNodeID string `json:"startNodeId"` // "Label:id"
	EndNodeID   string `json:"endNodeId"`
}

func shortestPathHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a shortestPathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	path, err := engine.ShortestPath(e.Ctx, a.project(handle.Engine()), a.StartNodeID, a.EndNodeID)
	if err != nil {
		return nil, err
	}
	if path == nil {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{
		"found":  true,
		"path":   path,
		"length": len(path) - 1,
	}, nil
}
