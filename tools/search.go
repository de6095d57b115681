package tools

import (
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var searchSchema = scopedSchema(
	`"query":{"type":"string","minLength":1},"labels":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer","minimum":1}`,
	"query",
)

type searchArgs struct {
	Scope
	Query  string   `json:"query"`
	Labels []string `json:"labels"`
	Limit  int      `json:"limit"`
}

// searchHandler scans node ids and string properties for a case-insensitive
// substring match.
func searchHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	nodes, err := handle.Engine().Search(e.Ctx, a.Query, a.Labels)
	if err != nil {
		return nil, err
	}
	if a.Limit > 0 && len(nodes) > a.Limit {
		nodes = nodes[:a.Limit]
	}
	return map[string]interface{}{
		"query":   a.Query,
		"count":   len(nodes),
		"results": nodes,
	}, nil
}
