package tools

import (
	"fmt"
	"sort"
	"time"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var contextSchema = scopedSchema(
	`"operation":{"type":"string","enum":["update","get"]},"date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"agent":{"type":"string"},"issue":{"type":"string"},"summary":{"type":"string"},"decisions":{"type":"array","items":{"type":"string"}},"observations":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer","minimum":1}`,
	"operation",
)

type contextArgs struct {
	Scope
	Operation    string   `json:"operation"`
	Date         string   `json:"date"`
	Agent        string   `json:"agent"`
	Issue        string   `json:"issue"`
	Summary      string   `json:"summary"`
	Decisions    []string `json:"decisions"`
	Observations []string `json:"observations"`
	Limit        int      `json:"limit"`
}

// contextHandler maintains daily working-context entries, one Context node
// per calendar day.
func contextHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a contextArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Date == "" {
		a.Date = time.Now().UTC().Format("2006-01-02")
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	switch a.Operation {
	case "update":
		props := map[string]interface{}{"date": a.Date}
		if a.Agent != "" {
			props["agent"] = a.Agent
		}
		if a.Issue != "" {
			props["issue"] = a.Issue
		}
		if a.Summary != "" {
			props["summary"] = a.Summary
		}
		if len(a.Decisions) > 0 {
			props["decisions"] = a.Decisions
		}
		if len(a.Observations) > 0 {
			props["observations"] = a.Observations
		}
		node, err := db.UpsertNode(engine.LabelContext, a.Date, props)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"context": node}, nil

	case "get":
		node, err := db.GetNode(engine.LabelContext, a.Date)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return map[string]interface{}{"found": false, "date": a.Date}, nil
		}
		return map[string]interface{}{"found": true, "context": node}, nil

	default:
		return nil, fmt.Errorf("unknown context operation: %s", a.Operation)
	}
}

// contextHistory returns the most recent context entries, newest first.
func contextHistory(db *engine.Database, limit int) ([]*engine.Node, error) {
	nodes, err := db.ListNodes(engine.LabelContext)
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID > nodes[j].ID })
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}
