// Package tools implements the memory-bank tool catalog served over
// tools/call: entity and context management, graph queries, bulk import and
// the graph-algorithm suite.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

// Registry is the subset of the tools capability the catalog needs.
type Registry interface {
	AddTool(name, description string, inputSchema json.RawMessage, annotations *schema.ToolAnnotations, handler capability.ToolHandler) error
}

type toolDef struct {
	name        string
	description string
	inputSchema json.RawMessage
	annotations *schema.ToolAnnotations
	handler     capability.ToolHandler
}

var readOnly = &schema.ToolAnnotations{ReadOnlyHint: boolPtr(true)}

func boolPtr(b bool) *bool { return &b }

func catalog() []toolDef {
	return []toolDef{
		{"memory-bank", "Initialize a per-branch memory bank and manage its metadata.", memoryBankSchema, nil, memoryBankHandler},
		{"entity", "Create, read, update, delete and list typed memory-bank entities.", entitySchema, nil, entityHandler},
		{"introspect", "Inspect the labels, counts and property keys of a memory bank.", introspectSchema, readOnly, introspectHandler},
		{"context", "Record and read daily working-context entries.", contextSchema, nil, contextHandler},
		{"query", "Run read-only queries: context history, entities, dependencies, governance, tags, raw store queries.", querySchema, readOnly, queryHandler},
		{"associate", "Create relationships: file-component, tag-item, or arbitrary links.", associateSchema, nil, associateHandler},
		{"analyze", "Run a graph algorithm (pagerank, k-core, louvain, shortest-path) with progress streaming.", analyzeSchema, readOnly, analyzeHandler},
		{"detect", "Detect structure: connected components or path existence, with progress streaming.", detectSchema, readOnly, detectHandler},
		{"bulk-import", "Import entities and relationships in bulk with progress streaming.", bulkImportSchema, nil, bulkImportHandler},
		{"search", "Case-insensitive substring search over entity ids and properties.", searchSchema, readOnly, searchHandler},
		{"memory-optimizer", "Find and prune stale, unconnected entities. Dry-run by default.", optimizerSchema, nil, memoryOptimizerHandler},
		{"pagerank", "PageRank scores over a projected graph.", pagerankSchema, readOnly, pagerankHandler},
		{"k-core-decomposition", "K-core numbers over a projected graph.", kcoreSchema, readOnly, kcoreHandler},
		{"louvain-community-detection", "Louvain communities over a projected graph.", louvainSchema, readOnly, louvainHandler},
		{"strongly-connected-components", "Strongly connected components over a projected graph.", sccSchema, readOnly, sccHandler},
		{"weakly-connected-components", "Weakly connected components over a projected graph.", wccSchema, readOnly, wccHandler},
		{"shortest-path", "Shortest path between two nodes of a projected graph.", shortestPathSchema, readOnly, shortestPathHandler},
	}
}

// RegisterAll adds the full catalog to the registry.
func RegisterAll(r Registry) error {
	for _, def := range catalog() {
		if err := r.AddTool(def.name, def.description, def.inputSchema, def.annotations, def.handler); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.name, err)
		}
	}
	return nil
}
