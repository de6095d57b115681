package graph

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph/engine"
)

// Handle is a reference-counted view of one open database. Concurrent
// requests for the same key share a single Handle; the engine serializes
// writes per file.
type Handle struct {
	Key  Key
	Path string

	db       *engine.Database
	refcount atomic.Int64
	logger   *zap.Logger
}

func newHandle(key Key, path string, db *engine.Database, logger *zap.Logger) *Handle {
	return &Handle{
		Key:    key,
		Path:   path,
		db:     db,
		logger: logger.With(zap.String("dbPath", path)),
	}
}

// Engine exposes the typed store primitives.
func (h *Handle) Engine() *engine.Database { return h.db }

func (h *Handle) acquire() { h.refcount.Add(1) }

// Release returns the handle after a request finishes. The database stays
// open and cached; only shutdown closes it.
func (h *Handle) Release() {
	if h.refcount.Add(-1) < 0 {
		h.logger.Error("Handle released more often than acquired")
	}
}

// drain waits for the refcount to reach zero, bounded by ctx.
func (h *Handle) drain(ctx context.Context) error {
	for h.refcount.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPollInterval):
		}
	}
	return nil
}

func (h *Handle) close() error {
	return h.db.Close()
}

// Query patterns understood by ExecuteQuery. The embedded store speaks a
// deliberately small dialect; tools use the typed Engine() primitives for
// everything else.
var (
	matchAllRe   = regexp.MustCompile(`(?i)^\s*MATCH\s*\(\s*n\s*:\s*(\w+)\s*\)\s*RETURN\s+n\s*(?:LIMIT\s+(\d+)\s*)?$`)
	matchByIDRe  = regexp.MustCompile(`(?i)^\s*MATCH\s*\(\s*n\s*:\s*(\w+)\s*\{\s*id\s*:\s*\$(\w+)\s*\}\s*\)\s*RETURN\s+n\s*$`)
	matchCountRe = regexp.MustCompile(`(?i)^\s*MATCH\s*\(\s*n\s*:\s*(\w+)\s*\)\s*RETURN\s+count\s*\(\s*n\s*\)\s*$`)
)

// ExecuteQuery runs a query in the store's dialect and returns one map per
// row. Engine errors are surfaced verbatim.
func (h *Handle) ExecuteQuery(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m := matchCountRe.FindStringSubmatch(text); m != nil {
		return []map[string]interface{}{{"count": h.db.CountNodes(m[1])}}, nil
	}

	if m := matchByIDRe.FindStringSubmatch(text); m != nil {
		label, paramName := m[1], m[2]
		id, ok := params[paramName].(string)
		if !ok {
			return nil, fmt.Errorf("query parameter $%s must be a string", paramName)
		}
		node, err := h.db.GetNode(label, id)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, nil
		}
		return []map[string]interface{}{{"n": node}}, nil
	}

	if m := matchAllRe.FindStringSubmatch(text); m != nil {
		nodes, err := h.db.ListNodes(m[1])
		if err != nil {
			return nil, err
		}
		limit := len(nodes)
		if m[2] != "" {
			parsed, err := strconv.Atoi(m[2])
			if err == nil && parsed < limit {
				limit = parsed
			}
		}
		rows := make([]map[string]interface{}, 0, limit)
		for _, n := range nodes[:limit] {
			rows = append(rows, map[string]interface{}{"n": n})
		}
		return rows, nil
	}

	return nil, fmt.Errorf("unsupported query: %s", text)
}
