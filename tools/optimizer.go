package tools

import (
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph/engine"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
)

var optimizerSchema = scopedSchema(
	`"staleDays":{"type":"integer","minimum":1},"dryRun":{"type":"boolean"}`,
)

type optimizerArgs struct {
	Scope
	StaleDays int   `json:"staleDays"`
	DryRun    *bool `json:"dryRun"`
}

type prunedEntity struct {
	Label     string    `json:"label"`
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// memoryOptimizerHandler finds isolated entities that have not been touched
// within staleDays and prunes them. Dry-run unless explicitly disabled.
func memoryOptimizerHandler(e *capability.ExecContext, args schema.Arguments) (interface{}, error) {
	var a optimizerArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.StaleDays == 0 {
		a.StaleDays = 90
	}
	dryRun := true
	if a.DryRun != nil {
		dryRun = *a.DryRun
	}

	handle, err := a.acquire(e)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	db := handle.Engine()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.StaleDays)
	var candidates []prunedEntity

	for _, label := range db.Labels() {
		if label == engine.LabelMetadata {
			continue
		}
		nodes, err := db.ListNodes(label)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			if err := e.Ctx.Err(); err != nil {
				return nil, err
			}
			if !node.UpdatedAt.Before(cutoff) {
				continue
			}
			out, err := db.Neighbors(label, node.ID, "", false)
			if err != nil {
				return nil, err
			}
			in, err := db.Neighbors(label, node.ID, "", true)
			if err != nil {
				return nil, err
			}
			if len(out) > 0 || len(in) > 0 {
				continue
			}
			candidates = append(candidates, prunedEntity{Label: label, ID: node.ID, UpdatedAt: node.UpdatedAt})
		}
	}

	pruned := 0
	if !dryRun {
		for _, c := range candidates {
			deleted, err := db.DeleteNode(c.Label, c.ID)
			if err != nil {
				return nil, err
			}
			if deleted {
				pruned++
			}
		}
		e.Logger.Info("Pruned stale entities", zap.Int("count", pruned), zap.Int("staleDays", a.StaleDays))
	}

	return map[string]interface{}{
		"dryRun":     dryRun,
		"staleDays":  a.StaleDays,
		"candidates": candidates,
		"pruned":     pruned,
	}, nil
}
